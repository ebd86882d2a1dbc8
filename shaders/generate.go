// Package shaders holds the GLSL sources for the frame quad. Compile them to
// SPIR-V with go generate; framehost loads the .spv files at startup.
package shaders

//go:generate glslc quad.vert -o quad.vert.spv
//go:generate glslc quad.frag -o quad.frag.spv
