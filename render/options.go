package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

const (
	DefaultFramesInFlight = 2
	MaxFramesInFlight     = 4
)

// Options configures a Renderer. The zero value is not usable; start from
// DefaultOptions.
type Options struct {
	AppName          string
	EnableValidation bool
	FramesInFlight   int

	VertexShader   []uint32
	FragmentShader []uint32

	ClearColor      [4]float32
	PreferredFormat core1_0.Format
	// NearestFilter samples the frame texture without interpolation, which
	// keeps emulated pixels sharp when scaled up.
	NearestFilter bool
	// PreserveAspect letterboxes the frame texture instead of stretching it
	// over the whole swapchain extent.
	PreserveAspect bool
}

func DefaultOptions() Options {
	return Options{
		AppName:         "framehost",
		FramesInFlight:  DefaultFramesInFlight,
		ClearColor:      [4]float32{0, 0, 0, 1},
		PreferredFormat: core1_0.FormatB8G8R8A8SRGB,
		NearestFilter:   true,
		PreserveAspect:  true,
	}
}

func (o Options) Validate() error {
	if o.FramesInFlight < 1 || o.FramesInFlight > MaxFramesInFlight {
		return errors.Newf("frames in flight must be between 1 and %d, got %d", MaxFramesInFlight, o.FramesInFlight)
	}
	if len(o.VertexShader) == 0 {
		return errors.New("vertex shader bytecode is empty")
	}
	if len(o.FragmentShader) == 0 {
		return errors.New("fragment shader bytecode is empty")
	}
	return nil
}
