// Package sdlwindow provides the SDL2 window that framehost presents into.
package sdlwindow

import (
	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"
)

// Window is a resizable SDL window with Vulkan support. It tracks the window
// state the render loop cares about as events are pumped.
type Window struct {
	window *sdl.Window

	closing   bool
	resized   bool
	minimized bool
}

// New initializes SDL video and opens a window. Close must be called to
// release it.
func New(title string, width, height int) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "init sdl video")
	}

	window, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, int32(width), int32(height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "create window")
	}

	return &Window{window: window}, nil
}

func (w *Window) GlobalDriver() (core1_0.GlobalDriver, error) {
	return core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
}

func (w *Window) InstanceExtensions() []string {
	return w.window.VulkanGetInstanceExtensions()
}

func (w *Window) CreateSurface(instance core1_0.Instance, surfaceDriver khr_surface.ExtensionDriver) (khr_surface.Surface, error) {
	return vkng_sdl2.CreateSurface(instance, surfaceDriver, w.window)
}

func (w *Window) DrawableSize() (width, height int) {
	widthInt, heightInt := w.window.VulkanGetDrawableSize()
	return int(widthInt), int(heightInt)
}

// WaitEvent blocks for one event and applies it.
func (w *Window) WaitEvent() {
	w.apply(sdl.WaitEvent())
}

func (w *Window) Closing() bool { return w.closing }

// Minimized reports whether the window is iconified. Nothing should be drawn
// while it is.
func (w *Window) Minimized() bool { return w.minimized }

// Poll applies every pending event and reports whether the drawable was
// resized since the last call.
func (w *Window) Poll() (resized bool) {
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		w.apply(event)
	}

	resized = w.resized
	w.resized = false
	return resized
}

func (w *Window) SetTitle(title string) {
	w.window.SetTitle(title)
}

func (w *Window) apply(event sdl.Event) {
	switch classify(event) {
	case actionClose:
		w.closing = true
	case actionResize:
		w.resized = true
	case actionMinimize:
		w.minimized = true
	case actionRestore:
		w.minimized = false
		w.resized = true
	}
}

func (w *Window) Close() {
	if w.window != nil {
		w.window.Destroy()
		w.window = nil
	}
	sdl.Quit()
}
