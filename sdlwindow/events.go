package sdlwindow

import (
	"github.com/veandco/go-sdl2/sdl"
)

type action int

const (
	actionNone action = iota
	actionClose
	actionResize
	actionMinimize
	actionRestore
)

// classify maps an SDL event to what it means for the renderer.
func classify(event sdl.Event) action {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		return actionClose
	case *sdl.KeyboardEvent:
		if e.Type == sdl.KEYDOWN && e.Keysym.Sym == sdl.K_ESCAPE {
			return actionClose
		}
	case *sdl.WindowEvent:
		switch e.Event {
		case sdl.WINDOWEVENT_CLOSE:
			return actionClose
		case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
			return actionResize
		case sdl.WINDOWEVENT_MINIMIZED:
			return actionMinimize
		case sdl.WINDOWEVENT_RESTORED, sdl.WINDOWEVENT_MAXIMIZED:
			return actionRestore
		}
	}
	return actionNone
}
