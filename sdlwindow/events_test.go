package sdlwindow

import (
	"testing"

	"github.com/veandco/go-sdl2/sdl"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		event sdl.Event
		want  action
	}{
		{"nil", nil, actionNone},
		{"quit", &sdl.QuitEvent{Type: sdl.QUIT}, actionClose},
		{"escape down", &sdl.KeyboardEvent{Type: sdl.KEYDOWN, Keysym: sdl.Keysym{Sym: sdl.K_ESCAPE}}, actionClose},
		{"escape up", &sdl.KeyboardEvent{Type: sdl.KEYUP, Keysym: sdl.Keysym{Sym: sdl.K_ESCAPE}}, actionNone},
		{"other key", &sdl.KeyboardEvent{Type: sdl.KEYDOWN, Keysym: sdl.Keysym{Sym: sdl.K_a}}, actionNone},
		{"window close", &sdl.WindowEvent{Type: sdl.WINDOWEVENT, Event: sdl.WINDOWEVENT_CLOSE}, actionClose},
		{"resized", &sdl.WindowEvent{Type: sdl.WINDOWEVENT, Event: sdl.WINDOWEVENT_RESIZED}, actionResize},
		{"size changed", &sdl.WindowEvent{Type: sdl.WINDOWEVENT, Event: sdl.WINDOWEVENT_SIZE_CHANGED}, actionResize},
		{"minimized", &sdl.WindowEvent{Type: sdl.WINDOWEVENT, Event: sdl.WINDOWEVENT_MINIMIZED}, actionMinimize},
		{"restored", &sdl.WindowEvent{Type: sdl.WINDOWEVENT, Event: sdl.WINDOWEVENT_RESTORED}, actionRestore},
		{"moved", &sdl.WindowEvent{Type: sdl.WINDOWEVENT, Event: sdl.WINDOWEVENT_MOVED}, actionNone},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := classify(test.event); got != test.want {
				t.Errorf("classify() = %d, want %d", got, test.want)
			}
		})
	}
}

func TestApplyTracksState(t *testing.T) {
	w := &Window{}

	w.apply(&sdl.WindowEvent{Type: sdl.WINDOWEVENT, Event: sdl.WINDOWEVENT_MINIMIZED})
	if !w.Minimized() {
		t.Fatal("expected window to be minimized")
	}

	w.apply(&sdl.WindowEvent{Type: sdl.WINDOWEVENT, Event: sdl.WINDOWEVENT_RESTORED})
	if w.Minimized() {
		t.Fatal("expected window to be restored")
	}
	if !w.resized {
		t.Fatal("restoring should count as a resize")
	}

	w.apply(&sdl.QuitEvent{Type: sdl.QUIT})
	if !w.Closing() {
		t.Fatal("expected window to be closing")
	}
}
