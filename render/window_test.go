package render

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// fakeWindow reports sizes[i] as its drawable size after i events.
type fakeWindow struct {
	sizes []core1_0.Extent2D
	waits int
	// closeAfter starts closing once this many events have arrived; 0 never
	// closes.
	closeAfter int
}

var _ Window = (*fakeWindow)(nil)

func (w *fakeWindow) GlobalDriver() (core1_0.GlobalDriver, error) {
	return nil, errors.New("no vulkan in tests")
}

func (w *fakeWindow) InstanceExtensions() []string { return nil }

func (w *fakeWindow) CreateSurface(core1_0.Instance, khr_surface.ExtensionDriver) (khr_surface.Surface, error) {
	return khr_surface.Surface{}, errors.New("no surfaces in tests")
}

func (w *fakeWindow) DrawableSize() (int, int) {
	size := w.sizes[min(w.waits, len(w.sizes)-1)]
	return size.Width, size.Height
}

func (w *fakeWindow) WaitEvent() { w.waits++ }

func (w *fakeWindow) Closing() bool {
	return w.closeAfter > 0 && w.waits >= w.closeAfter
}

func TestWaitForDrawableExtentBlocksThroughZero(t *testing.T) {
	window := &fakeWindow{sizes: []core1_0.Extent2D{{Width: 0, Height: 0}, {Width: 800, Height: 600}}}

	extent, err := waitForDrawableExtent(window)
	if err != nil {
		t.Fatal(err)
	}
	if extent != (core1_0.Extent2D{Width: 800, Height: 600}) {
		t.Errorf("extent = %v, want 800x600", extent)
	}
	if window.waits != 1 {
		t.Errorf("waited for %d events, want 1", window.waits)
	}
}

func TestWaitForDrawableExtentOneZeroSide(t *testing.T) {
	window := &fakeWindow{sizes: []core1_0.Extent2D{{Width: 640, Height: 0}, {Width: 0, Height: 480}, {Width: 640, Height: 480}}}

	extent, err := waitForDrawableExtent(window)
	if err != nil {
		t.Fatal(err)
	}
	if extent != (core1_0.Extent2D{Width: 640, Height: 480}) || window.waits != 2 {
		t.Errorf("extent = %v after %d events", extent, window.waits)
	}
}

func TestWaitForDrawableExtentNoWaitWhenUsable(t *testing.T) {
	window := &fakeWindow{sizes: []core1_0.Extent2D{{Width: 1, Height: 1}}}

	if _, err := waitForDrawableExtent(window); err != nil {
		t.Fatal(err)
	}
	if window.waits != 0 {
		t.Errorf("waited for %d events on a usable window", window.waits)
	}
}

func TestWaitForDrawableExtentWindowClosed(t *testing.T) {
	window := &fakeWindow{sizes: []core1_0.Extent2D{{Width: 0, Height: 0}}, closeAfter: 3}

	_, err := waitForDrawableExtent(window)
	if !errors.Is(err, ErrWindowClosed) {
		t.Fatalf("got %v, want ErrWindowClosed", err)
	}
	if window.waits != 3 {
		t.Errorf("waited for %d events, want 3", window.waits)
	}
}
