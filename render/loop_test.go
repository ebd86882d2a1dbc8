package render

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// fakeBackend simulates the GPU: a submitted slot stays pending until its
// fence is waited on again.
type fakeBackend struct {
	t     *testing.T
	slots int

	fenceSignaled map[int]bool
	pending       map[int]bool
	maxPending    int

	acquireStatuses []PresentStatus
	presentStatuses []PresentStatus
	acquireErr      error
	submitErr       error
	recreateErr     []error

	waited    []int
	acquired  []int
	submitted []int
	presented []int
	recreates int
	nextImage int
	window    *fakeWindow
	extents   []core1_0.Extent2D
}

func newFakeBackend(t *testing.T, slots int) *fakeBackend {
	b := &fakeBackend{
		t:             t,
		slots:         slots,
		fenceSignaled: map[int]bool{},
		pending:       map[int]bool{},
	}
	for i := 0; i < slots; i++ {
		b.fenceSignaled[i] = true
	}
	return b
}

func (b *fakeBackend) waitForSlot(slot int) error {
	b.waited = append(b.waited, slot)
	// The GPU finishes the slot's previous work.
	delete(b.pending, slot)
	b.fenceSignaled[slot] = true
	return nil
}

func (b *fakeBackend) acquireImage(slot int) (int, PresentStatus, error) {
	b.acquired = append(b.acquired, slot)
	if b.acquireErr != nil {
		return 0, PresentOptimal, b.acquireErr
	}
	status := PresentOptimal
	if len(b.acquireStatuses) > 0 {
		status = b.acquireStatuses[0]
		b.acquireStatuses = b.acquireStatuses[1:]
	}
	image := b.nextImage
	b.nextImage = (b.nextImage + 1) % 3
	return image, status, nil
}

func (b *fakeBackend) resetSlot(slot int) error {
	if !b.fenceSignaled[slot] {
		b.t.Fatalf("slot %d reset while its fence is unsignaled", slot)
	}
	b.fenceSignaled[slot] = false
	return nil
}

func (b *fakeBackend) recordSlot(slot int, imageIndex int) error {
	if b.pending[slot] {
		b.t.Fatalf("slot %d re-recorded while still pending on the GPU", slot)
	}
	return nil
}

func (b *fakeBackend) submitSlot(slot int) error {
	if b.submitErr != nil {
		return b.submitErr
	}
	b.submitted = append(b.submitted, slot)
	b.pending[slot] = true
	if len(b.pending) > b.maxPending {
		b.maxPending = len(b.pending)
	}
	return nil
}

func (b *fakeBackend) presentImage(slot int, imageIndex int) (PresentStatus, error) {
	b.presented = append(b.presented, imageIndex)
	status := PresentOptimal
	if len(b.presentStatuses) > 0 {
		status = b.presentStatuses[0]
		b.presentStatuses = b.presentStatuses[1:]
	}
	return status, nil
}

func (b *fakeBackend) recreateSwapchain() error {
	b.recreates++
	if len(b.recreateErr) > 0 {
		err := b.recreateErr[0]
		b.recreateErr = b.recreateErr[1:]
		if err != nil {
			return err
		}
	}
	if b.window != nil {
		extent, err := waitForDrawableExtent(b.window)
		if err != nil {
			return err
		}
		b.extents = append(b.extents, extent)
	}
	return nil
}

func newTestLoop(backend *fakeBackend) *RenderLoop {
	return newRenderLoop(backend, newFrameRing(backend.slots))
}

func drawFrames(t *testing.T, loop *RenderLoop, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := loop.DrawFrame(); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
}

func TestDrawFrameAlternatesSlots(t *testing.T) {
	backend := newFakeBackend(t, 2)
	loop := newTestLoop(backend)

	drawFrames(t, loop, 3)

	want := []int{0, 1, 0}
	for i, slot := range want {
		if backend.waited[i] != slot {
			t.Errorf("frame %d waited on slot %d, want %d", i, backend.waited[i], slot)
		}
		if backend.submitted[i] != slot {
			t.Errorf("frame %d submitted slot %d, want %d", i, backend.submitted[i], slot)
		}
	}
	if loop.State() != StateIdle {
		t.Errorf("state = %s, want Idle", loop.State())
	}
	if backend.recreates != 0 {
		t.Errorf("recreated %d times on a healthy swapchain", backend.recreates)
	}
}

func TestAcquireOutOfDateSkipsSubmission(t *testing.T) {
	backend := newFakeBackend(t, 2)
	backend.acquireStatuses = []PresentStatus{PresentOutOfDate}
	loop := newTestLoop(backend)

	if err := loop.DrawFrame(); err != nil {
		t.Fatal(err)
	}

	if len(backend.submitted) != 0 {
		t.Errorf("submitted %v after an out-of-date acquire", backend.submitted)
	}
	if len(backend.presented) != 0 {
		t.Errorf("presented %v after an out-of-date acquire", backend.presented)
	}
	if backend.recreates != 1 {
		t.Errorf("recreated %d times, want 1", backend.recreates)
	}
	if !backend.fenceSignaled[0] {
		t.Error("fence of slot 0 was reset without a submission")
	}
	if loop.frames.Current() != 0 {
		t.Errorf("slot advanced to %d without a submission", loop.frames.Current())
	}

	// The next frame reuses slot 0 and goes through normally.
	drawFrames(t, loop, 1)
	if len(backend.submitted) != 1 || backend.submitted[0] != 0 {
		t.Errorf("submitted %v, want [0]", backend.submitted)
	}
}

func TestPendingFramesBounded(t *testing.T) {
	for _, slots := range []int{1, 2, 3, MaxFramesInFlight} {
		backend := newFakeBackend(t, slots)
		loop := newTestLoop(backend)

		drawFrames(t, loop, 20)

		if backend.maxPending > slots {
			t.Errorf("%d slots: up to %d frames pending", slots, backend.maxPending)
		}
		if backend.maxPending != slots {
			t.Errorf("%d slots: only %d frames were ever pending", slots, backend.maxPending)
		}
	}
}

func TestRecreateAfterPresent(t *testing.T) {
	tests := []struct {
		name    string
		acquire []PresentStatus
		present []PresentStatus
		resize  bool
		want    int
	}{
		{name: "optimal", want: 0},
		{name: "present suboptimal", present: []PresentStatus{PresentSuboptimal}, want: 1},
		{name: "present out of date", present: []PresentStatus{PresentOutOfDate}, want: 1},
		{name: "acquire suboptimal", acquire: []PresentStatus{PresentSuboptimal}, want: 1},
		{name: "resize", resize: true, want: 1},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			backend := newFakeBackend(t, 2)
			backend.acquireStatuses = test.acquire
			backend.presentStatuses = test.present
			loop := newTestLoop(backend)
			if test.resize {
				loop.NotifyResize()
			}

			drawFrames(t, loop, 1)

			if backend.recreates != test.want {
				t.Errorf("recreated %d times, want %d", backend.recreates, test.want)
			}
			// The frame was submitted and presented before any rebuild.
			if len(backend.presented) != 1 {
				t.Errorf("presented %d frames, want 1", len(backend.presented))
			}
			if loop.frames.Current() != 1 {
				t.Errorf("current slot = %d, want 1", loop.frames.Current())
			}

			drawFrames(t, loop, 1)
			if backend.recreates != test.want {
				t.Errorf("a healthy second frame recreated again (%d total)", backend.recreates)
			}
		})
	}
}

func TestDeferredRecreateWhenWindowCloses(t *testing.T) {
	backend := newFakeBackend(t, 2)
	backend.acquireStatuses = []PresentStatus{PresentOutOfDate}
	backend.recreateErr = []error{ErrWindowClosed}
	loop := newTestLoop(backend)

	if err := loop.DrawFrame(); err != nil {
		t.Fatalf("window closing should not be an error: %v", err)
	}
	if backend.recreates != 1 {
		t.Fatalf("recreated %d times, want 1", backend.recreates)
	}

	// The next call retries the rebuild before touching the slot.
	drawFrames(t, loop, 1)
	if backend.recreates != 2 {
		t.Errorf("recreated %d times, want 2", backend.recreates)
	}
	if len(backend.submitted) != 1 {
		t.Errorf("submitted %d frames, want 1", len(backend.submitted))
	}
}

func TestFatalErrorsPropagate(t *testing.T) {
	acquireFailure := frameFailure("acquire next image", 0, errors.New("device lost"))

	backend := newFakeBackend(t, 2)
	backend.acquireErr = acquireFailure
	loop := newTestLoop(backend)

	err := loop.DrawFrame()
	if !errors.Is(err, acquireFailure) {
		t.Fatalf("got %v, want the acquire failure", err)
	}
	if !IsFatal(err) {
		t.Error("acquire failure should be fatal")
	}
	if backend.recreates != 0 {
		t.Error("a fatal acquire should not trigger a rebuild")
	}

	backend = newFakeBackend(t, 2)
	backend.submitErr = frameFailure("submit frame", 0, errors.New("out of memory"))
	loop = newTestLoop(backend)

	err = loop.DrawFrame()
	if KindOf(err) != KindFatalFrame {
		t.Fatalf("kind = %s, want fatal-frame", KindOf(err))
	}
	if loop.frames.Current() != 0 {
		t.Error("slot advanced after a failed submission")
	}

	backend = newFakeBackend(t, 2)
	backend.presentStatuses = []PresentStatus{PresentOutOfDate}
	backend.recreateErr = []error{fatalInit("create swapchain", 0, errors.New("surface lost"))}
	loop = newTestLoop(backend)

	err = loop.DrawFrame()
	if KindOf(err) != KindFatalInit {
		t.Fatalf("kind = %s, want fatal-init", KindOf(err))
	}
}

func TestRecreateWaitsForDrawableSize(t *testing.T) {
	window := &fakeWindow{sizes: []core1_0.Extent2D{{Width: 0, Height: 0}, {Width: 800, Height: 600}}}
	backend := newFakeBackend(t, 2)
	backend.window = window
	backend.acquireStatuses = []PresentStatus{PresentOutOfDate}
	loop := newTestLoop(backend)

	drawFrames(t, loop, 1)

	if window.waits != 1 {
		t.Errorf("waited for %d events, want 1", window.waits)
	}
	if len(backend.extents) != 1 || backend.extents[0] != (core1_0.Extent2D{Width: 800, Height: 600}) {
		t.Errorf("recreated with %v, want [800x600]", backend.extents)
	}
}

func TestFrameStatsRecorded(t *testing.T) {
	backend := newFakeBackend(t, 2)
	loop := newTestLoop(backend)

	drawFrames(t, loop, 5)

	if loop.Stats().Frames != 5 {
		t.Errorf("stats counted %d frames, want 5", loop.Stats().Frames)
	}
}

func TestLoopStateString(t *testing.T) {
	if StateOutOfDate.String() != "OutOfDate" {
		t.Errorf("got %q", StateOutOfDate.String())
	}
	if LoopState(99).String() != "Unknown" {
		t.Errorf("got %q", LoopState(99).String())
	}
	if PresentSuboptimal.String() != "suboptimal" {
		t.Errorf("got %q", PresentSuboptimal.String())
	}
}

func TestPresentStatusFor(t *testing.T) {
	driverErr := errors.New("driver error")

	tests := []struct {
		name    string
		res     common.VkResult
		err     error
		want    PresentStatus
		wantErr bool
	}{
		{"plain success", core1_0.VKSuccess, nil, PresentOptimal, false},
		{"suboptimal", khr_swapchain.VKSuboptimal, nil, PresentSuboptimal, false},
		{"suboptimal with error", khr_swapchain.VKSuboptimal, driverErr, PresentSuboptimal, false},
		{"out of date", khr_swapchain.VKErrorOutOfDate, driverErr, PresentOutOfDate, false},
		{"out of date without error", khr_swapchain.VKErrorOutOfDate, nil, PresentOutOfDate, false},
		{"device lost", core1_0.VKErrorDeviceLost, driverErr, PresentOptimal, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			status, err := presentStatusFor(test.res, test.err)
			if status != test.want {
				t.Errorf("status = %s, want %s", status, test.want)
			}
			if (err != nil) != test.wantErr {
				t.Errorf("err = %v, want error %v", err, test.wantErr)
			}
			if test.wantErr && !errors.Is(err, driverErr) {
				t.Errorf("err = %v, want the driver error", err)
			}
		})
	}
}
