package render

import (
	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
)

type LoopState int

const (
	StateIdle LoopState = iota
	StateWaitFence
	StateAcquire
	StateRecord
	StateSubmit
	StatePresent
	StateOutOfDate
)

func (s LoopState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateWaitFence:
		return "WaitFence"
	case StateAcquire:
		return "Acquire"
	case StateRecord:
		return "Record"
	case StateSubmit:
		return "Submit"
	case StatePresent:
		return "Present"
	case StateOutOfDate:
		return "OutOfDate"
	}
	return "Unknown"
}

// PresentStatus is how the presentation engine judged the swapchain during
// acquire or present.
type PresentStatus int

const (
	PresentOptimal PresentStatus = iota
	PresentSuboptimal
	PresentOutOfDate
)

func (s PresentStatus) String() string {
	switch s {
	case PresentOptimal:
		return "optimal"
	case PresentSuboptimal:
		return "suboptimal"
	case PresentOutOfDate:
		return "out of date"
	}
	return "unknown"
}

// frameBackend is the GPU side of one frame. Renderer implements it against
// Vulkan; tests substitute a fake.
type frameBackend interface {
	waitForSlot(slot int) error
	acquireImage(slot int) (imageIndex int, status PresentStatus, err error)
	resetSlot(slot int) error
	recordSlot(slot int, imageIndex int) error
	submitSlot(slot int) error
	presentImage(slot int, imageIndex int) (PresentStatus, error)
	// recreateSwapchain rebuilds the swapchain at the window's current
	// drawable size. It returns ErrWindowClosed if the window closed while
	// waiting for a usable size.
	recreateSwapchain() error
}

// RenderLoop drives one frame at a time through wait, acquire, record,
// submit and present, and rebuilds the swapchain when presentation reports
// it out of date or suboptimal or a resize was signaled.
type RenderLoop struct {
	backend frameBackend
	frames  *frameRing
	state   LoopState

	resizePending    bool
	recreateDeferred bool

	stats *FrameStats
}

func newRenderLoop(backend frameBackend, frames *frameRing) *RenderLoop {
	return &RenderLoop{
		backend: backend,
		frames:  frames,
		stats:   newFrameStats(statsLogInterval),
	}
}

func (l *RenderLoop) State() LoopState   { return l.state }
func (l *RenderLoop) Stats() *FrameStats { return l.stats }

// NotifyResize asks for the swapchain to be rebuilt after the next present.
func (l *RenderLoop) NotifyResize() {
	l.resizePending = true
}

// DrawFrame runs one full cycle of the loop. Out-of-date and suboptimal
// swapchains are recovered here and never returned as errors.
func (l *RenderLoop) DrawFrame() error {
	if l.recreateDeferred {
		done, err := l.recreate()
		if err != nil || !done {
			return err
		}
	}

	frameStart := hrtime.Now()
	slot := l.frames.Current()

	l.state = StateWaitFence
	err := l.backend.waitForSlot(slot)
	if err != nil {
		return err
	}
	fenceWait := hrtime.Since(frameStart)

	l.state = StateAcquire
	imageIndex, acquireStatus, err := l.backend.acquireImage(slot)
	if err != nil {
		return err
	}
	if acquireStatus == PresentOutOfDate {
		// The fence was not reset and nothing was submitted, so the slot is
		// still free to use next time.
		_, err = l.recreate()
		return err
	}

	l.state = StateRecord
	err = l.backend.resetSlot(slot)
	if err != nil {
		return err
	}
	err = l.backend.recordSlot(slot, imageIndex)
	if err != nil {
		return err
	}

	l.state = StateSubmit
	err = l.backend.submitSlot(slot)
	if err != nil {
		return err
	}

	l.state = StatePresent
	presentStatus, err := l.backend.presentImage(slot, imageIndex)
	l.frames.Advance()
	if err != nil {
		return err
	}

	l.stats.record(hrtime.Since(frameStart), fenceWait)

	if presentStatus != PresentOptimal || acquireStatus == PresentSuboptimal || l.resizePending {
		Logger().Debug("swapchain needs rebuilding",
			"acquire", acquireStatus,
			"present", presentStatus,
			"resize", l.resizePending)
		_, err = l.recreate()
		return err
	}

	l.state = StateIdle
	return nil
}

// recreate rebuilds the swapchain. If the window closed while waiting for a
// usable size, the rebuild is put off to the next DrawFrame and done is false.
func (l *RenderLoop) recreate() (done bool, err error) {
	l.state = StateOutOfDate

	err = l.backend.recreateSwapchain()
	if errors.Is(err, ErrWindowClosed) {
		Logger().Warn("window closing, swapchain rebuild deferred")
		l.recreateDeferred = true
		l.state = StateIdle
		return false, nil
	}
	if err != nil {
		return false, err
	}

	l.recreateDeferred = false
	l.resizePending = false
	l.state = StateIdle
	return true, nil
}
