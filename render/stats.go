package render

import (
	"time"
)

const statsLogInterval = 600

// FrameStats accumulates frame timings. Fence wait is the time spent blocked
// on the slot's fence, so a high share of it means the GPU is the bottleneck.
type FrameStats struct {
	Frames        uint64
	LastFrame     time.Duration
	LastFenceWait time.Duration
	TotalFrame    time.Duration
	TotalWait     time.Duration
	MaxFrame      time.Duration

	logEvery uint64
}

func newFrameStats(logEvery uint64) *FrameStats {
	return &FrameStats{logEvery: logEvery}
}

func (s *FrameStats) record(frame, fenceWait time.Duration) {
	s.Frames++
	s.LastFrame = frame
	s.LastFenceWait = fenceWait
	s.TotalFrame += frame
	s.TotalWait += fenceWait
	if frame > s.MaxFrame {
		s.MaxFrame = frame
	}

	if s.logEvery > 0 && s.Frames%s.logEvery == 0 {
		Logger().Debug("frame stats",
			"frames", s.Frames,
			"avgFrame", s.AverageFrame(),
			"avgFenceWait", s.AverageFenceWait(),
			"maxFrame", s.MaxFrame)
	}
}

func (s *FrameStats) AverageFrame() time.Duration {
	if s.Frames == 0 {
		return 0
	}
	return s.TotalFrame / time.Duration(s.Frames)
}

func (s *FrameStats) AverageFenceWait() time.Duration {
	if s.Frames == 0 {
		return 0
	}
	return s.TotalWait / time.Duration(s.Frames)
}
