package framesync

import (
	"time"

	"github.com/loov/hrtime"
	log "github.com/sirupsen/logrus"
)

// FrameTimings summarizes CPU time spent in DrawFrame over a window of frames.
type FrameTimings struct {
	Frames  int
	Average time.Duration
	Worst   time.Duration
}

type frameStats struct {
	interval int
	logger   log.FieldLogger

	start time.Duration
	last  time.Duration

	frames int
	total  time.Duration
	worst  time.Duration
}

func newFrameStats(interval int, logger log.FieldLogger) *frameStats {
	return &frameStats{interval: interval, logger: logger}
}

func (s *frameStats) begin() {
	s.start = hrtime.Now()
}

func (s *frameStats) end(frame uint64) {
	s.last = hrtime.Since(s.start)
	s.frames++
	s.total += s.last
	if s.last > s.worst {
		s.worst = s.last
	}

	if s.interval <= 0 || s.frames < s.interval {
		return
	}

	timings := s.timings()
	s.logger.WithFields(log.Fields{
		"frame":   frame,
		"average": timings.Average,
		"worst":   timings.Worst,
	}).Info("frame timings")
	s.frames, s.total, s.worst = 0, 0, 0
}

func (s *frameStats) timings() FrameTimings {
	t := FrameTimings{Frames: s.frames, Worst: s.worst}
	if s.frames > 0 {
		t.Average = s.total / time.Duration(s.frames)
	}
	return t
}
