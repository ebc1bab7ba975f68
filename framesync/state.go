package framesync

import "fmt"

// FrameState is the position of the loop inside one iteration.
type FrameState int

const (
	StateIdle FrameState = iota
	StateAcquiring
	StateStale
	StateAcquired
	StateRecording
	StateSubmitted
	StatePresenting
	// StateFailed is entered on a fatal error and never left.
	StateFailed
)

var stateNames = map[FrameState]string{
	StateIdle:       "idle",
	StateAcquiring:  "acquiring",
	StateStale:      "stale",
	StateAcquired:   "acquired",
	StateRecording:  "recording",
	StateSubmitted:  "submitted",
	StatePresenting: "presenting",
	StateFailed:     "failed",
}

func (s FrameState) String() string {
	name, ok := stateNames[s]
	if !ok {
		return fmt.Sprintf("FrameState(%d)", int(s))
	}
	return name
}

var transitions = map[FrameState][]FrameState{
	StateIdle:       {StateAcquiring},
	StateAcquiring:  {StateStale, StateAcquired},
	StateStale:      {StateIdle},
	StateAcquired:   {StateRecording},
	StateRecording:  {StateSubmitted},
	StateSubmitted:  {StatePresenting},
	StatePresenting: {StateIdle},
}

// CanTransition reports whether the loop may move from s to next.
func (s FrameState) CanTransition(next FrameState) bool {
	if next == StateFailed {
		return s != StateFailed
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// transition panics on a move the loop should never make.
func (s *FrameState) transition(next FrameState) {
	if !s.CanTransition(next) {
		panic(fmt.Sprintf("invalid frame state transition %s -> %s", *s, next))
	}
	*s = next
}
