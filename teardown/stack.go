// Package teardown keeps scoped release guards for objects created in sequence.
//
// A constructor pushes a guard for every object it creates. If a later step fails, releasing
// the stack destroys everything created so far in reverse order; on success the guards are
// adopted by the owning object and released when it is closed.
package teardown

import (
	log "github.com/sirupsen/logrus"
)

type guard struct {
	name    string
	release func()
}

// Stack is a LIFO list of release guards. The zero value is ready to use.
type Stack struct {
	guards []guard
	logger log.FieldLogger
}

// SetLogger enables a debug line for every guard that is released.
func (s *Stack) SetLogger(logger log.FieldLogger) {
	s.logger = logger
}

// Push registers release to run when the stack is released. A nil release is ignored.
func (s *Stack) Push(name string, release func()) {
	if release == nil {
		return
	}
	s.guards = append(s.guards, guard{name: name, release: release})
}

// Len reports the number of pending guards.
func (s *Stack) Len() int {
	return len(s.guards)
}

// Adopt moves every guard of other on top of s, leaving other empty.
func (s *Stack) Adopt(other *Stack) {
	if other == nil || other == s {
		return
	}
	s.guards = append(s.guards, other.guards...)
	other.guards = nil
}

// Release runs all guards, newest first. A released stack is empty, so calling Release twice
// is harmless.
func (s *Stack) Release() {
	for len(s.guards) > 0 {
		last := len(s.guards) - 1
		g := s.guards[last]
		s.guards = s.guards[:last]

		if s.logger != nil {
			s.logger.WithField("resource", g.name).Debug("releasing")
		}
		g.release()
	}
}
