package framesync

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
)

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil", nil, false},
		{"stale", errors.Mark(errors.New("acquire"), ErrSurfaceStale), false},
		{"wrapped stale", errors.Wrap(errors.Mark(errors.New("acquire"), ErrSurfaceStale), "frame"), false},
		{"submission", errors.Mark(errors.New("queue"), ErrSubmission), true},
		{"creation", creationError(errors.New("oom"), "fence %d", 1), true},
		{"canceled", errors.WithStack(context.Canceled), true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := IsFatal(test.err); got != test.fatal {
				t.Errorf("got %v, want %v", got, test.fatal)
			}
		})
	}
}

func TestCreationErrorKeepsCause(t *testing.T) {
	cause := errors.New("out of device memory")
	err := creationError(cause, "creating fence for frame slot %d", 0)

	if !errors.Is(err, ErrCreation) {
		t.Error("not marked as creation failure")
	}
	if !errors.Is(err, cause) {
		t.Error("cause lost")
	}
}
