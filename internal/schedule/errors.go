package schedule

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoValidSchedule matches any *NoValidScheduleError via errors.Is.
var ErrNoValidSchedule = errors.New("no valid next time found")

// ErrNeverFires is recorded for expressions that parse but have no
// upcoming occurrence (e.g. "0 0 30 2 *").
var ErrNeverFires = errors.New("schedule never fires")

// NoValidScheduleError reports that no schedule in the store produced an
// occurrence. Failures holds one outcome per store entry.
type NoValidScheduleError struct {
	Failures []Outcome
}

func (e *NoValidScheduleError) Error() string {
	if len(e.Failures) == 0 {
		return ErrNoValidSchedule.Error()
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("[%d] %v", f.Index, f.Err))
	}
	return fmt.Sprintf("%s: %s", ErrNoValidSchedule.Error(), strings.Join(parts, "; "))
}

func (e *NoValidScheduleError) Is(target error) bool { return target == ErrNoValidSchedule }

// Unwrap exposes the per-schedule errors.
func (e *NoValidScheduleError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			out = append(out, f.Err)
		}
	}
	return out
}
