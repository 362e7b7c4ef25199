package transcript

import "fmt"

// ConflictError is returned when a version switch is requested for a turn
// that already has one in flight. The transcript is left untouched.
type ConflictError struct {
	Index int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version switch already in flight for turn %d", e.Index)
}

// ErrNoPendingExchange is returned when a terminal envelope arrives but the
// transcript has no optimistic pair to reconcile.
var ErrNoPendingExchange = fmt.Errorf("no pending exchange to reconcile")
