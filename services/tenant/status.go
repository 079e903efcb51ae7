package tenant

import "errors"

var (
	ErrIllegalTransition = errors.New("illegal tenant status transition")
	// ErrStatusChanged means the row no longer carries the status the caller
	// observed; the event should be redelivered and re-evaluated.
	ErrStatusChanged = errors.New("tenant status changed concurrently")
)

var transitions = map[Status][]Status{
	Trial:     {Active, Cancelled},
	Active:    {Suspended, Cancelled},
	Suspended: {Active, Cancelled},
}

// CanTransition reports whether from -> to is a documented edge. Writing the
// current status again is always allowed.
func CanTransition(from, to Status) bool {
	if to.String() == "" {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
