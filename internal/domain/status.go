package domain

import "fmt"

// Status is the tracking state of one recipient in one campaign run.
type Status string

const (
	StatusQueued  Status = "QUEUED"
	StatusSending Status = "SENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// transitions lists, for each target status, the statuses it may be entered from.
// Stores use it to guard updates; the Postgres store mirrors it in SQL.
var transitions = map[Status][]Status{
	StatusSending: {StatusQueued},
	StatusSent:    {StatusSending},
	StatusFailed:  {StatusQueued, StatusSending},
}

func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusSending, StatusSent, StatusFailed:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// CanTransitionTo reports whether s -> next is allowed. Staying in the same
// non-terminal state is allowed so that bookkeeping patches (retry counts) pass.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return !s.Terminal()
	}
	for _, from := range transitions[next] {
		if from == s {
			return true
		}
	}
	return false
}

// Predecessors returns the statuses next may be entered from, including next
// itself when it is non-terminal.
func Predecessors(next Status) []Status {
	out := append([]Status(nil), transitions[next]...)
	if !next.Terminal() {
		out = append(out, next)
	}
	return out
}

// CheckTransition returns ErrInvalidTransition when from -> to is not allowed.
func CheckTransition(from, to Status) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Ptr is a small helper for building patches.
func (s Status) Ptr() *Status { return &s }
