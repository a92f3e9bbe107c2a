package monitor

import "github.com/fuomag9/kabomba-probe/internal/models"

// TransitionPolicy decides how the first observation of a monitor is treated
type TransitionPolicy int

const (
	// NotifyFirstObservation treats unknown -> up/down as a change
	NotifyFirstObservation TransitionPolicy = iota
	// SuppressFirstObservation never fires for a monitor's first record
	SuppressFirstObservation
)

// ParseTransitionPolicy maps "notify" and "suppress" to a policy
func ParseTransitionPolicy(s string) TransitionPolicy {
	if s == "suppress" {
		return SuppressFirstObservation
	}
	return NotifyFirstObservation
}

// Transition is the result of comparing two consecutive statuses
type Transition struct {
	Previous models.Status `json:"previous"`
	Current  models.Status `json:"current"`
	Changed  bool          `json:"changed"`
	First    bool          `json:"first"`
}

// Detect reports a change iff next differs from previous
func Detect(previous, next models.Status, policy TransitionPolicy) Transition {
	t := Transition{
		Previous: previous,
		Current:  next,
		First:    previous == models.StatusUnknown,
		Changed:  next != previous,
	}
	if t.First && policy == SuppressFirstObservation {
		t.Changed = false
	}
	return t
}
