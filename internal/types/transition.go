package types

// complaintTransitions is the complaint state machine. Resolved is terminal
// and nothing leads back to pending.
var complaintTransitions = map[Status][]Status{
	StatusPending:   {StatusResolved, StatusEscalated},
	StatusEscalated: {StatusResolved},
	StatusResolved:  {},
}

// AllowedTransitions returns the statuses reachable from current in one step.
func AllowedTransitions(current Status) []Status {
	next := complaintTransitions[current]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// ValidateTransition returns nil when current -> target is an edge of the
// complaint state machine, and an *InvalidTransitionError otherwise.
func ValidateTransition(id int64, current, target Status) error {
	allowed, ok := complaintTransitions[current]
	if !ok {
		return &InvalidTransitionError{ComplaintID: id, From: current, To: target, Reason: "unknown current status"}
	}
	if _, known := complaintTransitions[target]; !known {
		return &InvalidTransitionError{ComplaintID: id, From: current, To: target, Reason: "unknown target status"}
	}
	for _, s := range allowed {
		if s == target {
			return nil
		}
	}
	return &InvalidTransitionError{ComplaintID: id, From: current, To: target}
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s Status) bool {
	next, ok := complaintTransitions[s]
	return ok && len(next) == 0
}
