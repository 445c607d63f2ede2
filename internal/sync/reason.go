package sync

import (
	"fmt"
	"strings"
)

// Reason says why a sync run was requested
type Reason string

const (
	ReasonManual     Reason = "manual"
	ReasonAuthChange Reason = "auth-change"
	ReasonStartup    Reason = "startup"
	ReasonForeground Reason = "foreground"
	ReasonMutation   Reason = "mutation"
	ReasonInterval   Reason = "interval"
)

// Reasons lists every known trigger reason
var Reasons = []Reason{
	ReasonManual,
	ReasonAuthChange,
	ReasonStartup,
	ReasonForeground,
	ReasonMutation,
	ReasonInterval,
}

// ParseReason accepts a reason name case-insensitively
func ParseReason(s string) (Reason, error) {
	r := Reason(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Reasons {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown sync reason %q", s)
}

// skipsThrottle reports whether the reason always runs regardless of the
// time since the last sync
func (r Reason) skipsThrottle() bool {
	return r == ReasonManual || r == ReasonAuthChange
}

// Outcome is what SyncAll did with a request
type Outcome int

const (
	// OutcomeRan means the call executed a run and returned after it
	OutcomeRan Outcome = iota
	// OutcomeQueued means a run was in flight; a follow-up run will cover it
	OutcomeQueued
	// OutcomeThrottled means the reason waits for the throttle window to expire
	OutcomeThrottled
	// OutcomeDropped means a manual request arrived while a run was in flight
	OutcomeDropped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRan:
		return "ran"
	case OutcomeQueued:
		return "queued"
	case OutcomeThrottled:
		return "throttled"
	case OutcomeDropped:
		return "dropped"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}
