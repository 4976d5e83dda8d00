package checkpoint

import (
	"net/http"

	"checkpoint-gateway/backend/internal/dodgeball"
)

// Decision is the categorical result of a checkpoint call.
type Decision string

const (
	Allowed      Decision = "ALLOWED"
	Running      Decision = "RUNNING"
	Denied       Decision = "DENIED"
	Undetermined Decision = "UNDETERMINED"
)

// HTTPStatus maps a decision onto the response status code.
func (d Decision) HTTPStatus() int {
	switch d {
	case Allowed:
		return http.StatusOK
	case Running:
		return http.StatusAccepted
	case Denied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Predicate tests a checkpoint outcome for one category.
type Predicate func(*dodgeball.CheckpointResponse) bool

// Predicates are the outcome tests supplied by the decision engine.
type Predicates struct {
	IsAllowed Predicate
	IsRunning Predicate
	IsDenied  Predicate
}

// DefaultPredicates uses the engine client's own outcome tests.
var DefaultPredicates = Predicates{
	IsAllowed: dodgeball.IsAllowed,
	IsRunning: dodgeball.IsRunning,
	IsDenied:  dodgeball.IsDenied,
}

// Classify evaluates the predicates in fixed order (allowed, running, denied)
// and returns the first match. The engine does not guarantee the predicates
// are mutually exclusive, so the order decides overlapping outcomes.
func Classify(p Predicates, outcome *dodgeball.CheckpointResponse) Decision {
	if outcome == nil {
		return Undetermined
	}
	rules := []struct {
		test     Predicate
		decision Decision
	}{
		{p.IsAllowed, Allowed},
		{p.IsRunning, Running},
		{p.IsDenied, Denied},
	}
	for _, rule := range rules {
		if rule.test != nil && rule.test(outcome) {
			return rule.decision
		}
	}
	return Undetermined
}
