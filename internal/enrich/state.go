package enrich

import "fmt"

// State is the enrichment state of one domain within a run.
type State int

const (
	StatePending State = iota
	StateFetching
	StateSucceeded
	StateFailed
	StateChecked
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFetching:
		return "fetching"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateChecked:
		return "checked"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// transitions lists the legal moves. Pending may go straight to Failed when
// the host cannot be fetched at all.
var transitions = map[State][]State{
	StatePending:   {StateFetching, StateFailed},
	StateFetching:  {StateSucceeded, StateFailed},
	StateSucceeded: {StateChecked},
	StateFailed:    {StateChecked},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
