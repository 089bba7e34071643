package triage

import (
	"time"

	"github.com/joshsymonds/mailtriage/internal/labels"
)

// State is where a candidate message sits in the triage automaton. It is
// derived only from the message's labels, its age and its thread size.
type State int

const (
	StateHumanHandled State = iota
	StateAlreadyProcessed
	StateStale
	StateNewCandidate
	StateFollowUp
	StateFirstContact
)

func (s State) String() string {
	switch s {
	case StateHumanHandled:
		return "human-handled"
	case StateAlreadyProcessed:
		return "already-processed"
	case StateStale:
		return "stale"
	case StateNewCandidate:
		return "new-candidate"
	case StateFollowUp:
		return "follow-up"
	case StateFirstContact:
		return "first-contact"
	default:
		return "unknown"
	}
}

// DefaultStaleAfter is the staleness cutoff.
const DefaultStaleAfter = 24 * time.Hour

// Facts are the label and age observations the guards run on.
type Facts struct {
	Unread  bool
	BotRead bool
	Age     time.Duration
}

// Assess runs the guards in order. A human read-state is checked before
// anything else so it is never overwritten; age is compared strictly, so a
// message exactly staleAfter old is still fresh.
func Assess(f Facts, staleAfter time.Duration) State {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	switch {
	case !f.Unread && !f.BotRead:
		return StateHumanHandled
	case f.BotRead:
		return StateAlreadyProcessed
	case f.Age > staleAfter:
		return StateStale
	default:
		return StateNewCandidate
	}
}

// Route picks the branch for a new candidate once its thread size is known.
// Only a thread holding exactly one message is first contact.
func Route(threadSize int) State {
	if threadSize == 1 {
		return StateFirstContact
	}
	return StateFollowUp
}

// Transition returns the label mutation a state applies on entry.
func Transition(s State, n labels.Names) labels.Mutation {
	switch s {
	case StateStale:
		return labels.Mutation{Add: []string{n.BotRead}}.Merge(n.Escalate())
	case StateNewCandidate:
		return n.MarkBotRead()
	case StateFollowUp:
		return n.Escalate()
	default:
		return labels.Mutation{}
	}
}

// Terminal reports whether processing stops at s for this run.
func Terminal(s State) bool {
	switch s {
	case StateNewCandidate, StateFirstContact:
		return false
	default:
		return true
	}
}
