// Package convo holds per-user conversation state.
//
// Conversations are memory-resident and ephemeral: state lives in a
// process-wide Store and is lost on restart. Each user's history is an
// append-only log of Turns, re-seeded with a fixed initial turn set on
// creation, on explicit reset, and when the conversation has gone stale.
package convo

import "time"

// Role identifies the author of a turn. The set is closed: parley only ever
// records system, user and assistant turns (tool output is re-injected as an
// assistant turn, matching what the completion endpoint sees).
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Kind records how a turn came to exist.
type Kind int

const (
	// KindInitial marks a seed turn installed at creation or reset.
	KindInitial Kind = iota

	// KindManual marks a turn caused directly by the user or by the model's
	// final answer to the user.
	KindManual

	// KindAuto marks a turn appended by the tool loop (call records and
	// tool results).
	KindAuto
)

// String returns the kind's name for logging.
func (k Kind) String() string {
	switch k {
	case KindInitial:
		return "initial"
	case KindManual:
		return "manual"
	case KindAuto:
		return "auto"
	default:
		return "unknown"
	}
}

// Turn is one unit of conversation. Turns are immutable once appended.
type Turn struct {
	Role    Role
	Content string
	Kind    Kind
	At      time.Time
}
