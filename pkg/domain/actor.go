package domain

import "time"

// MaxRecentDecisions bounds the per-actor rolling decision history.
// Older entries are evicted oldest-first.
const MaxRecentDecisions = 5

// ActorState describes one decision-making participant.
type ActorState struct {
	Name            string            `json:"name"`
	ShortName       string            `json:"short_name,omitempty"`
	Model           string            `json:"model"`
	Goals           []string          `json:"goals,omitempty"`
	RecentDecisions []Decision        `json:"recent_decisions,omitempty"`
	Private         string            `json:"private,omitempty"`
	Meta            map[string]string `json:"meta,omitempty"`
}

// withDecision returns a copy of the actor with d appended to the rolling
// history, evicting the oldest entry beyond MaxRecentDecisions. The receiver
// is left untouched.
func (a ActorState) withDecision(d Decision) ActorState {
	history := make([]Decision, 0, len(a.RecentDecisions)+1)
	history = append(history, a.RecentDecisions...)
	history = append(history, d)
	if len(history) > MaxRecentDecisions {
		history = history[len(history)-MaxRecentDecisions:]
	}
	a.RecentDecisions = history
	return a
}

// Decision is one actor's recorded goals, reasoning and action for a turn.
type Decision struct {
	Actor     string            `json:"actor"`
	Turn      int               `json:"turn"`
	Goals     []string          `json:"goals,omitempty"`
	Reasoning string            `json:"reasoning"`
	Action    string            `json:"action"`
	Timestamp time.Time         `json:"timestamp"`
	Degraded  bool              `json:"degraded,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// NewDecision builds a decision record with a UTC-normalized timestamp.
func NewDecision(actor string, turn int, goals []string, reasoning, action string, now time.Time) Decision {
	return Decision{
		Actor:     actor,
		Turn:      turn,
		Goals:     goals,
		Reasoning: reasoning,
		Action:    action,
		Timestamp: now.UTC(),
	}
}

// DegradedDecision records an actor whose decision computation failed.
// The failure is isolated: the turn proceeds with this placeholder and the
// error is kept for downstream review.
func DegradedDecision(actor string, turn int, cause string, now time.Time) Decision {
	return Decision{
		Actor:     actor,
		Turn:      turn,
		Reasoning: "decision unavailable",
		Action:    "no action",
		Timestamp: now.UTC(),
		Degraded:  true,
		Meta:      map[string]string{"error": cause},
	}
}

// CommType scopes a communication exchange.
type CommType string

const (
	CommBilateral CommType = "bilateral"
	CommCoalition CommType = "coalition"
	CommPublic    CommType = "public"
)

// Communication is a message exchange between actors.
// An empty recipient list means the message is public.
type Communication struct {
	Turn       int       `json:"turn"`
	Sender     string    `json:"sender"`
	Recipients []string  `json:"recipients,omitempty"`
	Content    string    `json:"content"`
	Type       CommType  `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewCommunication builds a communication record, deriving the scope from the
// recipient list when commType is empty.
func NewCommunication(turn int, sender string, recipients []string, content string, commType CommType, now time.Time) Communication {
	if commType == "" {
		switch len(recipients) {
		case 0:
			commType = CommPublic
		case 1:
			commType = CommBilateral
		default:
			commType = CommCoalition
		}
	}
	return Communication{
		Turn:       turn,
		Sender:     sender,
		Recipients: recipients,
		Content:    content,
		Type:       commType,
		Timestamp:  now.UTC(),
	}
}
