package domain

import "time"

// WorldState is the shared narrative state all actors observe for one turn.
// It is replaced wholesale each turn, never patched in place.
type WorldState struct {
	Turn      int               `json:"turn"`
	Narrative string            `json:"narrative"`
	CreatedAt time.Time         `json:"created_at"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// NewWorldState builds the world snapshot for a turn. The timestamp is
// normalized to UTC so serialized states round-trip exactly.
func NewWorldState(turn int, narrative string, now time.Time) *WorldState {
	return &WorldState{
		Turn:      turn,
		Narrative: narrative,
		CreatedAt: now.UTC(),
	}
}
