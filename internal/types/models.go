// internal/types/models.go
package types

import (
	"encoding/json"
	"time"
)

// SessionIndex is one saved playback session. State holds the exported
// playback checkpoint verbatim.
type SessionIndex struct {
	SessionID  SessionID       `json:"session_id"`
	SessionKey SessionKey      `json:"session_key"`
	Artifact   string          `json:"artifact"`
	Events     int             `json:"events"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	State      json.RawMessage `json:"state,omitempty"`
}
