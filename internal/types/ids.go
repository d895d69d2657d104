// internal/types/ids.go
package types

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type SessionKey string
type SessionID string

func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func NewSessionKey(parts ...string) SessionKey {
	return SessionKey(strings.Join(parts, ":"))
}

// ArtifactKey keys saved playback by the artifact's base name, so the same
// file loaded from different directories resumes the same session.
func ArtifactKey(path string) SessionKey {
	return NewSessionKey("artifact", filepath.Base(path))
}
