// internal/types/interfaces.go
package types

import (
	"context"
)

type SessionStore interface {
	ResolveOrCreate(ctx context.Context, key SessionKey, artifact string) (SessionID, error)
	Get(ctx context.Context, id SessionID) (*SessionIndex, error)
	Lookup(ctx context.Context, key SessionKey) (*SessionIndex, error)
	List(ctx context.Context) ([]*SessionIndex, error)
	Update(ctx context.Context, session *SessionIndex) error
	Delete(ctx context.Context, key SessionKey) error
	Clear(ctx context.Context) (int, error)
}
