// Package tokencache holds recently issued identity tokens keyed by user so
// repeated logins can reuse a still-valid token. It is an optimisation only:
// a miss or a failure simply means a new token gets issued.
package tokencache

import (
	"context"
	"time"
)

type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores token until ttl elapses. A non-positive ttl stores nothing.
	Set(ctx context.Context, key, token string, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Disabled never holds anything.
type Disabled struct{}

func (Disabled) Get(context.Context, string) (string, bool, error)       { return "", false, nil }
func (Disabled) Set(context.Context, string, string, time.Duration) error { return nil }
func (Disabled) Invalidate(context.Context, string) error                 { return nil }
