package server

import (
	"context"
)

// pingFunc adapts a bare Ping method into a named Pinger.
type pingFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewPinger wraps a Ping function under a dependency name for readiness
// responses. Both the SQLite index and the Qdrant store expose a compatible
// Ping method.
func NewPinger(name string, fn func(ctx context.Context) error) Pinger {
	return &pingFunc{name: name, fn: fn}
}

func (p *pingFunc) Name() string                   { return p.name }
func (p *pingFunc) Ping(ctx context.Context) error { return p.fn(ctx) }
