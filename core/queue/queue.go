// Package queue hands incident event envelopes to a message broker.
// Delivery is best-effort and at-most-once; a false return is the only
// failure signal callers ever see.
package queue

import "context"

type Queue interface {
	// Send publishes one message. It reports success and never panics or
	// returns an error to the caller.
	Send(ctx context.Context, body []byte) bool
	// Ping reports whether the broker is reachable; diagnostics only.
	Ping(ctx context.Context) bool
	Close()
}

// Disabled is the no-op queue used when no broker is configured.
type Disabled struct{}

func (Disabled) Send(ctx context.Context, body []byte) bool { return false }
func (Disabled) Ping(ctx context.Context) bool              { return false }
func (Disabled) Close()                                     {}
