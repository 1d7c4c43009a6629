// Package idempotency collapses concurrent createToken calls that share an
// idempotencyKey before they ever reach storage (spec §4.6.1, REDESIGN
// FLAGS). This is the in-process half of the two-layer gate: the second,
// authoritative half is the storage unique constraint on idempotencyKey
// (internal/storage), which catches duplicates arriving on different
// process instances or after a singleflight group has already forgotten the
// key.
package idempotency

import (
	"golang.org/x/sync/singleflight"
)

// Gate deduplicates concurrent calls sharing a key, returning the first
// caller's result to every waiter instead of running fn more than once.
type Gate struct {
	group singleflight.Group
}

func NewGate() *Gate {
	return &Gate{}
}

// Do runs fn if no call for key is in flight, otherwise waits for the
// in-flight call and returns its result. shared reports whether the
// result was shared with another caller instead of freshly computed.
func (g *Gate) Do(key string, fn func() (interface{}, error)) (value interface{}, shared bool, err error) {
	v, err, shared := g.group.Do(key, fn)
	return v, shared, err
}
