package acquire

import (
	"context"
	"sort"
)

// Provider wraps one external generation service (or local tool) behind a
// uniform attempt contract. Implementations must classify every failure as
// transient or hard via pkg/errors before returning, must complete or fail
// within the deadline carried by ctx, and must not mutate shared state
// outside their own return value. Adapters wrapping asynchronous jobs
// (submit, poll, fetch) own their internal poll loop and surface a transient
// failure on poll timeout rather than hanging.
type Provider interface {
	// Name returns the human-readable identifier used in logs and telemetry.
	Name() string
	// Attempt performs exactly one acquisition try, writing the produced
	// artifact to dest on success.
	Attempt(ctx context.Context, req Request, dest string) error
}

// Descriptor is a static registry entry pairing a Provider with its position
// in the ordered attempt list. Descriptors are constructed once at session
// start from configuration and never mutated during a session.
type Descriptor struct {
	// Rank is the position in the attempt order; lower tries first. Ranks
	// are decided once, from which credentials are configured: a keyed
	// provider is promoted above anonymous ones when its key is present,
	// since it typically has higher throughput and no queue.
	Rank int
	// Provider performs the attempts.
	Provider Provider
}

// Rank returns descriptors sorted by ascending Rank. Ties keep their
// configuration order. The input slice is not modified.
func Rank(descriptors []Descriptor) []Descriptor {
	ordered := make([]Descriptor, len(descriptors))
	copy(ordered, descriptors)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Rank < ordered[j].Rank
	})
	return ordered
}
