package worker

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"sync/atomic"
)

// EndpointSelector picks the target of each outgoing request. Implementations are
// shared by every worker.
type EndpointSelector interface {
	Pick() string
	Endpoints() []string
}

const (
	SelectRandom     = "random"
	SelectRoundRobin = "round-robin"
)

func NewEndpointSelector(policy string, endpoints []string) (EndpointSelector, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("at least one endpoint is required")
	}
	for _, endpoint := range endpoints {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint URL %q: %w", endpoint, err)
		}
		if !parsed.IsAbs() {
			return nil, fmt.Errorf("endpoint URL must be absolute: %s", endpoint)
		}
	}
	copied := append([]string(nil), endpoints...)
	switch policy {
	case "", SelectRandom:
		return &randomSelector{endpoints: copied}, nil
	case SelectRoundRobin:
		return &roundRobinSelector{endpoints: copied}, nil
	default:
		return nil, fmt.Errorf("unsupported endpoint selection %q", policy)
	}
}

// randomSelector draws each target independently and uniformly.
type randomSelector struct {
	endpoints []string
}

func (r *randomSelector) Pick() string {
	if len(r.endpoints) == 1 {
		return r.endpoints[0]
	}
	return r.endpoints[rand.IntN(len(r.endpoints))]
}

func (r *randomSelector) Endpoints() []string {
	return append([]string(nil), r.endpoints...)
}

type roundRobinSelector struct {
	endpoints []string
	next      atomic.Uint64
}

func (r *roundRobinSelector) Pick() string {
	idx := r.next.Add(1) - 1
	return r.endpoints[idx%uint64(len(r.endpoints))]
}

func (r *roundRobinSelector) Endpoints() []string {
	return append([]string(nil), r.endpoints...)
}
