// Package loadbalance picks which registered peer a client connects to.
//
// Three strategies are implemented:
//   - RoundRobin:      Stateless services, equal-capacity peers
//   - WeightedRandom:  Heterogeneous peers (different CPU/memory)
//   - ConsistentHash:  Peers holding per-key state, so a key keeps its peer
package loadbalance

import (
	"errors"

	"peer-rpc/registry"
)

var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer is the interface for load balancing strategies.
// The client calls Pick() before each dial to select a target instance.
type Balancer interface {
	// Pick selects one instance from the available list.
	// Must be goroutine-safe.
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// New returns the balancer registered under name: "round_robin" (default),
// "weighted_random".
func New(name string) (Balancer, error) {
	switch name {
	case "", "round_robin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random":
		return &WeightedRandomBalancer{}, nil
	}
	return nil, errors.New("loadbalance: unknown strategy " + name)
}
