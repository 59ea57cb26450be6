package loadbalance

import (
	"sync/atomic"

	"peer-rpc/registry"
)

// RoundRobinBalancer hands out instances in order using a lock-free counter.
//
// Best for: stateless services where all peers have similar capacity.
type RoundRobinBalancer struct {
	counter atomic.Uint64
}

func (b *RoundRobinBalancer) Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	index := (b.counter.Add(1) - 1) % uint64(len(instances))
	return &instances[index], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
