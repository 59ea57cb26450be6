package loadbalance

import (
	"hash/crc32"
	"sort"
	"strconv"
	"sync"

	"peer-rpc/registry"
)

const defaultReplicas = 100

// ConsistentHashBalancer maps keys to instances using a hash ring, so a key
// keeps reaching the same peer while the ring is unchanged.
//
// Each instance is placed on the ring as replicas virtual nodes hashed from
// "{addr}#{i}", which evens out the arcs between real instances.
//
//	Hash Ring:
//	                  0
//	                ╱   ╲
//	              ╱       ╲
//	         B ●               ● A
//	           │    key ◆──►   │   (clockwise to nearest node → A)
//	         C ●               ● A' (virtual node of A)
//	              ╲       ╱
//	                ╲   ╱
type ConsistentHashBalancer struct {
	replicas int

	mu    sync.RWMutex
	ring  []uint32                            // sorted virtual node hashes
	nodes map[uint32]registry.ServiceInstance // virtual node hash → instance
}

func NewConsistentHashBalancer() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		replicas: defaultReplicas,
		nodes:    make(map[uint32]registry.ServiceInstance),
	}
}

func virtualHash(addr string, i int) uint32 {
	return crc32.ChecksumIEEE([]byte(addr + "#" + strconv.Itoa(i)))
}

// Add places an instance onto the ring.
func (b *ConsistentHashBalancer) Add(instance registry.ServiceInstance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < b.replicas; i++ {
		hash := virtualHash(instance.Addr, i)
		if _, taken := b.nodes[hash]; !taken {
			b.ring = append(b.ring, hash)
		}
		b.nodes[hash] = instance
	}
	sort.Slice(b.ring, func(i, j int) bool { return b.ring[i] < b.ring[j] })
}

// Remove takes every virtual node of addr off the ring.
func (b *ConsistentHashBalancer) Remove(addr string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ring := b.ring[:0]
	for _, hash := range b.ring {
		if b.nodes[hash].Addr == addr {
			delete(b.nodes, hash)
			continue
		}
		ring = append(ring, hash)
	}
	b.ring = ring
}

// Reset rebuilds the ring from instances, e.g. after a registry watch update.
func (b *ConsistentHashBalancer) Reset(instances []registry.ServiceInstance) {
	b.mu.Lock()
	b.ring = b.ring[:0]
	clear(b.nodes)
	b.mu.Unlock()
	for _, inst := range instances {
		b.Add(inst)
	}
}

// PickKey finds the instance responsible for key: the first virtual node
// clockwise from the key's hash, wrapping past the end of the ring.
func (b *ConsistentHashBalancer) PickKey(key string) (*registry.ServiceInstance, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.ring) == 0 {
		return nil, ErrNoInstances
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	inst := b.nodes[b.ring[idx]]
	return &inst, nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}
