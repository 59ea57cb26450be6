package loadbalance

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"peer-rpc/registry"
)

var testInstances = []registry.ServiceInstance{
	{Addr: ":8001", Weight: 10, Version: "1.0"},
	{Addr: ":8002", Weight: 5, Version: "1.0"},
	{Addr: ":8003", Weight: 10, Version: "1.0"},
}

func TestRoundRobin(t *testing.T) {
	b := &RoundRobinBalancer{}

	var got []string
	for i := 0; i < 4; i++ {
		inst, err := b.Pick(testInstances)
		require.NoError(t, err)
		got = append(got, inst.Addr)
	}
	assert.Equal(t, []string{":8001", ":8002", ":8003", ":8001"}, got)
}

func TestEmptyInstances(t *testing.T) {
	for _, b := range []Balancer{&RoundRobinBalancer{}, &WeightedRandomBalancer{}} {
		_, err := b.Pick(nil)
		assert.ErrorIs(t, err, ErrNoInstances, b.Name())
	}
	_, err := NewConsistentHashBalancer().PickKey("k")
	assert.ErrorIs(t, err, ErrNoInstances)
}

func TestWeightedRandom(t *testing.T) {
	b := &WeightedRandomBalancer{}

	counts := map[string]int{}
	for i := 0; i < 10000; i++ {
		inst, err := b.Pick(testInstances)
		require.NoError(t, err)
		counts[inst.Addr]++
	}

	// weights 10:5:10, so :8001 should be picked about twice as often as :8002
	ratio := float64(counts[":8001"]) / float64(counts[":8002"])
	assert.InDelta(t, 2.0, ratio, 0.5)
}

func TestWeightedRandomZeroWeights(t *testing.T) {
	b := &WeightedRandomBalancer{}
	inst, err := b.Pick([]registry.ServiceInstance{{Addr: ":1"}, {Addr: ":2"}})
	require.NoError(t, err)
	assert.Contains(t, []string{":1", ":2"}, inst.Addr)
}

func TestConsistentHash(t *testing.T) {
	b := NewConsistentHashBalancer()
	b.Reset(testInstances)

	inst1, err := b.PickKey("user-123")
	require.NoError(t, err)
	inst2, err := b.PickKey("user-123")
	require.NoError(t, err)
	assert.Equal(t, inst1.Addr, inst2.Addr)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		inst, err := b.PickKey(fmt.Sprintf("key-%d", i))
		require.NoError(t, err)
		seen[inst.Addr] = true
	}
	assert.GreaterOrEqual(t, len(seen), 2)

	b.Remove(inst1.Addr)
	moved, err := b.PickKey("user-123")
	require.NoError(t, err)
	assert.NotEqual(t, inst1.Addr, moved.Addr)
}

func TestNew(t *testing.T) {
	b, err := New("")
	require.NoError(t, err)
	assert.Equal(t, "RoundRobin", b.Name())

	b, err = New("weighted_random")
	require.NoError(t, err)
	assert.Equal(t, "WeightedRandom", b.Name())

	_, err = New("nope")
	assert.Error(t, err)
}
