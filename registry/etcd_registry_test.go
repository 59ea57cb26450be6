package registry

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Needs a running etcd, e.g. PEER_RPC_ETCD=127.0.0.1:2379.
func etcdEndpoints(t *testing.T) []string {
	t.Helper()
	env := os.Getenv("PEER_RPC_ETCD")
	if env == "" {
		t.Skip("PEER_RPC_ETCD not set")
	}
	return strings.Split(env, ",")
}

func TestEtcdRegisterAndDiscover(t *testing.T) {
	reg, err := NewEtcdRegistry(etcdEndpoints(t), 2*time.Second, nil)
	require.NoError(t, err)
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	inst1 := ServiceInstance{Addr: "127.0.0.1:8001", Weight: 10, Version: "1.0", Codec: "json"}
	inst2 := ServiceInstance{Addr: "127.0.0.1:8002", Weight: 5, Version: "1.0", Codec: "binary"}
	require.NoError(t, reg.Register(ctx, "Arith", inst1, 10))
	require.NoError(t, reg.Register(ctx, "Arith", inst2, 10))
	defer reg.Deregister(context.Background(), "Arith", inst2.Addr)

	instances, err := reg.Discover(ctx, "Arith")
	require.NoError(t, err)
	assert.ElementsMatch(t, []ServiceInstance{inst1, inst2}, instances)

	require.NoError(t, reg.Deregister(ctx, "Arith", inst1.Addr))

	instances, err = reg.Discover(ctx, "Arith")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, inst2.Addr, instances[0].Addr)
}

func TestEtcdWatch(t *testing.T) {
	reg, err := NewEtcdRegistry(etcdEndpoints(t), 2*time.Second, nil)
	require.NoError(t, err)
	defer reg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	updates := reg.Watch(ctx, "Watched")
	inst := ServiceInstance{Addr: "127.0.0.1:8101"}
	require.NoError(t, reg.Register(ctx, "Watched", inst, 10))
	defer reg.Deregister(context.Background(), "Watched", inst.Addr)

	select {
	case list := <-updates:
		assert.Equal(t, []ServiceInstance{inst}, list)
	case <-ctx.Done():
		t.Fatal("no watch update")
	}
}
