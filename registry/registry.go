// Package registry publishes and discovers the peers that serve one
// interface. Each instance records the address, transport and codec a dialer
// needs to open a connection to it.
package registry

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Discover when no instance serves the name.
var ErrNotFound = errors.New("registry: no instances")

type ServiceInstance struct {
	ID        string `json:"id,omitempty"`
	Addr      string `json:"addr"`
	Transport string `json:"transport,omitempty"` // "tcp" (default) or "ws"
	Codec     string `json:"codec,omitempty"`     // codec name, see codec.ParseCodecType
	Weight    int    `json:"weight,omitempty"`    // weight for load balancing
	Version   string `json:"version,omitempty"`
}

type Registry interface {
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	// Watch emits the full instance list after every change until ctx is done.
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}
