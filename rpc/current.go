package rpc

import "context"

type connectionKey struct{}

// withConnection marks ctx as being serviced by c for the dynamic extent of
// one Process call.
func withConnection(ctx context.Context, c *Connection) context.Context {
	return context.WithValue(ctx, connectionKey{}, c)
}

// FromContext returns the connection whose Process call is dispatching the
// method that received ctx. Local methods use it to issue nested calls back
// to the peer that called them.
func FromContext(ctx context.Context) (*Connection, bool) {
	c, ok := ctx.Value(connectionKey{}).(*Connection)
	return c, ok
}
