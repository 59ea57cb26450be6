package server

import "peer-rpc/rpc"

// Register binds impl as the interface L every accepted peer can call. The
// service is published in the registry under L's interface name.
func Register[L any](svr *Server, impl L, opts ...rpc.ServiceOption) error {
	svc, err := rpc.NewService[L](impl, opts...)
	if err != nil {
		return err
	}
	svr.Handle(svc.Table().Name(), svc)
	return nil
}

// Handle serves d under serviceName, for dispatchers that are not built from
// an interface.
func (svr *Server) Handle(serviceName string, d rpc.Dispatcher) {
	svr.serviceName = serviceName
	svr.service = d
}

// ServiceName is the name the server publishes in the registry.
func (svr *Server) ServiceName() string { return svr.serviceName }
