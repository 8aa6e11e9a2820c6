// Package loadbalancer keeps a pool of client endpoints for every registered
// service type and updates the pools as cluster members join, die, leave or
// switch to another service. Callers draw endpoints at random through a
// Selector.
//
// Endpoints are built and released by a Factory registered for each service
// type. Factory calls happen synchronously on the membership event path:
//
//	lb := loadbalancer.New(loadbalancer.DefaultConfig())
//	sel := loadbalancer.MustRegister[*grpc.ClientConn](lb, 1, factory)
//	gossip.Start(conf, lb)
//	conn, err := sel.Endpoint()
package loadbalancer
