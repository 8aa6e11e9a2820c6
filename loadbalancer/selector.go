package loadbalancer

import (
	"fmt"

	"github.com/maxpoletaev/gossiplb/membership"
)

// Selector gives access to the endpoints of a single service type. It is safe
// for concurrent use and never blocks behind a factory call.
type Selector[T any] struct {
	svc  *service[T]
	intn func(n int) int
}

// Type returns the service type of the selector.
func (s *Selector[T]) Type() membership.ServiceType {
	return s.svc.serviceType
}

// Len returns the number of endpoints currently available.
func (s *Selector[T]) Len() int {
	if p := s.svc.pool.Load(); p != nil {
		return p.Len()
	}

	return 0
}

// Endpoint returns an endpoint chosen uniformly at random among the endpoints
// currently available. ErrServiceUnavailable is returned if there are none.
func (s *Selector[T]) Endpoint() (T, error) {
	var zero T

	p := s.svc.pool.Load()
	if p == nil {
		return zero, fmt.Errorf("%w: service type %d", ErrServiceUnavailable, s.svc.serviceType)
	}

	handles := p.Values()
	if len(handles) == 0 {
		return zero, fmt.Errorf("%w: service type %d", ErrServiceUnavailable, s.svc.serviceType)
	}

	return handles[s.intn(len(handles))], nil
}
