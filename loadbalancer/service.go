package loadbalancer

import (
	"sync/atomic"

	"github.com/maxpoletaev/gossiplb/internal/multierror"
	"github.com/maxpoletaev/gossiplb/membership"
)

// registration is the untyped view of a registered service used on the event
// path. Every implementation pairs a factory with a pool of the same handle type.
type registration interface {
	add(addr membership.Address, port uint16) error
	remove(addr membership.Address) (bool, error)
	drain() error
	addresses() []membership.Address
}

// service holds the factory of a service type along with its endpoint pool.
// The pool pointer is nil while the service has no endpoints. It is only
// written on the event path, which is serialized by the load balancer.
type service[T any] struct {
	serviceType membership.ServiceType
	factory     Factory[T]
	pool        atomic.Pointer[pool[T]]
	shards      int
}

func newService[T any](st membership.ServiceType, factory Factory[T], shards int) *service[T] {
	return &service[T]{
		serviceType: st,
		factory:     factory,
		shards:      shards,
	}
}

func (s *service[T]) factoryError(op FactoryOp, addr membership.Address, err error) error {
	return &FactoryError{
		Op:          op,
		ServiceType: s.serviceType,
		Address:     addr,
		Err:         err,
	}
}

// add creates an endpoint and publishes it. A fresh pool is filled before it
// becomes visible to readers, so that readers never see an empty pool.
func (s *service[T]) add(addr membership.Address, port uint16) error {
	handle, err := s.factory.Create(addr, port)
	if err != nil {
		return s.factoryError(OpCreate, addr, err)
	}

	p := s.pool.Load()
	if p == nil {
		p = newPool[T](s.shards)
		p.Store(addr, handle)
		s.pool.Store(p)

		return nil
	}

	// The same address may be announced twice without dying in between.
	// The handle it had is no longer reachable, so it must be destroyed.
	if prev, replaced := p.Store(addr, handle); replaced {
		if err := s.factory.Destroy(prev); err != nil {
			return s.factoryError(OpDestroy, addr, err)
		}
	}

	return nil
}

// remove unpublishes the endpoint of the given address and destroys it. The
// pool is dropped as soon as it becomes empty. The handle is destroyed only
// after it is no longer selectable, so a failed destroy never leaves a stale
// handle behind.
func (s *service[T]) remove(addr membership.Address) (bool, error) {
	p := s.pool.Load()
	if p == nil {
		return false, nil
	}

	handle, ok := p.Delete(addr)

	if p.Len() == 0 {
		s.pool.Store(nil)
	}

	if !ok {
		return false, nil
	}

	if err := s.factory.Destroy(handle); err != nil {
		return true, s.factoryError(OpDestroy, addr, err)
	}

	return true, nil
}

// drain removes and destroys all endpoints of the service.
func (s *service[T]) drain() error {
	p := s.pool.Swap(nil)
	if p == nil {
		return nil
	}

	errs := multierror.New[membership.Address]()

	for _, addr := range p.Addresses() {
		handle, ok := p.Delete(addr)
		if !ok {
			continue
		}

		if err := s.factory.Destroy(handle); err != nil {
			errs.Add(addr, s.factoryError(OpDestroy, addr, err))
		}
	}

	return errs.Combined()
}

func (s *service[T]) addresses() []membership.Address {
	p := s.pool.Load()
	if p == nil {
		return nil
	}

	return p.Addresses()
}
