package loadbalancer

import "github.com/maxpoletaev/gossiplb/membership"

// Factory constructs and destroys endpoint handles of a single service type.
// The load balancer is the only caller, and it never calls the methods
// concurrently. Both methods run on the membership event path, so a slow
// factory delays all subsequent events. Any timeout must be enforced by the
// factory itself.
type Factory[T any] interface {
	// Create builds an endpoint for the service served by the member at addr on the given port.
	Create(addr membership.Address, port uint16) (T, error)

	// Destroy releases an endpoint previously returned by Create. It is called
	// exactly once per handle, after the handle is no longer selectable.
	Destroy(handle T) error
}

// FactoryFuncs is an adapter to build a Factory from ordinary functions.
// A nil DestroyFunc is a no-op.
type FactoryFuncs[T any] struct {
	CreateFunc  func(addr membership.Address, port uint16) (T, error)
	DestroyFunc func(handle T) error
}

// Create calls f.CreateFunc.
func (f FactoryFuncs[T]) Create(addr membership.Address, port uint16) (T, error) {
	return f.CreateFunc(addr, port)
}

// Destroy calls f.DestroyFunc, if set.
func (f FactoryFuncs[T]) Destroy(handle T) error {
	if f.DestroyFunc == nil {
		return nil
	}

	return f.DestroyFunc(handle)
}

var _ Factory[struct{}] = FactoryFuncs[struct{}]{}
