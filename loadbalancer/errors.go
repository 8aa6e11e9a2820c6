package loadbalancer

import (
	"fmt"

	"github.com/maxpoletaev/gossiplb/internal/baseerror"
	"github.com/maxpoletaev/gossiplb/membership"
)

var (
	// ErrConfiguration is the parent of all errors caused by an incorrect setup.
	ErrConfiguration = baseerror.New("configuration error")

	// ErrAlreadyRegistered is returned when a factory is registered twice for the same service type.
	ErrAlreadyRegistered = ErrConfiguration.New("service type already registered")

	// ErrRegistrationClosed is returned when a factory is registered after the
	// load balancer has started to handle membership events.
	ErrRegistrationClosed = ErrConfiguration.New("registration is closed")

	// ErrNilFactory is returned when a nil factory is registered.
	ErrNilFactory = ErrConfiguration.New("factory is nil")

	// ErrServiceUnavailable is returned when there are no endpoints for a service type.
	ErrServiceUnavailable = baseerror.New("no endpoints available")

	// ErrFactory is the parent of all errors returned by service factories.
	ErrFactory = baseerror.New("factory operation failed")
)

// FactoryOp is the factory operation that has failed.
type FactoryOp string

const (
	OpCreate  FactoryOp = "create"
	OpDestroy FactoryOp = "destroy"
)

// FactoryError is returned when a factory fails to create or destroy an
// endpoint while handling a membership event. It matches both ErrFactory and
// the underlying error.
type FactoryError struct {
	Op          FactoryOp
	ServiceType membership.ServiceType
	Address     membership.Address
	Err         error
}

func (e *FactoryError) Error() string {
	return fmt.Sprintf("failed to %s endpoint %s of service type %d: %v", e.Op, e.Address, e.ServiceType, e.Err)
}

func (e *FactoryError) Unwrap() []error {
	return []error{ErrFactory, e.Err}
}
