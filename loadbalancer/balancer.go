package loadbalancer

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/maxpoletaev/gossiplb/internal/multierror"
	"github.com/maxpoletaev/gossiplb/membership"
)

// IdentityChangePolicy decides when a member is considered to have changed
// the service it provides.
type IdentityChangePolicy uint8

const (
	// IdentityChangeBoth requires both the service type and the service port to differ.
	//
	// An update that changes only one of them is ignored. If the member then
	// dies, the death is reported with the updated identity, and the endpoint
	// created for the previous one stays selectable. Use IdentityChangeEither
	// when members may change the type or the port alone.
	IdentityChangeBoth IdentityChangePolicy = iota

	// IdentityChangeEither requires either the service type or the service port to differ.
	IdentityChangeEither
)

type Config struct {
	// Logger is used to report endpoint changes and factory failures.
	Logger log.Logger

	// IdentityChange is the policy used to detect that a member switched to
	// another service. Defaults to IdentityChangeBoth.
	IdentityChange IdentityChangePolicy

	// Shards is the number of lock shards of every endpoint pool.
	Shards int

	// Intn returns a uniformly distributed number in [0, n). It must be safe
	// for concurrent use. Defaults to math/rand.Intn.
	Intn func(n int) int
}

func DefaultConfig() Config {
	return Config{
		Logger:         log.NewNopLogger(),
		IdentityChange: IdentityChangeBoth,
		Shards:         DefaultShards,
		Intn:           rand.Intn,
	}
}

// ServiceInfo describes the endpoints of a registered service type.
type ServiceInfo struct {
	Type      membership.ServiceType
	Endpoints []membership.Address
}

// LoadBalancer keeps a pool of endpoints for every registered service type
// and updates the pools according to membership events. Factories must be
// registered before the first event is handled.
type LoadBalancer struct {
	// mut serializes membership events.
	mut sync.Mutex

	// regMut protects services until the registration is sealed, after which
	// the map is never written again.
	regMut   sync.RWMutex
	sealed   atomic.Bool
	services map[membership.ServiceType]registration

	logger         log.Logger
	identityChange IdentityChangePolicy
	shards         int
	intn           func(n int) int
}

func New(conf Config) *LoadBalancer {
	if conf.Logger == nil {
		conf.Logger = log.NewNopLogger()
	}

	if conf.Intn == nil {
		conf.Intn = rand.Intn
	}

	if conf.Shards < 1 {
		conf.Shards = DefaultShards
	}

	return &LoadBalancer{
		services:       make(map[membership.ServiceType]registration),
		logger:         conf.Logger,
		identityChange: conf.IdentityChange,
		shards:         conf.Shards,
		intn:           conf.Intn,
	}
}

// Register registers the factory of the given service type and returns a
// selector of its endpoints. Each service type can be registered only once,
// and only before the load balancer receives its first event.
func Register[T any](lb *LoadBalancer, st membership.ServiceType, factory Factory[T]) (*Selector[T], error) {
	if factory == nil {
		return nil, ErrNilFactory
	}

	lb.regMut.Lock()
	defer lb.regMut.Unlock()

	if lb.sealed.Load() {
		return nil, ErrRegistrationClosed
	}

	if _, ok := lb.services[st]; ok {
		return nil, fmt.Errorf("%w: %d", ErrAlreadyRegistered, st)
	}

	svc := newService(st, factory, lb.shards)
	lb.services[st] = svc

	return &Selector[T]{svc: svc, intn: lb.intn}, nil
}

// MustRegister is like Register but panics on error.
func MustRegister[T any](lb *LoadBalancer, st membership.ServiceType, factory Factory[T]) *Selector[T] {
	sel, err := Register(lb, st, factory)
	if err != nil {
		panic(err)
	}

	return sel
}

func (lb *LoadBalancer) seal() {
	if lb.sealed.Load() {
		return
	}

	lb.regMut.Lock()
	lb.sealed.Store(true)
	lb.regMut.Unlock()
}

func (lb *LoadBalancer) lookup(st membership.ServiceType) (registration, bool) {
	if !lb.sealed.Load() {
		lb.regMut.RLock()
		defer lb.regMut.RUnlock()
	}

	svc, ok := lb.services[st]

	return svc, ok
}

func (lb *LoadBalancer) identityChanged(old, new *membership.State) bool {
	if old == nil || new == nil {
		return false
	}

	typeChanged := old.ServiceType != new.ServiceType
	portChanged := old.ServicePort != new.ServicePort

	if lb.identityChange == IdentityChangeEither {
		return typeChanged || portChanged
	}

	return typeChanged && portChanged
}

// HandleEvent updates the endpoint pools according to a membership change.
// An endpoint is removed when a routable member dies or changes its service,
// and created when a dead member comes alive or changes its service. A changed
// service is created even if the new state is dead. Factory failures do not
// stop the processing and are returned combined.
func (lb *LoadBalancer) HandleEvent(e membership.Event) error {
	lb.mut.Lock()
	defer lb.mut.Unlock()

	lb.seal()

	errs := multierror.New[FactoryOp]()
	changed := lb.identityChanged(e.Old, e.New)

	if membership.IsAlive(e.Old) && (membership.IsDead(e.New) || changed) {
		if svc, ok := lb.lookup(e.Old.ServiceType); ok {
			if removed, err := svc.remove(e.Address); err != nil {
				errs.Add(OpDestroy, err)
			} else if removed {
				level.Debug(lb.logger).Log(
					"msg", "endpoint removed",
					"addr", e.Address,
					"service_type", e.Old.ServiceType,
				)
			}
		}
	}

	if (membership.IsDead(e.Old) && membership.IsAlive(e.New)) || changed {
		svc, ok := lb.lookup(e.New.ServiceType)
		if !ok {
			level.Debug(lb.logger).Log(
				"msg", "no factory for service type, member ignored",
				"addr", e.Address,
				"service_type", e.New.ServiceType,
			)

			return errs.Combined()
		}

		if err := svc.add(e.Address, e.New.ServicePort); err != nil {
			errs.Add(OpCreate, err)
		} else {
			level.Debug(lb.logger).Log(
				"msg", "endpoint added",
				"addr", e.Address,
				"service_type", e.New.ServiceType,
				"service_port", e.New.ServicePort,
			)
		}
	}

	return errs.Combined()
}

// Services returns the endpoints of every registered service type, ordered by type.
func (lb *LoadBalancer) Services() []ServiceInfo {
	lb.regMut.RLock()
	types := maps.Keys(lb.services)
	services := maps.Clone(lb.services)
	lb.regMut.RUnlock()

	slices.Sort(types)

	infos := make([]ServiceInfo, 0, len(types))
	for _, st := range types {
		infos = append(infos, ServiceInfo{
			Type:      st,
			Endpoints: sortAddresses(services[st].addresses()),
		})
	}

	return infos
}

// Drain destroys all endpoints of all service types, as if every member has
// left the cluster. Events handled afterwards fill the pools again.
func (lb *LoadBalancer) Drain() error {
	lb.mut.Lock()
	defer lb.mut.Unlock()

	lb.seal()

	errs := multierror.New[membership.ServiceType]()

	for st, svc := range lb.services {
		errs.Add(st, svc.drain())
	}

	return errs.Combined()
}

func sortAddresses(addrs []membership.Address) []membership.Address {
	slices.SortFunc(addrs, func(a, b membership.Address) bool {
		if a.Host != b.Host {
			return a.Host < b.Host
		}

		return a.Port < b.Port
	})

	return addrs
}

var _ membership.Listener = (*LoadBalancer)(nil)
