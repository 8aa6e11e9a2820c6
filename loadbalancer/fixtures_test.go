package loadbalancer

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/maxpoletaev/gossiplb/membership"
)

type fakeConn struct {
	id        int
	addr      membership.Address
	port      uint16
	destroyed atomic.Bool
}

type fakeFactory struct {
	mut        sync.Mutex
	nextID     int
	created    []*fakeConn
	destroyed  []*fakeConn
	createErr  error
	destroyErr error
}

func (f *fakeFactory) Create(addr membership.Address, port uint16) (*fakeConn, error) {
	f.mut.Lock()
	defer f.mut.Unlock()

	if f.createErr != nil {
		return nil, f.createErr
	}

	f.nextID++
	conn := &fakeConn{id: f.nextID, addr: addr, port: port}
	f.created = append(f.created, conn)

	return conn, nil
}

func (f *fakeFactory) Destroy(conn *fakeConn) error {
	f.mut.Lock()
	defer f.mut.Unlock()

	if conn.destroyed.Swap(true) {
		panic("handle destroyed twice")
	}

	f.destroyed = append(f.destroyed, conn)

	return f.destroyErr
}

func (f *fakeFactory) Created() []*fakeConn {
	f.mut.Lock()
	defer f.mut.Unlock()

	return append([]*fakeConn(nil), f.created...)
}

func (f *fakeFactory) Destroyed() []*fakeConn {
	f.mut.Lock()
	defer f.mut.Unlock()

	return append([]*fakeConn(nil), f.destroyed...)
}

var errFake = errors.New("fake factory error")

func addr(host string) membership.Address {
	return membership.Address{Host: host, Port: 7946}
}

func state(health membership.Health, st membership.ServiceType, port uint16) *membership.State {
	return &membership.State{Health: health, ServiceType: st, ServicePort: port}
}

func joined(a membership.Address, st membership.ServiceType, port uint16) membership.Event {
	return membership.Event{
		Address: a,
		Old:     state(membership.HealthDead, st, port),
		New:     state(membership.HealthAlive, st, port),
	}
}

func died(a membership.Address, st membership.ServiceType, port uint16) membership.Event {
	return membership.Event{
		Address: a,
		Old:     state(membership.HealthAlive, st, port),
		New:     state(membership.HealthDead, st, port),
	}
}
