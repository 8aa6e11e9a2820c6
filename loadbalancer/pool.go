package loadbalancer

import (
	"sync"
	"sync/atomic"

	"github.com/twmb/murmur3"
	"golang.org/x/exp/maps"

	"github.com/maxpoletaev/gossiplb/membership"
)

// DefaultShards is the default number of shards in an endpoint pool.
const DefaultShards = 16

type shard[T any] struct {
	mut   sync.RWMutex
	items map[membership.Address]T
}

// pool is a concurrent address to handle map. It is split into shards, each
// protected by its own lock, so that readers only wait for a single map
// operation of a writer on the same shard.
type pool[T any] struct {
	shards []*shard[T]
	size   atomic.Int64
}

func newPool[T any](shards int) *pool[T] {
	if shards < 1 {
		shards = 1
	}

	p := &pool[T]{
		shards: make([]*shard[T], shards),
	}

	for i := range p.shards {
		p.shards[i] = &shard[T]{
			items: make(map[membership.Address]T),
		}
	}

	return p
}

func (p *pool[T]) shardFor(addr membership.Address) *shard[T] {
	if len(p.shards) == 1 {
		return p.shards[0]
	}

	h := murmur3.Sum64([]byte(addr.String()))

	return p.shards[h%uint64(len(p.shards))]
}

// Store puts the handle into the pool. If the address already had a handle,
// the previous one is returned.
func (p *pool[T]) Store(addr membership.Address, handle T) (prev T, replaced bool) {
	s := p.shardFor(addr)

	s.mut.Lock()
	defer s.mut.Unlock()

	prev, replaced = s.items[addr]
	s.items[addr] = handle

	if !replaced {
		p.size.Add(1)
	}

	return prev, replaced
}

// Delete removes the address from the pool and returns its handle, if any.
func (p *pool[T]) Delete(addr membership.Address) (handle T, ok bool) {
	s := p.shardFor(addr)

	s.mut.Lock()
	defer s.mut.Unlock()

	handle, ok = s.items[addr]
	if ok {
		delete(s.items, addr)
		p.size.Add(-1)
	}

	return handle, ok
}

// Load returns the handle of the given address.
func (p *pool[T]) Load(addr membership.Address) (handle T, ok bool) {
	s := p.shardFor(addr)

	s.mut.RLock()
	defer s.mut.RUnlock()

	handle, ok = s.items[addr]

	return handle, ok
}

// Len returns the number of handles in the pool.
func (p *pool[T]) Len() int {
	return int(p.size.Load())
}

// Values returns a snapshot of all handles in the pool.
func (p *pool[T]) Values() []T {
	values := make([]T, 0, p.Len())

	for _, s := range p.shards {
		s.mut.RLock()
		values = append(values, maps.Values(s.items)...)
		s.mut.RUnlock()
	}

	return values
}

// Addresses returns a snapshot of all addresses in the pool.
func (p *pool[T]) Addresses() []membership.Address {
	addrs := make([]membership.Address, 0, p.Len())

	for _, s := range p.shards {
		s.mut.RLock()
		addrs = append(addrs, maps.Keys(s.items)...)
		s.mut.RUnlock()
	}

	return addrs
}
