// Package tracker discovers cluster members through Redis pub/sub. Every
// member periodically publishes a heartbeat with the service it provides to a
// shared channel, and members that stop doing so are considered dead.
//
// Note that Redis is a single point of failure here: if it is unavailable,
// nodes expire one after another.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/go-redis/redis/v8"
	"github.com/tilinna/clock"

	"github.com/maxpoletaev/gossiplb/membership"
)

var errInvalidMessage = errors.New("invalid presence message")

const (
	msgIntroduction = '?'
	msgHeartbeat    = '+'
	msgDrop         = '-'
)

// RedisClient is the subset of the Redis client used by the tracker.
type RedisClient interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type Config struct {
	// Namespace is the pub/sub channel shared by the members of the cluster.
	Namespace string

	// Self is the address of the local member. If empty, the tracker only
	// listens and never announces itself.
	Self membership.Address

	// ServiceType and ServicePort describe the service provided by the local member.
	ServiceType membership.ServiceType
	ServicePort uint16

	// UpdateInterval is how often the heartbeat is sent and expired members
	// are checked.
	UpdateInterval time.Duration

	// ExpiryInterval is how long a member is considered alive after its last heartbeat.
	ExpiryInterval time.Duration

	// DropTimeout limits the time spent announcing the departure on exit.
	DropTimeout time.Duration

	Logger log.Logger
}

func DefaultConfig() Config {
	return Config{
		Namespace:      "gossiplb",
		UpdateInterval: 1 * time.Second,
		ExpiryInterval: 5 * time.Second,
		DropTimeout:    1 * time.Second,
		Logger:         log.NewNopLogger(),
	}
}

type member struct {
	state  membership.State
	expiry time.Time
}

// Tracker keeps track of the members announced over Redis and reports their
// changes to a listener. All changes are made from the Run goroutine.
type Tracker struct {
	client   RedisClient
	listener membership.Listener
	conf     Config
	logger   log.Logger
	members  map[membership.Address]*member
}

func New(client RedisClient, listener membership.Listener, conf Config) *Tracker {
	logger := conf.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	return &Tracker{
		client:   client,
		listener: listener,
		conf:     conf,
		logger:   logger,
		members:  make(map[membership.Address]*member),
	}
}

func (t *Tracker) announces() bool {
	return t.conf.Self.Host != ""
}

// Run tracks the members until the context is done. On exit, the departure of
// the local member is announced. The clock is taken from the context.
func (t *Tracker) Run(ctx context.Context) {
	clck := clock.FromContext(ctx)

	pubsub := t.client.Subscribe(ctx, t.conf.Namespace)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed, so that the replies to the
	// introduction are not missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		level.Warn(t.logger).Log("msg", "failed to subscribe", "channel", t.conf.Namespace, "err", err)
	}

	psChan := pubsub.Channel()

	if err := t.publish(ctx, msgIntroduction); err != nil {
		level.Warn(t.logger).Log("msg", "initial check in failed", "err", err)
	}

	ticker := clck.NewTicker(t.conf.UpdateInterval)
	defer ticker.Stop()

	defer func() {
		ctxExit, cancel := clck.TimeoutContext(context.Background(), t.conf.DropTimeout)
		defer cancel()

		if err := t.publish(ctxExit, msgDrop); err != nil {
			level.Warn(t.logger).Log("msg", "failed to announce departure", "err", err)
		}

		if t.announces() {
			t.dropMember(t.conf.Self)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.expireMembers(clck.Now())

			if err := t.publish(ctx, msgHeartbeat); err != nil {
				level.Warn(t.logger).Log("msg", "failed to check in", "err", err)
			}
		case msg, ok := <-psChan:
			if !ok {
				return
			}

			t.handleMessage(ctx, msg.Payload, clck.Now())
		}
	}
}

func (t *Tracker) handleMessage(ctx context.Context, payload string, now time.Time) {
	kind, addr, state, err := parseMessage(payload)
	if err != nil {
		level.Warn(t.logger).Log("msg", "ignoring message", "payload", payload, "err", err)
		return
	}

	switch kind {
	case msgDrop:
		t.dropMember(addr)

	case msgIntroduction:
		t.refreshMember(addr, state, now)

		if addr != t.conf.Self {
			// Someone new wants to know who is there.
			if err := t.publish(ctx, msgHeartbeat); err != nil {
				level.Warn(t.logger).Log("msg", "failed to reply to introduction", "addr", addr, "err", err)
			}
		}

	case msgHeartbeat:
		t.refreshMember(addr, state, now)
	}
}

func (t *Tracker) notify(addr membership.Address, old, new *membership.State) {
	err := t.listener.HandleEvent(membership.Event{
		From:    t.conf.Self,
		Address: addr,
		Old:     old,
		New:     new,
	})

	if err != nil {
		level.Error(t.logger).Log("msg", "failed to handle membership event", "addr", addr, "err", err)
	}
}

// refreshMember extends the expiry of a member, adding it if not yet known.
// A member announcing another service is reported as changed.
func (t *Tracker) refreshMember(addr membership.Address, state membership.State, now time.Time) {
	expiry := now.Add(t.conf.ExpiryInterval)

	m, ok := t.members[addr]
	if !ok {
		level.Info(t.logger).Log("msg", "member added", "addr", addr, "service_type", state.ServiceType)
		t.members[addr] = &member{state: state, expiry: expiry}
		t.notify(addr, nil, &state)

		return
	}

	m.expiry = expiry

	if m.state != state {
		old := m.state
		m.state = state
		t.notify(addr, &old, &state)
	}
}

func (t *Tracker) dropMember(addr membership.Address) {
	m, ok := t.members[addr]
	if !ok {
		return
	}

	level.Info(t.logger).Log("msg", "member left", "addr", addr)
	delete(t.members, addr)

	left := m.state
	left.Health = membership.HealthLeft
	t.notify(addr, &m.state, &left)
}

// expireMembers reports the members without a recent heartbeat as dead.
func (t *Tracker) expireMembers(now time.Time) {
	for addr, m := range t.members {
		if !now.After(m.expiry) {
			continue
		}

		level.Info(t.logger).Log("msg", "member expired", "addr", addr)
		delete(t.members, addr)

		dead := m.state
		dead.Health = membership.HealthDead
		t.notify(addr, &m.state, &dead)
	}
}

func (t *Tracker) publish(ctx context.Context, kind byte) error {
	if !t.announces() {
		return nil
	}

	payload := formatMessage(kind, t.conf.Self, t.conf.ServiceType, t.conf.ServicePort)

	return t.client.Publish(ctx, t.conf.Namespace, payload).Err()
}

func formatMessage(kind byte, addr membership.Address, st membership.ServiceType, port uint16) string {
	if kind == msgDrop {
		return string(kind) + addr.String()
	}

	return fmt.Sprintf("%c%s %d %d", kind, addr, st, port)
}

func parseMessage(payload string) (byte, membership.Address, membership.State, error) {
	if len(payload) < 2 {
		return 0, membership.Address{}, membership.State{}, errInvalidMessage
	}

	kind := payload[0]
	fields := strings.Fields(payload[1:])

	switch kind {
	case msgDrop:
		if len(fields) != 1 {
			return 0, membership.Address{}, membership.State{}, errInvalidMessage
		}

		addr, err := membership.ParseAddress(fields[0])
		if err != nil {
			return 0, membership.Address{}, membership.State{}, err
		}

		return kind, addr, membership.State{}, nil

	case msgIntroduction, msgHeartbeat:
		if len(fields) != 3 {
			return 0, membership.Address{}, membership.State{}, errInvalidMessage
		}

		addr, err := membership.ParseAddress(fields[0])
		if err != nil {
			return 0, membership.Address{}, membership.State{}, err
		}

		st, err := strconv.ParseUint(fields[1], 10, 8)
		if err != nil {
			return 0, membership.Address{}, membership.State{}, fmt.Errorf("%w: service type: %v", errInvalidMessage, err)
		}

		port, err := strconv.ParseUint(fields[2], 10, 16)
		if err != nil {
			return 0, membership.Address{}, membership.State{}, fmt.Errorf("%w: service port: %v", errInvalidMessage, err)
		}

		state := membership.State{
			Health:      membership.HealthAlive,
			ServiceType: membership.ServiceType(st),
			ServicePort: uint16(port),
		}

		return kind, addr, state, nil
	}

	return 0, membership.Address{}, membership.State{}, fmt.Errorf("%w: unknown kind %q", errInvalidMessage, kind)
}
