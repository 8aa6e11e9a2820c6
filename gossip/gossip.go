package gossip

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/memberlist"

	"github.com/maxpoletaev/gossiplb/membership"
)

// Member is a cluster member as currently seen by the local node.
type Member struct {
	Name    string
	Address membership.Address
	State   membership.State
}

// Gossip runs the SWIM membership protocol and reports membership changes to
// a listener. Events are delivered from a single goroutine, in the order they
// were observed.
type Gossip struct {
	ml       *memberlist.Memberlist
	delegate *metaDelegate
	events   chan memberlist.NodeEvent
	listener membership.Listener
	trans    *translator
	logger   log.Logger

	joinMaxElapsed time.Duration

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func memberlistConfig(conf *Config, delegate *metaDelegate, events chan memberlist.NodeEvent) (*memberlist.Config, error) {
	var mlConf *memberlist.Config
	if conf.Memberlist != nil {
		c := *conf.Memberlist
		mlConf = &c
	} else {
		mlConf = memberlist.DefaultLANConfig()
	}

	if conf.NodeName != "" {
		mlConf.Name = conf.NodeName
	} else if mlConf.Name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("failed to get hostname: %w", err)
		}

		mlConf.Name = hostname
	}

	mlConf.BindAddr = conf.BindAddr
	mlConf.BindPort = conf.BindPort
	mlConf.AdvertiseAddr = conf.AdvertiseAddr
	mlConf.AdvertisePort = conf.AdvertisePort

	mlConf.Delegate = delegate
	mlConf.Events = &memberlist.ChannelEventDelegate{Ch: events}

	mlConf.Logger = nil
	mlConf.LogOutput = io.Discard

	if conf.Logger != nil {
		mlConf.LogOutput = log.NewStdlibAdapter(level.Debug(conf.Logger))
	}

	return mlConf, nil
}

// Start creates the local member and starts delivering membership events to
// the listener. The local member is announced to the listener as well. Call
// Join to connect to an existing cluster.
func Start(conf *Config, listener membership.Listener) (*Gossip, error) {
	logger := conf.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	events := make(chan memberlist.NodeEvent, conf.EventBuffer)
	delegate := newMetaDelegate(conf.ServiceType, conf.ServicePort)

	mlConf, err := memberlistConfig(conf, delegate, events)
	if err != nil {
		return nil, err
	}

	g := &Gossip{
		delegate:       delegate,
		events:         events,
		listener:       listener,
		logger:         logger,
		joinMaxElapsed: conf.JoinMaxElapsed,
		stop:           make(chan struct{}),
	}

	// The consumer must be running before memberlist is created, since the
	// local node is announced during creation.
	g.wg.Add(1)
	go g.consume()

	ml, err := memberlist.Create(mlConf)
	if err != nil {
		g.stopConsumer()
		return nil, fmt.Errorf("failed to create memberlist: %w", err)
	}

	g.ml = ml

	return g, nil
}

// LocalAddress returns the gossip address of the local member.
func (g *Gossip) LocalAddress() membership.Address {
	return nodeAddress(g.ml.LocalNode())
}

func (g *Gossip) consume() {
	defer g.wg.Done()

	for {
		select {
		case <-g.stop:
			return
		case ev := <-g.events:
			g.handle(ev)
		}
	}
}

func (g *Gossip) handle(ev memberlist.NodeEvent) {
	if g.trans == nil {
		// The first notification is always the local node joining itself.
		g.trans = newTranslator(nodeAddress(ev.Node))
	}

	events, err := g.trans.translate(ev)
	if err != nil {
		level.Warn(g.logger).Log("msg", "skipping membership notification", "node", ev.Node.Name, "err", err)
		return
	}

	for _, e := range events {
		level.Debug(g.logger).Log("msg", "membership changed", "addr", e.Address, "old", stateString(e.Old), "new", stateString(e.New))

		if err := g.listener.HandleEvent(e); err != nil {
			level.Error(g.logger).Log("msg", "failed to handle membership event", "addr", e.Address, "err", err)
		}
	}
}

func stateString(s *membership.State) string {
	if s == nil {
		return "none"
	}

	return fmt.Sprintf("%s(type=%d,port=%d)", s.Health, s.ServiceType, s.ServicePort)
}

// Join connects to the cluster through any of the given seed addresses. It
// retries with exponential backoff until at least one seed responds, the
// context is done or the configured time limit is exceeded.
func (g *Gossip) Join(ctx context.Context, seeds []string) error {
	if len(seeds) == 0 {
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = g.joinMaxElapsed

	join := func() error {
		n, err := g.ml.Join(seeds)
		if n == 0 {
			if err == nil {
				err = fmt.Errorf("no seeds responded")
			}

			return err
		}

		level.Info(g.logger).Log("msg", "joined the cluster", "contacted", n)

		return nil
	}

	notify := func(err error, next time.Duration) {
		level.Warn(g.logger).Log("msg", "failed to join the cluster", "retry_in", next, "err", err)
	}

	if err := backoff.RetryNotify(join, backoff.WithContext(b, ctx), notify); err != nil {
		return fmt.Errorf("join failed: %w", err)
	}

	return nil
}

// Members returns the members that are currently alive, including the local one.
// Members with unreadable metadata are skipped.
func (g *Gossip) Members() []Member {
	nodes := g.ml.Members()
	members := make([]Member, 0, len(nodes))

	for _, node := range nodes {
		st, port, err := membership.DecodeMeta(node.Meta)
		if err != nil {
			continue
		}

		members = append(members, Member{
			Name:    node.Name,
			Address: nodeAddress(node),
			State: membership.State{
				Health:      membership.HealthAlive,
				ServiceType: st,
				ServicePort: port,
			},
		})
	}

	return members
}

// Leave announces to the cluster that the local member is leaving, and
// waits until the announcement is sent or the timeout is reached. Other
// members first see a metadata update with the leaving marker, which is how
// they tell a graceful departure from a failure.
func (g *Gossip) Leave(timeout time.Duration) error {
	g.delegate.setLeaving()

	if err := g.ml.UpdateNode(timeout); err != nil {
		level.Warn(g.logger).Log("msg", "failed to announce departure", "err", err)
	}

	return g.ml.Leave(timeout)
}

func (g *Gossip) stopConsumer() {
	g.stopOnce.Do(func() {
		close(g.stop)
	})

	g.wg.Wait()
}

// Shutdown stops the gossip protocol and waits for the event consumer to
// exit. Events observed after that are not delivered.
func (g *Gossip) Shutdown() error {
	err := g.ml.Shutdown()
	g.stopConsumer()

	return err
}
