package gossip

import (
	"fmt"

	"github.com/hashicorp/memberlist"

	"github.com/maxpoletaev/gossiplb/membership"
)

// tracked is the last known state of a member, keyed by its node name.
type tracked struct {
	addr  membership.Address
	state membership.State
}

// translator turns memberlist notifications into membership events. It keeps
// the last state of every node, which becomes the old state of the next
// event. It is not safe for concurrent use.
type translator struct {
	self  membership.Address
	nodes map[string]tracked
}

func newTranslator(self membership.Address) *translator {
	return &translator{
		self:  self,
		nodes: make(map[string]tracked),
	}
}

func nodeAddress(n *memberlist.Node) membership.Address {
	return membership.Address{
		Host: n.Addr.String(),
		Port: n.Port,
	}
}

func (t *translator) event(addr membership.Address, old, new *membership.State) membership.Event {
	return membership.Event{
		From:    t.self,
		Address: addr,
		Old:     old,
		New:     new,
	}
}

// translate returns the membership events caused by a single notification.
// A node that reappears on another address first disappears from the old one.
func (t *translator) translate(ev memberlist.NodeEvent) ([]membership.Event, error) {
	node := ev.Node
	addr := nodeAddress(node)
	prev, known := t.nodes[node.Name]

	switch ev.Event {
	case memberlist.NodeJoin, memberlist.NodeUpdate:
		st, port, err := membership.DecodeMeta(node.Meta)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", node.Name, err)
		}

		next := membership.State{
			Health:      membership.HealthAlive,
			ServiceType: st,
			ServicePort: port,
		}

		if isLeaving(node.Meta) {
			next.Health = membership.HealthLeft
		}

		t.nodes[node.Name] = tracked{addr: addr, state: next}

		if !known {
			return []membership.Event{t.event(addr, nil, &next)}, nil
		}

		if prev.addr != addr {
			return []membership.Event{
				t.event(prev.addr, &prev.state, nil),
				t.event(addr, nil, &next),
			}, nil
		}

		return []membership.Event{t.event(addr, &prev.state, &next)}, nil

	case memberlist.NodeLeave:
		if !known || membership.IsDead(&prev.state) {
			// Either nothing was announced for the node, or it has already
			// announced its departure.
			return nil, nil
		}

		next := prev.state
		next.Health = membership.HealthDead

		t.nodes[node.Name] = tracked{addr: prev.addr, state: next}

		return []membership.Event{t.event(prev.addr, &prev.state, &next)}, nil
	}

	return nil, fmt.Errorf("unknown node event: %d", ev.Event)
}
