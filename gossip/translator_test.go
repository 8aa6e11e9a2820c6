package gossip

import (
	"net"
	"testing"

	"github.com/hashicorp/memberlist"
	"github.com/stretchr/testify/require"

	"github.com/maxpoletaev/gossiplb/membership"
)

func nodeEvent(typ memberlist.NodeEventType, name, ip string, st membership.ServiceType, port uint16) memberlist.NodeEvent {
	return memberlist.NodeEvent{
		Event: typ,
		Node: &memberlist.Node{
			Name: name,
			Addr: net.ParseIP(ip),
			Port: 7946,
			Meta: membership.EncodeMeta(st, port),
		},
	}
}

func leaveEvent(name, ip string) memberlist.NodeEvent {
	return nodeEvent(memberlist.NodeLeave, name, ip, 1, 8000)
}

func leavingEvent(name, ip string, st membership.ServiceType, port uint16) memberlist.NodeEvent {
	ev := nodeEvent(memberlist.NodeUpdate, name, ip, st, port)
	ev.Node.Meta = leavingMeta(ev.Node.Meta)

	return ev
}

var self = membership.Address{Host: "10.0.0.1", Port: 7946}

func TestTranslator_Lifecycle(t *testing.T) {
	tr := newTranslator(self)
	addr := membership.Address{Host: "10.0.0.2", Port: 7946}

	events, err := tr.translate(nodeEvent(memberlist.NodeJoin, "node2", "10.0.0.2", 1, 8000))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, self, events[0].From)
	require.Equal(t, addr, events[0].Address)
	require.Nil(t, events[0].Old)
	require.Equal(t, &membership.State{Health: membership.HealthAlive, ServiceType: 1, ServicePort: 8000}, events[0].New)

	events, err = tr.translate(nodeEvent(memberlist.NodeUpdate, "node2", "10.0.0.2", 2, 9000))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, &membership.State{Health: membership.HealthAlive, ServiceType: 1, ServicePort: 8000}, events[0].Old)
	require.Equal(t, &membership.State{Health: membership.HealthAlive, ServiceType: 2, ServicePort: 9000}, events[0].New)

	events, err = tr.translate(leaveEvent("node2", "10.0.0.2"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, &membership.State{Health: membership.HealthAlive, ServiceType: 2, ServicePort: 9000}, events[0].Old)
	require.Equal(t, &membership.State{Health: membership.HealthDead, ServiceType: 2, ServicePort: 9000}, events[0].New)

	events, err = tr.translate(nodeEvent(memberlist.NodeJoin, "node2", "10.0.0.2", 2, 9000))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, membership.HealthDead, events[0].Old.Health)
	require.Equal(t, membership.HealthAlive, events[0].New.Health)
}

func TestTranslator_LeftGracefully(t *testing.T) {
	tr := newTranslator(self)

	_, err := tr.translate(nodeEvent(memberlist.NodeJoin, "node2", "10.0.0.2", 1, 8000))
	require.NoError(t, err)

	events, err := tr.translate(leavingEvent("node2", "10.0.0.2", 1, 8000))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, &membership.State{Health: membership.HealthAlive, ServiceType: 1, ServicePort: 8000}, events[0].Old)
	require.Equal(t, &membership.State{Health: membership.HealthLeft, ServiceType: 1, ServicePort: 8000}, events[0].New)

	// The departure has already been reported.
	events, err = tr.translate(leaveEvent("node2", "10.0.0.2"))
	require.NoError(t, err)
	require.Empty(t, events)

	// Coming back after a graceful leave.
	events, err = tr.translate(nodeEvent(memberlist.NodeJoin, "node2", "10.0.0.2", 1, 8000))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, membership.HealthLeft, events[0].Old.Health)
	require.Equal(t, membership.HealthAlive, events[0].New.Health)
}

func TestTranslator_DeadIsReportedOnce(t *testing.T) {
	tr := newTranslator(self)

	_, err := tr.translate(nodeEvent(memberlist.NodeJoin, "node2", "10.0.0.2", 1, 8000))
	require.NoError(t, err)

	events, err := tr.translate(leaveEvent("node2", "10.0.0.2"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, membership.HealthDead, events[0].New.Health)

	events, err = tr.translate(leaveEvent("node2", "10.0.0.2"))
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestTranslator_UnknownLeave(t *testing.T) {
	tr := newTranslator(self)

	events, err := tr.translate(leaveEvent("node2", "10.0.0.2"))
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestTranslator_AddressChange(t *testing.T) {
	tr := newTranslator(self)

	_, err := tr.translate(nodeEvent(memberlist.NodeJoin, "node2", "10.0.0.2", 1, 8000))
	require.NoError(t, err)

	events, err := tr.translate(nodeEvent(memberlist.NodeJoin, "node2", "10.0.0.3", 1, 8000))
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.Equal(t, membership.Address{Host: "10.0.0.2", Port: 7946}, events[0].Address)
	require.NotNil(t, events[0].Old)
	require.Nil(t, events[0].New)

	require.Equal(t, membership.Address{Host: "10.0.0.3", Port: 7946}, events[1].Address)
	require.Nil(t, events[1].Old)
	require.Equal(t, membership.HealthAlive, events[1].New.Health)
}

func TestTranslator_InvalidMeta(t *testing.T) {
	tr := newTranslator(self)

	ev := nodeEvent(memberlist.NodeJoin, "node2", "10.0.0.2", 1, 8000)
	ev.Node.Meta = nil

	_, err := tr.translate(ev)
	require.ErrorIs(t, err, membership.ErrInvalidMeta)

	// The node stays unknown, so its departure is not reported.
	events, err := tr.translate(leaveEvent("node2", "10.0.0.2"))
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestMetaDelegate_NodeMeta(t *testing.T) {
	d := newMetaDelegate(3, 8080)

	st, port, err := membership.DecodeMeta(d.NodeMeta(memberlist.MetaMaxSize))
	require.NoError(t, err)
	require.Equal(t, membership.ServiceType(3), st)
	require.Equal(t, uint16(8080), port)

	require.Nil(t, d.NodeMeta(1))
	require.False(t, isLeaving(d.NodeMeta(memberlist.MetaMaxSize)))

	d.setLeaving()

	meta := d.NodeMeta(memberlist.MetaMaxSize)
	require.True(t, isLeaving(meta))

	// The service fields are still readable.
	st, port, err = membership.DecodeMeta(meta)
	require.NoError(t, err)
	require.Equal(t, membership.ServiceType(3), st)
	require.Equal(t, uint16(8080), port)
}

func TestIsLeaving(t *testing.T) {
	require.False(t, isLeaving(nil))
	require.False(t, isLeaving([]byte{0xff}))
	require.False(t, isLeaving(membership.EncodeMeta(1, 8000)))
	require.True(t, isLeaving(leavingMeta(membership.EncodeMeta(1, 8000))))
}
