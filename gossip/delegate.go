package gossip

import (
	"sync/atomic"

	"github.com/hashicorp/memberlist"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/maxpoletaev/gossiplb/membership"
)

// metaFieldLeaving marks a node that is about to leave the cluster. It is
// appended to the service metadata, which skips fields it does not know.
const metaFieldLeaving protowire.Number = 15

func leavingMeta(meta []byte) []byte {
	b := append([]byte(nil), meta...)
	b = protowire.AppendTag(b, metaFieldLeaving, protowire.VarintType)

	return protowire.AppendVarint(b, 1)
}

// isLeaving reports whether the node metadata carries the leaving marker.
func isLeaving(meta []byte) bool {
	for len(meta) > 0 {
		num, typ, n := protowire.ConsumeTag(meta)
		if n < 0 {
			return false
		}

		meta = meta[n:]

		n = protowire.ConsumeFieldValue(num, typ, meta)
		if n < 0 {
			return false
		}

		if num == metaFieldLeaving && typ == protowire.VarintType {
			v, _ := protowire.ConsumeVarint(meta)
			return v != 0
		}

		meta = meta[n:]
	}

	return false
}

// metaDelegate advertises the local service in the node metadata. The rest of
// the memberlist delegate is not used, since membership is the only thing
// exchanged over gossip.
type metaDelegate struct {
	meta    []byte
	leaving atomic.Bool
}

func newMetaDelegate(st membership.ServiceType, port uint16) *metaDelegate {
	return &metaDelegate{
		meta: membership.EncodeMeta(st, port),
	}
}

// setLeaving makes the metadata announce that the node is leaving. The change
// reaches other nodes with the next node update.
func (d *metaDelegate) setLeaving() {
	d.leaving.Store(true)
}

func (d *metaDelegate) NodeMeta(limit int) []byte {
	meta := d.meta
	if d.leaving.Load() {
		meta = leavingMeta(meta)
	}

	if len(meta) > limit {
		return nil
	}

	return meta
}

func (d *metaDelegate) NotifyMsg([]byte)                           {}
func (d *metaDelegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (d *metaDelegate) LocalState(join bool) []byte                { return nil }
func (d *metaDelegate) MergeRemoteState(buf []byte, join bool)     {}

// Ensure metaDelegate satisfies the Delegate interface.
var _ memberlist.Delegate = &metaDelegate{}
