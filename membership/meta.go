package membership

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrInvalidMeta is returned when node metadata cannot be decoded.
var ErrInvalidMeta = errors.New("invalid node meta")

const (
	metaFieldServiceType protowire.Number = 1
	metaFieldServicePort protowire.Number = 2
)

// EncodeMeta encodes the advertised service of a member into a compact binary
// form suitable for gossip metadata. The layout is compatible with a protobuf
// message with two varint fields.
func EncodeMeta(serviceType ServiceType, servicePort uint16) []byte {
	b := make([]byte, 0, 6)
	b = protowire.AppendTag(b, metaFieldServiceType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(serviceType))
	b = protowire.AppendTag(b, metaFieldServicePort, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(servicePort))

	return b
}

// DecodeMeta decodes metadata produced by EncodeMeta. Unknown fields are skipped.
func DecodeMeta(b []byte) (ServiceType, uint16, error) {
	var (
		serviceType, servicePort uint64
		hasType, hasPort         bool
	)

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, 0, fmt.Errorf("%w: %v", ErrInvalidMeta, protowire.ParseError(n))
		}

		b = b[n:]

		if typ == protowire.VarintType && (num == metaFieldServiceType || num == metaFieldServicePort) {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, 0, fmt.Errorf("%w: %v", ErrInvalidMeta, protowire.ParseError(n))
			}

			b = b[n:]

			switch num {
			case metaFieldServiceType:
				serviceType, hasType = v, true
			case metaFieldServicePort:
				servicePort, hasPort = v, true
			}

			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return 0, 0, fmt.Errorf("%w: %v", ErrInvalidMeta, protowire.ParseError(n))
		}

		b = b[n:]
	}

	if !hasType || !hasPort {
		return 0, 0, fmt.Errorf("%w: missing service fields", ErrInvalidMeta)
	}

	if serviceType > math.MaxUint8 || servicePort > math.MaxUint16 {
		return 0, 0, fmt.Errorf("%w: value out of range", ErrInvalidMeta)
	}

	return ServiceType(serviceType), uint16(servicePort), nil
}
