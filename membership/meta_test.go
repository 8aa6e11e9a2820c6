package membership

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestDecodeMeta(t *testing.T) {
	serviceType, port, err := DecodeMeta(EncodeMeta(7, 8080))
	require.NoError(t, err)
	assert.Equal(t, ServiceType(7), serviceType)
	assert.Equal(t, uint16(8080), port)
}

func TestDecodeMeta_SkipsUnknownFields(t *testing.T) {
	b := protowire.AppendTag(nil, 15, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte("zone-a"))
	b = append(b, EncodeMeta(2, 30)...)

	serviceType, port, err := DecodeMeta(b)
	require.NoError(t, err)
	assert.Equal(t, ServiceType(2), serviceType)
	assert.Equal(t, uint16(30), port)
}

func TestDecodeMeta_Invalid(t *testing.T) {
	tests := map[string][]byte{
		"empty":     nil,
		"truncated": EncodeMeta(1, 8080)[:4],
		"no port":   protowire.AppendVarint(protowire.AppendTag(nil, 1, protowire.VarintType), 1),
		"type overflow": func() []byte {
			b := protowire.AppendTag(nil, 1, protowire.VarintType)
			b = protowire.AppendVarint(b, 300)
			b = protowire.AppendTag(b, 2, protowire.VarintType)
			return protowire.AppendVarint(b, 80)
		}(),
	}

	for name, b := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := DecodeMeta(b)
			assert.ErrorIs(t, err, ErrInvalidMeta)
		})
	}
}
