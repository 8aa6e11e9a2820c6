package membership

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddress_String(t *testing.T) {
	assert.Equal(t, "10.0.0.1:7946", Address{Host: "10.0.0.1", Port: 7946}.String())
	assert.Equal(t, "[::1]:80", Address{Host: "::1", Port: 80}.String())
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("10.0.0.1:7946")
	require.NoError(t, err)
	assert.Equal(t, Address{Host: "10.0.0.1", Port: 7946}, addr)

	addr, err = ParseAddress("[::1]:80")
	require.NoError(t, err)
	assert.Equal(t, Address{Host: "::1", Port: 80}, addr)

	_, err = ParseAddress("10.0.0.1")
	assert.Error(t, err)

	_, err = ParseAddress("10.0.0.1:70000")
	assert.Error(t, err)
}

func TestListenerFunc(t *testing.T) {
	var got Event

	l := ListenerFunc(func(e Event) error {
		got = e
		return nil
	})

	e := Event{Address: Address{Host: "a", Port: 1}, New: &State{Health: HealthAlive}}
	require.NoError(t, l.HandleEvent(e))
	assert.Equal(t, e, got)
}
