package gossip

import (
	"time"

	"github.com/go-kit/log"
	"github.com/hashicorp/memberlist"

	"github.com/maxpoletaev/gossiplb/membership"
)

type Config struct {
	// NodeName is the unique name of the local node in the cluster.
	// Defaults to the hostname.
	NodeName string

	// BindAddr and BindPort are where the gossip listener accepts messages.
	// A zero port picks a random free one.
	BindAddr string
	BindPort int

	// AdvertiseAddr and AdvertisePort are announced to the other nodes. If not
	// set, the bind address is used.
	AdvertiseAddr string
	AdvertisePort int

	// ServiceType and ServicePort describe the service provided by the local
	// node. They are attached to the node metadata, so that the other nodes
	// know how to reach it.
	ServiceType membership.ServiceType
	ServicePort uint16

	// EventBuffer is the number of membership events that can be queued
	// while the listener is busy. Once the buffer is full, gossip processing
	// waits for the listener.
	EventBuffer int

	// JoinMaxElapsed limits the time Join keeps retrying. Zero means
	// retrying until the context is done.
	JoinMaxElapsed time.Duration

	// Memberlist is the base memberlist configuration. Names, addresses and
	// delegates are overwritten. If nil, the default LAN configuration is used.
	Memberlist *memberlist.Config

	// Logger is a go-kit logger for membership changes. Messages of the
	// memberlist library itself are logged at the debug level.
	Logger log.Logger
}

// DefaultConfig creates a Config with reasonable default values.
func DefaultConfig() *Config {
	return &Config{
		BindAddr:    "0.0.0.0",
		BindPort:    7946,
		EventBuffer: 64,
		Logger:      log.NewNopLogger(),
	}
}
