package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/maxpoletaev/gossiplb/loadbalancer"
	"github.com/maxpoletaev/gossiplb/membership"
)

var opts struct {
	Node struct {
		Name string `long:"name" env:"NAME" description:"unique node name (defaults to hostname)"`
	} `group:"node" namespace:"node" env-namespace:"NODE"`

	Service struct {
		Type     uint8  `long:"type" env:"TYPE" required:"true" description:"type of the service provided by this node"`
		BindHost string `long:"bind-host" env:"BIND_HOST" description:"host to bind the grpc health server"`
		Port     uint16 `long:"port" env:"PORT" default:"8000" description:"service port, announced to other nodes"`
	} `group:"service" namespace:"service" env-namespace:"SERVICE"`

	Gossip struct {
		BindAddr      string `long:"bind-addr" env:"BIND_ADDR" default:"0.0.0.0" description:"address to bind gossip listener"`
		BindPort      int    `long:"bind-port" env:"BIND_PORT" default:"7946" description:"port to bind gossip listener"`
		AdvertiseAddr string `long:"advertise-addr" env:"ADVERTISE_ADDR" description:"address to advertise to other nodes"`
		AdvertisePort int    `long:"advertise-port" env:"ADVERTISE_PORT" description:"port to advertise to other nodes"`
		JoinAddrs     string `long:"join-addrs" env:"JOIN_ADDRS" description:"comma-separated list of nodes to join"`
		EventBuffer   int    `long:"event-buffer" env:"EVENT_BUFFER" default:"64" description:"number of queued membership events"`
	} `group:"gossip" namespace:"gossip" env-namespace:"GOSSIP"`

	Redis struct {
		Addr           string `long:"addr" env:"ADDR" description:"redis address, enables redis discovery instead of gossip"`
		Namespace      string `long:"namespace" env:"NAMESPACE" default:"gossiplb" description:"pub/sub channel name"`
		AdvertiseHost  string `long:"advertise-host" env:"ADVERTISE_HOST" description:"host to advertise to other nodes"`
		UpdateInterval int    `long:"update-interval" env:"UPDATE_INTERVAL" default:"1000" description:"heartbeat interval (ms)"`
		ExpiryInterval int    `long:"expiry-interval" env:"EXPIRY_INTERVAL" default:"5000" description:"node expiry interval (ms)"`
	} `group:"redis" namespace:"redis" env-namespace:"REDIS"`

	Balance struct {
		Types          string `long:"types" env:"TYPES" description:"comma-separated list of service types to balance"`
		IdentityChange string `long:"identity-change" env:"IDENTITY_CHANGE" default:"both" choice:"both" choice:"either" description:"what makes a node switch services"`
		DialTimeout    int    `long:"dial-timeout" env:"DIAL_TIMEOUT" default:"3000" description:"endpoint connection timeout (ms)"`
		ProbeInterval  int    `long:"probe-interval" env:"PROBE_INTERVAL" default:"5000" description:"endpoint health check interval (ms)"`
		ProbeTimeout   int    `long:"probe-timeout" env:"PROBE_TIMEOUT" default:"1000" description:"endpoint health check timeout (ms)"`
	} `group:"balance" namespace:"balance" env-namespace:"BALANCE"`

	API struct {
		Enabled  bool   `long:"enabled" env:"ENABLED" description:"enable admin api"`
		BindAddr string `long:"bind-addr" env:"BIND_ADDR" default:":8080" description:"address to bind admin api server"`
	} `group:"api" namespace:"api" env-namespace:"API"`

	Verbose bool `long:"verbose" env:"VERBOSE" description:"verbose mode"`
}

func parseAddrs(addrs string) []string {
	sl := strings.Split(addrs, ",")
	res := make([]string, 0, len(sl))

	for _, addr := range sl {
		trimmed := strings.TrimSpace(addr)
		if trimmed != "" {
			res = append(res, trimmed)
		}
	}

	return res
}

func parseServiceTypes(types string) ([]membership.ServiceType, error) {
	var res []membership.ServiceType

	for _, s := range parseAddrs(types) {
		v, err := strconv.ParseUint(s, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid service type %q: %w", s, err)
		}

		res = append(res, membership.ServiceType(v))
	}

	return res, nil
}

func parseIdentityChange(s string) (loadbalancer.IdentityChangePolicy, error) {
	switch s {
	case "both":
		return loadbalancer.IdentityChangeBoth, nil
	case "either":
		return loadbalancer.IdentityChangeEither, nil
	default:
		return 0, fmt.Errorf("unknown identity change policy: %q", s)
	}
}
