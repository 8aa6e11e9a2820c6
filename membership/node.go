package membership

import (
	"fmt"
	"net"
	"strconv"
)

// ServiceType identifies the kind of service a member provides.
type ServiceType uint8

// Address is the identity of a cluster member. It is comparable, so it can be
// used as a map key.
type Address struct {
	Host string
	Port uint16
}

// String returns the address in the host:port form.
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}

// ParseAddress parses an address in the host:port form.
func ParseAddress(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Address{}, fmt.Errorf("invalid port in %q: %w", s, err)
	}

	return Address{Host: host, Port: uint16(port)}, nil
}

// State is the health and the advertised service of a member at some point in time.
type State struct {
	Health      Health
	ServiceType ServiceType
	ServicePort uint16
}
