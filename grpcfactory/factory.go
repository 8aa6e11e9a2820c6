package grpcfactory

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/maxpoletaev/gossiplb/loadbalancer"
	"github.com/maxpoletaev/gossiplb/membership"
)

type Config struct {
	// DialTimeout makes Create wait until the connection is established. If
	// zero, connections are established in the background.
	DialTimeout time.Duration

	// DialOptions are appended to the default options.
	DialOptions []grpc.DialOption
}

func DefaultConfig() Config {
	return Config{
		DialTimeout: 3 * time.Second,
	}
}

// Factory creates gRPC client connections to the members of a service.
type Factory struct {
	conf Config
}

func New(conf Config) *Factory {
	return &Factory{conf: conf}
}

func (f *Factory) dialOptions() []grpc.DialOption {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}

	if f.conf.DialTimeout > 0 {
		opts = append(opts, grpc.WithBlock())
	}

	return append(opts, f.conf.DialOptions...)
}

// Create connects to the service port on the host of the member.
func (f *Factory) Create(addr membership.Address, port uint16) (*grpc.ClientConn, error) {
	target := net.JoinHostPort(addr.Host, strconv.Itoa(int(port)))

	ctx := context.Background()

	if f.conf.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.conf.DialTimeout)

		defer cancel()
	}

	conn, err := grpc.DialContext(ctx, target, f.dialOptions()...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial failed: %w", err)
	}

	return conn, nil
}

// Destroy closes the connection.
func (f *Factory) Destroy(conn *grpc.ClientConn) error {
	return conn.Close()
}

// IsReady reports whether the connection is ready to serve requests.
func IsReady(conn *grpc.ClientConn) bool {
	return conn.GetState() == connectivity.Ready
}

var _ loadbalancer.Factory[*grpc.ClientConn] = &Factory{}
