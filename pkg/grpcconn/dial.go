// Package grpcconn provides the gRPC transport used by the pool and the
// health prober. Endpoints ending in :443 or using a grpcs:// or https://
// scheme dial with TLS; everything else (local servers, tests) dials
// plaintext.
package grpcconn

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/meridianid/bws-client/pkg/pool"
)

// DialConfig tunes the transport connections.
type DialConfig struct {
	// KeepaliveTime is the interval of transport-level pings on an idle
	// connection. Default 30s.
	KeepaliveTime time.Duration

	// KeepaliveTimeout is how long a ping may go unanswered before the
	// connection is considered dead. Default 10s.
	KeepaliveTimeout time.Duration

	// MaxRecvMsgSize bounds inbound messages. Face images are large, so the
	// default is 16 MiB.
	MaxRecvMsgSize int
}

func (c *DialConfig) applyDefaults() {
	if c.KeepaliveTime <= 0 {
		c.KeepaliveTime = 30 * time.Second
	}
	if c.KeepaliveTimeout <= 0 {
		c.KeepaliveTimeout = 10 * time.Second
	}
	if c.MaxRecvMsgSize <= 0 {
		c.MaxRecvMsgSize = 16 * 1024 * 1024
	}
}

// target splits an endpoint address into a dialable target and whether it
// requires TLS.
func target(endpoint string) (string, bool) {
	switch {
	case strings.HasPrefix(endpoint, "grpcs://"):
		return strings.TrimPrefix(endpoint, "grpcs://"), true
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "grpc://"):
		return strings.TrimPrefix(endpoint, "grpc://"), false
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimPrefix(endpoint, "http://"), false
	default:
		return endpoint, strings.HasSuffix(endpoint, ":443")
	}
}

func dialOptions(cfg DialConfig, endpoint string) (string, []grpc.DialOption) {
	addr, useTLS := target(endpoint)

	var opts []grpc.DialOption
	if useTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	opts = append(opts,
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                cfg.KeepaliveTime,
			Timeout:             cfg.KeepaliveTimeout,
			PermitWithoutStream: true,
		}),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(cfg.MaxRecvMsgSize)),
	)
	return addr, opts
}

// NewDialer returns a pool.Dialer that creates gRPC client connections.
func NewDialer(cfg DialConfig) pool.Dialer {
	cfg.applyDefaults()
	return func(ctx context.Context, endpoint string) (pool.Transport, error) {
		addr, opts := dialOptions(cfg, endpoint)
		conn, err := grpc.NewClient(addr, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create grpc client for %s: %w", endpoint, err)
		}
		return conn, nil
	}
}

// ClientConn extracts the gRPC connection from a pooled connection. It
// returns an error when the pooled transport is not gRPC, which only happens
// with a custom dialer.
func ClientConn(conn *pool.Conn) (*grpc.ClientConn, error) {
	cc, ok := conn.Transport().(*grpc.ClientConn)
	if !ok {
		return nil, fmt.Errorf("pooled connection %s does not carry a grpc transport", conn.ID())
	}
	return cc, nil
}
