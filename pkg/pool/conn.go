package pool

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Transport is the minimal surface the pool needs from a connection. The
// core is transport-agnostic: the embedding application supplies a Dialer
// for its own RPC mechanism (see pkg/grpcconn for the gRPC implementation).
type Transport interface {
	Close() error
}

// Dialer creates a new transport connection to an endpoint.
type Dialer func(ctx context.Context, endpoint string) (Transport, error)

// Conn is a pooled connection to one endpoint.
type Conn struct {
	id        string
	endpoint  string
	transport Transport
	createdAt time.Time
	lastUsed  time.Time
}

func newConn(endpoint string, t Transport) *Conn {
	now := time.Now()
	return &Conn{
		id:        uuid.NewString(),
		endpoint:  endpoint,
		transport: t,
		createdAt: now,
		lastUsed:  now,
	}
}

// ID returns the unique identifier of this connection.
func (c *Conn) ID() string { return c.id }

// Endpoint returns the endpoint this connection is bound to.
func (c *Conn) Endpoint() string { return c.endpoint }

// Transport returns the underlying transport connection.
func (c *Conn) Transport() Transport { return c.transport }

// CreatedAt returns when the connection was dialed.
func (c *Conn) CreatedAt() time.Time { return c.createdAt }
