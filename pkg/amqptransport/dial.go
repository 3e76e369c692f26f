package amqptransport

import (
	"context"
	"crypto/tls"
	"fmt"

	amqp "github.com/Azure/go-amqp"
)

// DefaultPort is the standard AMQP-over-TLS port used by IoT Hub and
// similar brokers.
const DefaultPort = 5671

// Session wraps a single AMQP connection and session opened against a
// device's IoT hub. It is the concrete type behind the controller's opaque
// session handle.
type Session struct {
	conn    *amqp.Conn
	session *amqp.Session
	host    string
}

// Dial opens an AMQP connection to host over TLS and establishes one
// session on it. host is the fully qualified hub hostname; tlsConfig may be
// nil, in which case Go's default TLS configuration is used.
func Dial(ctx context.Context, host string, tlsConfig *tls.Config) (*Session, error) {
	if host == "" {
		return nil, fmt.Errorf("amqptransport: host is empty")
	}

	conn, err := amqp.Dial(ctx, "amqps://"+host, &amqp.ConnOptions{
		TLSConfig: tlsConfig,
		SASLType:  amqp.SASLTypeAnonymous(),
	})
	if err != nil {
		return nil, fmt.Errorf("amqptransport: dial %s: %w", host, err)
	}

	sess, err := conn.NewSession(ctx, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqptransport: open session: %w", err)
	}

	return &Session{conn: conn, session: sess, host: host}, nil
}

// Host returns the hub hostname this session was dialed against.
func (s *Session) Host() string {
	return s.host
}

// NewSender opens a sender link targeting addr on this session.
func (s *Session) NewSender(ctx context.Context, addr string) (*amqp.Sender, error) {
	return s.session.NewSender(ctx, addr, nil)
}

// NewReceiver opens a receiver link sourced from addr on this session.
func (s *Session) NewReceiver(ctx context.Context, addr string) (*amqp.Receiver, error) {
	return s.session.NewReceiver(ctx, addr, nil)
}

// Close tears down the session and the underlying connection. It is safe to
// call Close more than once.
func (s *Session) Close(ctx context.Context) error {
	if s.session != nil {
		_ = s.session.Close(ctx)
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
