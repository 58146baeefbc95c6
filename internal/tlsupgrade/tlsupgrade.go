package tlsupgrade

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"
)

// Sentinel errors for upgrade operations.
var (
	// ErrHandshake indicates the TLS handshake on an upgraded connection failed.
	ErrHandshake = errors.New("tls upgrade handshake failed")

	// ErrNoCertificate indicates a server strategy has no certificate to present.
	ErrNoCertificate = errors.New("tls upgrade: server certificate required")
)

// DefaultHandshakeTimeout bounds client handshakes when no timeout is set.
const DefaultHandshakeTimeout = 10 * time.Second

// Upgrader switches an established plaintext connection to TLS, as
// protocols with an in-band STARTTLS command do.
type Upgrader interface {
	Upgrade(ctx context.Context, conn net.Conn, serverName string) (net.Conn, error)
}

// ClientStrategy upgrades the client side of a connection.
type ClientStrategy struct {
	// TLSConfig is used for every upgrade. Its ServerName, when empty, is
	// taken from the serverName argument.
	TLSConfig        *tls.Config
	HandshakeTimeout time.Duration
}

// NewClientStrategy creates a client strategy with cfg.
func NewClientStrategy(cfg *tls.Config) *ClientStrategy {
	return &ClientStrategy{TLSConfig: cfg, HandshakeTimeout: DefaultHandshakeTimeout}
}

// Upgrade performs the client handshake over conn. conn is closed when the
// handshake fails.
func (s *ClientStrategy) Upgrade(ctx context.Context, conn net.Conn, serverName string) (net.Conn, error) {
	cfg := s.config()
	if cfg.ServerName == "" {
		cfg.ServerName = serverName
	}

	timeout := s.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrHandshake, serverName, err)
	}
	return tlsConn, nil
}

func (s *ClientStrategy) config() *tls.Config {
	if s.TLSConfig == nil {
		return &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return s.TLSConfig.Clone()
}

// ServerStrategy upgrades the server side of a connection.
type ServerStrategy struct {
	TLSConfig *tls.Config
}

// NewServerStrategy creates a server strategy with cfg.
func NewServerStrategy(cfg *tls.Config) *ServerStrategy {
	return &ServerStrategy{TLSConfig: cfg}
}

// Upgrade performs the server handshake over conn. serverName is ignored.
func (s *ServerStrategy) Upgrade(ctx context.Context, conn net.Conn, _ string) (net.Conn, error) {
	if s.TLSConfig == nil || (len(s.TLSConfig.Certificates) == 0 && s.TLSConfig.GetCertificate == nil) {
		return nil, ErrNoCertificate
	}

	tlsConn := tls.Server(conn, s.TLSConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	return tlsConn, nil
}

var (
	_ Upgrader = (*ClientStrategy)(nil)
	_ Upgrader = (*ServerStrategy)(nil)
)
