package tlsupgrade

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaegress/test/helpers"
)

// connPair returns both ends of a loopback TCP connection. Kernel buffers
// keep the handshakes from blocking on each other's unread records.
func connPair(t *testing.T) (client, server net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server, ok := <-accepted
	require.True(t, ok)

	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return client, server
}

type upgradeResult struct {
	conn net.Conn
	err  error
}

// serve upgrades conn as the server and, when greeting is set, writes it
// once the handshake completes.
func serve(t *testing.T, certs *helpers.TestCertificates, conn net.Conn, greeting string) <-chan upgradeResult {
	t.Helper()

	cfg, err := certs.GetServerTLSConfig()
	require.NoError(t, err)

	ch := make(chan upgradeResult, 1)
	go func() {
		c, err := NewServerStrategy(cfg).Upgrade(context.Background(), conn, "")
		if err == nil && greeting != "" {
			_, err = c.Write([]byte(greeting))
		}
		ch <- upgradeResult{conn: c, err: err}
	}()
	return ch
}

func TestClientStrategy_Upgrade(t *testing.T) {
	t.Parallel()

	certs := helpers.MustGenerateTestCertificates(t)
	clientSide, serverSide := connPair(t)
	server := serve(t, certs, serverSide, "250 OK")

	client := NewClientStrategy(certs.GetClientTLSConfig())
	conn, err := client.Upgrade(context.Background(), clientSide, "localhost")
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 6)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "250 OK", string(buf))

	res := <-server
	require.NoError(t, res.err)
	defer res.conn.Close()

	state := conn.(*tls.Conn).ConnectionState()
	assert.Equal(t, "localhost", state.ServerName)
	assert.True(t, state.HandshakeComplete)
	assert.Empty(t, client.TLSConfig.ServerName, "the configured TLS config is not modified")
}

func TestClientStrategy_UntrustedServer(t *testing.T) {
	t.Parallel()

	certs := helpers.MustGenerateTestCertificates(t)
	other := helpers.MustGenerateTestCertificates(t)
	clientSide, serverSide := connPair(t)
	server := serve(t, certs, serverSide, "")

	_, err := NewClientStrategy(other.GetClientTLSConfig()).Upgrade(context.Background(), clientSide, "localhost")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandshake)

	res := <-server
	assert.Error(t, res.err)
}

func TestClientStrategy_HandshakeTimeout(t *testing.T) {
	t.Parallel()

	clientSide, serverSide := connPair(t)
	go func() { _, _ = io.Copy(io.Discard, serverSide) }()

	client := &ClientStrategy{HandshakeTimeout: 50 * time.Millisecond}
	start := time.Now()
	_, err := client.Upgrade(context.Background(), clientSide, "mail.test")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandshake)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestServerStrategy_RequiresCertificate(t *testing.T) {
	t.Parallel()

	_, serverSide := connPair(t)

	_, err := NewServerStrategy(nil).Upgrade(context.Background(), serverSide, "")
	assert.ErrorIs(t, err, ErrNoCertificate)

	_, err = NewServerStrategy(&tls.Config{MinVersion: tls.VersionTLS12}).Upgrade(context.Background(), serverSide, "")
	assert.ErrorIs(t, err, ErrNoCertificate)
}
