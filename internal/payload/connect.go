package payload

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

func init() {
	// Lets proxy.FromURL build dialers for HTTP proxies in addition to the
	// SOCKS5 dialer x/net ships with.
	proxy.RegisterDialerType("http", func(u *url.URL, forward proxy.Dialer) (proxy.Dialer, error) {
		return newConnectDialer(u, forward, nil)
	})
	proxy.RegisterDialerType("https", func(u *url.URL, forward proxy.Dialer) (proxy.Dialer, error) {
		return newConnectDialer(u, forward, nil)
	})
}

// connectDialer tunnels connections through an HTTP proxy with CONNECT.
type connectDialer struct {
	proxyAddr string
	auth      string
	forward   proxy.Dialer

	// tlsConfig is set for https proxies.
	tlsConfig *tls.Config
}

// newConnectDialer creates a CONNECT dialer for the proxy at u. For https
// proxies the proxy certificate is verified with tlsConfig, or the system
// roots when tlsConfig is nil.
func newConnectDialer(u *url.URL, forward proxy.Dialer, tlsConfig *tls.Config) (*connectDialer, error) {
	if u.Hostname() == "" {
		return nil, ErrInvalidProxy
	}

	d := &connectDialer{
		proxyAddr: canonicalAddr(u),
		forward:   forward,
	}
	if forward == nil {
		d.forward = proxy.Direct
	}

	if u.User != nil {
		password, _ := u.User.Password()
		credentials := u.User.Username() + ":" + password
		d.auth = "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials))
	}

	if u.Scheme == "https" {
		cfg := &tls.Config{MinVersion: tls.VersionTLS12}
		if tlsConfig != nil {
			cfg = tlsConfig.Clone()
		}
		if cfg.ServerName == "" {
			cfg.ServerName = u.Hostname()
		}
		d.tlsConfig = cfg
	}
	return d, nil
}

// Dial implements proxy.Dialer.
func (d *connectDialer) Dial(network, addr string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, addr)
}

// DialContext implements proxy.ContextDialer.
func (d *connectDialer) DialContext(ctx context.Context, _, addr string) (net.Conn, error) {
	conn, err := dialForward(ctx, d.forward, "tcp", d.proxyAddr)
	if err != nil {
		return nil, err
	}

	if d.tlsConfig != nil {
		tlsConn := tls.Client(conn, d.tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		conn = tlsConn
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer func() { _ = conn.SetDeadline(time.Time{}) }()
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if d.auth != "" {
		req.Header.Set("Proxy-Authorization", d.auth)
	}
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, err
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		conn.Close()
		return nil, err
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, &ConnectError{
			Proxy:      d.proxyAddr,
			Target:     addr,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
		}
	}

	if br.Buffered() > 0 {
		return &bufferedConn{Conn: conn, r: br}, nil
	}
	return conn, nil
}

// bufferedConn returns bytes the proxy sent after its CONNECT response
// before reading from the connection.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.r.Read(p)
}

func dialForward(ctx context.Context, d proxy.Dialer, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, addr)
	}

	type result struct {
		conn net.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := d.Dial(network, addr)
		done <- result{conn, err}
	}()

	select {
	case r := <-done:
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-done; r.conn != nil {
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// canonicalAddr returns host:port for u, defaulting the port by scheme.
func canonicalAddr(u *url.URL) string {
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		case "socks5", "socks5h":
			port = "1080"
		default:
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port)
}
