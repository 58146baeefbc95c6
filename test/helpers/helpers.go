package helpers

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// ConnectProxy is a forward proxy for tests. It tunnels CONNECT requests,
// forwards absolute-form requests and records every destination it serves.
type ConnectProxy struct {
	Server *httptest.Server

	// Username and Password, when set, are required in Proxy-Authorization.
	Username string
	Password string

	mu      sync.Mutex
	targets []string
	refuse  bool

	forward *http.Transport
}

// NewConnectProxy starts a proxy that is closed when t finishes.
func NewConnectProxy(t testing.TB) *ConnectProxy {
	t.Helper()

	p := &ConnectProxy{forward: &http.Transport{Proxy: nil}}
	p.Server = httptest.NewServer(http.HandlerFunc(p.serveHTTP))
	t.Cleanup(func() {
		p.Server.Close()
		p.forward.CloseIdleConnections()
	})
	return p
}

// URL returns the proxy URL, with credentials when they are required.
func (p *ConnectProxy) URL() *url.URL {
	u, _ := url.Parse(p.Server.URL)
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	return u
}

// Targets returns the destinations served so far.
func (p *ConnectProxy) Targets() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.targets...)
}

// Served reports whether target was served.
func (p *ConnectProxy) Served(target string) bool {
	for _, got := range p.Targets() {
		if got == target {
			return true
		}
	}
	return false
}

// Refuse makes the proxy answer every request with 403 Forbidden.
func (p *ConnectProxy) Refuse() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refuse = true
}

func (p *ConnectProxy) authorized(r *http.Request) bool {
	if p.Username == "" {
		return true
	}
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte(p.Username+":"+p.Password))
	return r.Header.Get("Proxy-Authorization") == want
}

func (p *ConnectProxy) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if !p.authorized(r) {
		w.Header().Set("Proxy-Authenticate", `Basic realm="test"`)
		w.WriteHeader(http.StatusProxyAuthRequired)
		return
	}

	p.mu.Lock()
	refuse := p.refuse
	p.targets = append(p.targets, r.Host)
	p.mu.Unlock()

	if refuse {
		w.WriteHeader(http.StatusForbidden)
		return
	}

	if r.Method == http.MethodConnect {
		p.tunnel(w, r)
		return
	}
	p.forwardRequest(w, r)
}

func (p *ConnectProxy) tunnel(w http.ResponseWriter, r *http.Request) {
	upstream, err := net.DialTimeout("tcp", r.Host, 5*time.Second)
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		upstream.Close()
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	client, buf, err := hijacker.Hijack()
	if err != nil {
		upstream.Close()
		return
	}

	if _, err := client.Write([]byte("HTTP/1.1 200 Connection established\r\n\r\n")); err != nil {
		client.Close()
		upstream.Close()
		return
	}

	go func() {
		defer upstream.Close()
		if n := buf.Reader.Buffered(); n > 0 {
			pending, _ := buf.Reader.Peek(n)
			_, _ = upstream.Write(pending)
		}
		_, _ = io.Copy(upstream, client)
	}()
	go func() {
		defer client.Close()
		_, _ = io.Copy(client, upstream)
	}()
}

func (p *ConnectProxy) forwardRequest(w http.ResponseWriter, r *http.Request) {
	out := r.Clone(r.Context())
	out.RequestURI = ""
	out.Header.Del("Proxy-Authorization")

	resp, err := p.forward.RoundTrip(out)
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for k, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

// WriteConfigFile writes content to name inside dir and returns the path.
func WriteConfigFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// ReadResponseBody reads and returns the response body as a string.
func ReadResponseBody(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// ContextWithTimeout creates a context with timeout for testing.
func ContextWithTimeout(t testing.TB, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// HostPort returns the host:port of a test server URL.
func HostPort(t testing.TB, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	if u.Port() == "" {
		require.FailNow(t, fmt.Sprintf("url %s has no port", rawURL))
	}
	return u.Host
}
