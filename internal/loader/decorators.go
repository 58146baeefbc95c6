package loader

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/valyala/fasthttp"

	"github.com/vyrodovalexey/avaegress/internal/override"
	"github.com/vyrodovalexey/avaegress/internal/tlsupgrade"
)

// The decorators below expose a handle through the interface its component
// implements, so callers go through the installed overrides. Code holding
// the original value bypasses them.

// RoundTripper returns an http.RoundTripper backed by the handle of an
// *http.Transport, or of any component with the same RoundTrip method.
func RoundTripper(h *override.Handle) http.RoundTripper {
	return &roundTripper{h: h}
}

// HTTPClient returns a client sending requests through RoundTripper(h).
func HTTPClient(h *override.Handle) *http.Client {
	return &http.Client{Transport: RoundTripper(h)}
}

type roundTripper struct {
	h *override.Handle
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := rt.h.Invoke("RoundTrip", req)
	if err != nil {
		return nil, err
	}
	return pair[*http.Response](rt.h, "RoundTrip", res)
}

// CloseIdleConnections lets http.Client.CloseIdleConnections reach the
// wrapped transport.
func (rt *roundTripper) CloseIdleConnections() {
	_, _ = rt.h.Invoke("CloseIdleConnections")
}

// FastClient is the request API shared by fasthttp clients.
type FastClient interface {
	Do(req *fasthttp.Request, resp *fasthttp.Response) error
	DoTimeout(req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error
	DoDeadline(req *fasthttp.Request, resp *fasthttp.Response, deadline time.Time) error
}

// FastDoer returns a FastClient backed by the handle of a fasthttp Client,
// HostClient or PipelineClient.
func FastDoer(h *override.Handle) FastClient {
	return &fastDoer{h: h}
}

type fastDoer struct {
	h *override.Handle
}

func (d *fastDoer) Do(req *fasthttp.Request, resp *fasthttp.Response) error {
	return d.call("Do", req, resp)
}

func (d *fastDoer) DoTimeout(req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error {
	return d.call("DoTimeout", req, resp, timeout)
}

func (d *fastDoer) DoDeadline(req *fasthttp.Request, resp *fasthttp.Response, deadline time.Time) error {
	return d.call("DoDeadline", req, resp, deadline)
}

// DoRedirects is available when the wrapped client supports it.
func (d *fastDoer) DoRedirects(req *fasthttp.Request, resp *fasthttp.Response, maxRedirects int) error {
	return d.call("DoRedirects", req, resp, maxRedirects)
}

func (d *fastDoer) call(method string, args ...any) error {
	res, err := d.h.Invoke(method, args...)
	if err != nil {
		return err
	}
	if len(res) != 1 {
		return fmt.Errorf("%w: %s.%s returned %d values", ErrUnexpectedResult, d.h.Name(), method, len(res))
	}
	return asError(res[0])
}

// WebsocketDialer returns a dialer backed by the handle of a
// *websocket.Dialer.
func WebsocketDialer(h *override.Handle) *HandleDialer {
	return &HandleDialer{h: h}
}

// HandleDialer dials websocket connections through a handle.
type HandleDialer struct {
	h *override.Handle
}

// DialContext mirrors websocket.Dialer.DialContext.
func (d *HandleDialer) DialContext(ctx context.Context, urlStr string, header http.Header) (*websocket.Conn, *http.Response, error) {
	return d.dial("DialContext", ctx, urlStr, header)
}

// Dial mirrors websocket.Dialer.Dial.
func (d *HandleDialer) Dial(urlStr string, header http.Header) (*websocket.Conn, *http.Response, error) {
	return d.dial("Dial", urlStr, header)
}

func (d *HandleDialer) dial(method string, args ...any) (*websocket.Conn, *http.Response, error) {
	res, err := d.h.Invoke(method, args...)
	if err != nil {
		return nil, nil, err
	}
	if len(res) != 3 {
		return nil, nil, fmt.Errorf("%w: %s.%s returned %d values", ErrUnexpectedResult, d.h.Name(), method, len(res))
	}
	conn, _ := res[0].(*websocket.Conn)
	resp, _ := res[1].(*http.Response)
	return conn, resp, asError(res[2])
}

// ProxyFunc returns a proxy function backed by the handle of an
// *httpproxy.Config. The config's ProxyFunc is consulted on every call.
func ProxyFunc(h *override.Handle) func(*url.URL) (*url.URL, error) {
	return func(u *url.URL) (*url.URL, error) {
		res, err := h.Invoke("ProxyFunc")
		if err != nil {
			return nil, err
		}
		if len(res) != 1 {
			return nil, fmt.Errorf("%w: %s.ProxyFunc returned %d values", ErrUnexpectedResult, h.Name(), len(res))
		}
		fn, ok := res[0].(func(*url.URL) (*url.URL, error))
		if !ok || fn == nil {
			return nil, fmt.Errorf("%w: %s.ProxyFunc returned %T", ErrUnexpectedResult, h.Name(), res[0])
		}
		return fn(u)
	}
}

// Upgrader returns a tlsupgrade.Upgrader backed by the handle of an
// upgrade strategy.
func Upgrader(h *override.Handle) tlsupgrade.Upgrader {
	return &upgrader{h: h}
}

type upgrader struct {
	h *override.Handle
}

func (u *upgrader) Upgrade(ctx context.Context, conn net.Conn, serverName string) (net.Conn, error) {
	res, err := u.h.Invoke("Upgrade", ctx, conn, serverName)
	if err != nil {
		return nil, err
	}
	return pair[net.Conn](u.h, "Upgrade", res)
}

// pair unpacks a (T, error) result list.
func pair[T any](h *override.Handle, method string, res []any) (T, error) {
	var zero T
	if len(res) != 2 {
		return zero, fmt.Errorf("%w: %s.%s returned %d values", ErrUnexpectedResult, h.Name(), method, len(res))
	}
	if err := asError(res[1]); err != nil {
		return zero, err
	}
	if res[0] == nil {
		return zero, nil
	}
	v, ok := res[0].(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s.%s returned %T", ErrUnexpectedResult, h.Name(), method, res[0])
	}
	return v, nil
}

func asError(v any) error {
	if v == nil {
		return nil
	}
	if err, ok := v.(error); ok {
		return err
	}
	return fmt.Errorf("%w: %T is not an error", ErrUnexpectedResult, v)
}

var (
	_ http.RoundTripper   = (*roundTripper)(nil)
	_ FastClient          = (*fastDoer)(nil)
	_ FastClient          = (*fasthttp.Client)(nil)
	_ FastClient          = (*fasthttp.HostClient)(nil)
	_ FastClient          = (*fasthttp.PipelineClient)(nil)
	_ tlsupgrade.Upgrader = (*upgrader)(nil)
)
