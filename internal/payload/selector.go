package payload

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"reflect"
	"time"

	"golang.org/x/net/proxy"
)

const defaultKeepAlive = 30 * time.Second

// Selector is the active proxy selector payload. It answers which proxy a
// destination goes through and dials destinations through it.
type Selector struct {
	proxyURL *url.URL
	bypass   *bypassList
	timeout  time.Duration
	direct   *net.Dialer
	dialer   proxy.Dialer
	breaker  *dialBreaker
}

// SelectorOption is a functional option for configuring a Selector.
type SelectorOption func(*selectorOptions)

type selectorOptions struct {
	noProxy   []string
	timeout   time.Duration
	tlsConfig *tls.Config

	breakerThreshold int
	breakerTimeout   time.Duration
	breakerHook      BreakerStateFunc
}

// WithNoProxy sets destinations dialed without the proxy.
func WithNoProxy(entries ...string) SelectorOption {
	return func(o *selectorOptions) {
		o.noProxy = append(o.noProxy, entries...)
	}
}

// WithDialTimeout bounds dialing the proxy and establishing the tunnel.
func WithDialTimeout(timeout time.Duration) SelectorOption {
	return func(o *selectorOptions) {
		o.timeout = timeout
	}
}

// WithProxyTLSConfig sets the TLS configuration used to verify https
// proxies.
func WithProxyTLSConfig(cfg *tls.Config) SelectorOption {
	return func(o *selectorOptions) {
		o.tlsConfig = cfg
	}
}

// WithCircuitBreaker opens a circuit after threshold consecutive failed
// proxy dials. While open, proxied dials fail with ErrProxyUnavailable
// until timeout has passed and a trial dial succeeds. Bypassed
// destinations are not affected.
func WithCircuitBreaker(threshold int, timeout time.Duration) SelectorOption {
	return func(o *selectorOptions) {
		o.breakerThreshold = threshold
		o.breakerTimeout = timeout
	}
}

// WithBreakerStateHook sets a function called on circuit breaker state
// changes.
func WithBreakerStateHook(fn BreakerStateFunc) SelectorOption {
	return func(o *selectorOptions) {
		o.breakerHook = fn
	}
}

// NewSelector creates a selector for the proxy at rawURL. Supported schemes
// are http, https, socks5 and socks5h.
func NewSelector(rawURL string, opts ...SelectorOption) (*Selector, error) {
	var o selectorOptions
	for _, opt := range opts {
		opt(&o)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProxy, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidProxy, rawURL)
	}

	direct := &net.Dialer{Timeout: o.timeout, KeepAlive: defaultKeepAlive}

	var dialer proxy.Dialer
	switch u.Scheme {
	case "http", "https":
		dialer, err = newConnectDialer(u, direct, o.tlsConfig)
	case "socks5", "socks5h":
		dialer, err = proxy.FromURL(u, direct)
	default:
		err = fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProxy, err)
	}

	s := &Selector{
		proxyURL: u,
		bypass:   parseBypassList(o.noProxy),
		timeout:  o.timeout,
		direct:   direct,
		dialer:   dialer,
	}
	if o.breakerThreshold > 0 {
		s.breaker = newDialBreaker(u.Redacted(), o.breakerThreshold, o.breakerTimeout, o.breakerHook)
	}
	return s, nil
}

// URL returns a copy of the proxy URL.
func (s *Selector) URL() *url.URL {
	u := *s.proxyURL
	if s.proxyURL.User != nil {
		user := *s.proxyURL.User
		u.User = &user
	}
	return &u
}

// String returns the proxy URL with credentials redacted.
func (s *Selector) String() string {
	return s.proxyURL.Redacted()
}

// ProxyForURL returns the proxy for a destination URL, or nil when the
// destination bypasses the proxy.
func (s *Selector) ProxyForURL(u *url.URL) (*url.URL, error) {
	if u != nil && s.bypass.bypass(canonicalAddr(u)) {
		return nil, nil
	}
	return s.URL(), nil
}

// ProxyForRequest returns the proxy for req. It has the signature of
// http.Transport.Proxy.
func (s *Selector) ProxyForRequest(req *http.Request) (*url.URL, error) {
	return s.ProxyForURL(req.URL)
}

// Bypass reports whether addr is dialed without the proxy.
func (s *Selector) Bypass(addr string) bool {
	return s.bypass.bypass(addr)
}

// DialContext dials addr through the proxy, or directly when addr bypasses
// the proxy.
func (s *Selector) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	if s.bypass.bypass(addr) {
		return s.direct.DialContext(ctx, network, addr)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if s.breaker == nil {
		return dialForward(ctx, s.dialer, network, addr)
	}
	return s.breaker.dial(func() (net.Conn, error) {
		return dialForward(ctx, s.dialer, network, addr)
	})
}

// BreakerState returns the proxy circuit breaker state, or "" when the
// selector has no circuit breaker.
func (s *Selector) BreakerState() string {
	if s.breaker == nil {
		return ""
	}
	return s.breaker.state()
}

// Dial implements proxy.Dialer.
func (s *Selector) Dial(network, addr string) (net.Conn, error) {
	return s.DialContext(context.Background(), network, addr)
}

// DialTCP dials a TCP address. It has the signature of fasthttp.DialFunc.
func (s *Selector) DialTCP(addr string) (net.Conn, error) {
	return s.Dial("tcp", addr)
}

// Adapt presents the selector as the proxy and dial hooks HTTP client
// libraries expose. Named function types with a matching signature, such
// as fasthttp.DialFunc, are accepted.
func (s *Selector) Adapt(t reflect.Type) (any, bool) {
	if t == urlType {
		return s.URL(), true
	}
	if t.Kind() == reflect.Interface && reflect.TypeOf(s).Implements(t) {
		return s, true
	}
	if t.Kind() != reflect.Func {
		return nil, false
	}

	for _, fn := range []any{
		s.ProxyForRequest,
		s.ProxyForURL,
		s.DialTCP,
		s.DialContext,
		s.Dial,
	} {
		if reflect.TypeOf(fn).ConvertibleTo(t) {
			return fn, true
		}
	}
	return nil, false
}

var urlType = reflect.TypeOf((*url.URL)(nil))

var (
	_ proxy.Dialer        = (*Selector)(nil)
	_ proxy.ContextDialer = (*Selector)(nil)
)
