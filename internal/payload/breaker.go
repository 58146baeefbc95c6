package payload

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerStateFunc is called when the proxy dial circuit breaker changes
// state. from and to are "closed", "half-open" or "open".
type BreakerStateFunc func(proxy, from, to string)

// dialBreaker guards proxied dials. Consecutive dial failures open the
// circuit; while open, dials fail with ErrProxyUnavailable without
// contacting the proxy.
type dialBreaker struct {
	cb *gobreaker.CircuitBreaker
}

func newDialBreaker(name string, threshold int, timeout time.Duration, onChange BreakerStateFunc) *dialBreaker {
	limit := safeIntToUint32(threshold)
	if limit == 0 {
		limit = 1
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= limit
		},
		IsSuccessful: proxyReachable,
	}
	if onChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			onChange(name, from.String(), to.String())
		}
	}
	return &dialBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// dial runs fn under the breaker.
func (b *dialBreaker) dial(fn func() (net.Conn, error)) (net.Conn, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s: %w", ErrProxyUnavailable, b.cb.Name(), err)
	}
	if err != nil {
		return nil, err
	}
	return v.(net.Conn), nil
}

// state returns the breaker state name.
func (b *dialBreaker) state() string {
	return b.cb.State().String()
}

// proxyReachable reports whether a dial outcome shows the proxy answering.
// A refused CONNECT came from a live proxy, and a cancelled caller says
// nothing about the proxy.
func proxyReachable(err error) bool {
	return err == nil ||
		errors.Is(err, ErrConnectRefused) ||
		errors.Is(err, context.Canceled)
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}
