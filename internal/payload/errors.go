package payload

import (
	"errors"
	"fmt"
)

// Sentinel errors for payload operations.
var (
	// ErrUnknownKey indicates a write to a key the engine does not recognise.
	ErrUnknownKey = errors.New("payload: unknown key")

	// ErrInvalidProxy indicates a proxy URL that cannot be used for dialing.
	ErrInvalidProxy = errors.New("payload: invalid proxy")

	// ErrNoTrustAnchors indicates a trust context with no certificates.
	ErrNoTrustAnchors = errors.New("payload: no trust anchors")

	// ErrConnectRefused indicates the proxy rejected a CONNECT request.
	ErrConnectRefused = errors.New("payload: proxy refused CONNECT")

	// ErrProxyUnavailable indicates a dial rejected by the open proxy
	// circuit breaker.
	ErrProxyUnavailable = errors.New("payload: proxy unavailable")
)

// ConnectError describes a CONNECT request answered with a non-200 status.
type ConnectError struct {
	Proxy      string
	Target     string
	StatusCode int
	Status     string
}

// Error implements the error interface.
func (e *ConnectError) Error() string {
	return fmt.Sprintf("payload: CONNECT %s via %s: %s", e.Target, e.Proxy, e.Status)
}

// Is reports whether target matches this error type.
func (e *ConnectError) Is(target error) bool {
	return target == ErrConnectRefused
}
