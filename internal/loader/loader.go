package loader

import (
	"context"
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/avaegress/internal/engine"
	"github.com/vyrodovalexey/avaegress/internal/observability"
	"github.com/vyrodovalexey/avaegress/internal/override"
)

// Loader describes live components, wraps them in handles and presents
// them to an engine.
type Loader struct {
	caps   *Capabilities
	logger observability.Logger
}

// Option is a functional option for configuring the loader.
type Option func(*Loader)

// WithLogger sets the logger for the loader.
func WithLogger(logger observability.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// WithCapabilities sets the capability registry used by Describe.
func WithCapabilities(caps *Capabilities) Option {
	return func(l *Loader) {
		l.caps = caps
	}
}

// New creates a loader with an empty capability registry unless one is
// supplied.
func New(opts ...Option) *Loader {
	l := &Loader{
		caps:   NewCapabilities(),
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Capabilities returns the loader's capability registry.
func (l *Loader) Capabilities() *Capabilities {
	return l.caps
}

// Attach wraps v and applies the engine's matching rules to it. The
// returned handle is the one to call through; see the decorators.
func (l *Loader) Attach(e *engine.Engine, v any) (*override.Handle, engine.Outcome, error) {
	return l.AttachContext(context.Background(), e, v)
}

// AttachContext is Attach with the engine's span started from ctx.
func (l *Loader) AttachContext(ctx context.Context, e *engine.Engine, v any) (*override.Handle, engine.Outcome, error) {
	h, err := l.Wrap(v)
	if err != nil {
		return nil, engine.Outcome{}, err
	}

	h, out := e.ApplyContext(ctx, h)
	l.logger.Debug("component attached",
		observability.String("component", h.Name()),
		observability.String("outcome", out.Kind.String()),
	)
	return h, out, nil
}

// InstallDefault attaches http.DefaultTransport and routes
// http.DefaultClient through it. Rules that refresh cached state on
// installation also rewrite the shared transport itself, so code using it
// directly sees the payload current at installation time.
//
// The returned function restores http.DefaultClient.
func (l *Loader) InstallDefault(e *engine.Engine) (func(), engine.Outcome, error) {
	transport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, engine.Outcome{}, fmt.Errorf("%w: http.DefaultTransport is %T", ErrUnsupportedTarget, http.DefaultTransport)
	}
	return l.install(e, http.DefaultClient, transport)
}

func (l *Loader) install(e *engine.Engine, client *http.Client, transport *http.Transport) (func(), engine.Outcome, error) {
	h, out, err := l.Attach(e, transport)
	if err != nil {
		return nil, out, err
	}
	if out.Kind != engine.Transformed {
		return func() {}, out, nil
	}

	previous := client.Transport
	client.Transport = RoundTripper(h)
	l.logger.Info("default HTTP client routed through egress overrides",
		observability.Strings("rules", out.Rules),
	)
	return func() { client.Transport = previous }, out, nil
}
