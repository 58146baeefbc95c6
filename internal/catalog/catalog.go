package catalog

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/valyala/fasthttp"
	"golang.org/x/net/http/httpproxy"

	"github.com/vyrodovalexey/avaegress/internal/config"
	"github.com/vyrodovalexey/avaegress/internal/engine"
	"github.com/vyrodovalexey/avaegress/internal/override"
	"github.com/vyrodovalexey/avaegress/internal/shape"
	"github.com/vyrodovalexey/avaegress/internal/tlsupgrade"
)

// Built-in rule IDs.
const (
	NetHTTPTransport       = "net-http-transport"
	HTTPProxyConfig        = "httpproxy-config"
	FastHTTPClient         = "fasthttp-client"
	FastHTTPHostClient     = "fasthttp-host-client"
	FastHTTPPipelineClient = "fasthttp-pipeline-client"
	WebsocketDialer        = "websocket-dialer"
	TLSClientStrategy      = "tls-client-strategy"
)

// Capability names reported as supertypes by the loader.
const (
	CapabilityTLSUpgrader        = "github.com/vyrodovalexey/avaegress/internal/tlsupgrade.Upgrader"
	CapabilityWebsocketHandshake = "github.com/gorilla/websocket.Handshaker"
)

// DefaultFamily is the family of configuration-defined rules without one.
const DefaultFamily = "custom"

// websocketHandshaker is implemented by components that open a websocket
// connection from the client side.
type websocketHandshaker interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Describer derives a shape descriptor from a Go type.
type Describer interface {
	Describe(t reflect.Type) shape.Descriptor
}

// CapabilityRegistry records capability interfaces.
type CapabilityRegistry interface {
	Register(name string, iface reflect.Type) error
}

// RegisterCapabilities registers the capabilities the built-in rules match
// on.
func RegisterCapabilities(r CapabilityRegistry) error {
	caps := []struct {
		name  string
		iface reflect.Type
	}{
		{CapabilityTLSUpgrader, reflect.TypeFor[tlsupgrade.Upgrader]()},
		{CapabilityWebsocketHandshake, reflect.TypeFor[websocketHandshaker]()},
	}
	for _, c := range caps {
		if err := r.Register(c.name, c.iface); err != nil {
			return err
		}
	}
	return nil
}

// Options selects and extends the built-in rules.
type Options struct {
	// Disabled lists built-in rule IDs that are left out.
	Disabled []string
	// Custom declares additional rules, registered after the built-in ones.
	Custom []config.CustomRule
	// OnCELError receives evaluation errors of custom rule expressions.
	OnCELError func(expr string, err error)
}

// OptionsFromConfig returns the options declared by a rules section.
func OptionsFromConfig(rc config.RulesConfig) Options {
	return Options{Disabled: rc.Disabled, Custom: rc.Custom}
}

// Rules returns the enabled built-in rules followed by the custom ones.
// Built-in rules carry a reference descriptor computed by d so that a
// library whose shape drifted disables the affected rule at registration.
func Rules(d Describer, opts Options) ([]*engine.Rule, error) {
	var rules []*engine.Rule
	for _, rule := range Builtin(d) {
		if !slices.Contains(opts.Disabled, rule.ID) {
			rules = append(rules, rule)
		}
	}

	for _, cr := range opts.Custom {
		var celOpts []shape.CELOption
		if opts.OnCELError != nil {
			celOpts = append(celOpts, shape.WithCELErrorHandler(opts.OnCELError))
		}
		rule, err := CustomRule(cr, celOpts...)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Builtin returns every built-in rule.
func Builtin(d Describer) []*engine.Rule {
	proxyAndTrust := func(proxyField, tlsField string) []override.Assignment {
		return []override.Assignment{
			override.Assign(proxyField, override.KeyProxySelector),
			override.Assign(tlsField, override.KeyTrustContext),
		}
	}
	reference := func(t reflect.Type) *shape.Descriptor {
		ref := d.Describe(t)
		return &ref
	}

	fastClientBindings := make([]engine.Binding, 0, 4)
	for _, m := range []string{"Do", "DoTimeout", "DoDeadline", "DoRedirects"} {
		fastClientBindings = append(fastClientBindings, engine.Bind(shape.MethodNamed(m),
			override.FieldsBeforeCall(proxyAndTrust("Dial", "TLSConfig")...)))
	}

	return []*engine.Rule{
		{
			ID:        NetHTTPTransport,
			Family:    "net/http",
			Predicate: shape.Named("net/http.Transport"),
			Bindings: []engine.Binding{
				engine.Bind(shape.MethodNamed("RoundTrip"),
					override.ResetCached("CloseIdleConnections", proxyAndTrust("Proxy", "TLSClientConfig")...)),
			},
			Reference: reference(reflect.TypeFor[http.Transport]()),
		},
		{
			ID:        HTTPProxyConfig,
			Family:    "net/http",
			Predicate: shape.Named("golang.org/x/net/http/httpproxy.Config"),
			Bindings: []engine.Binding{
				engine.Bind(shape.MethodNamed("ProxyFunc"), override.ReturnValue(override.KeyProxySelector)),
			},
			Reference: reference(reflect.TypeFor[httpproxy.Config]()),
		},
		{
			ID:        FastHTTPClient,
			Family:    "fasthttp",
			Predicate: shape.Named("github.com/valyala/fasthttp.Client"),
			Bindings:  fastClientBindings,
			Reference: reference(reflect.TypeFor[fasthttp.Client]()),
		},
		{
			ID:        FastHTTPHostClient,
			Family:    "fasthttp",
			Predicate: shape.Named("github.com/valyala/fasthttp.HostClient"),
			Bindings: []engine.Binding{
				engine.Bind(shape.MethodNamed("Do"),
					override.ResetCached("CloseIdleConnections", proxyAndTrust("Dial", "TLSConfig")...)),
			},
			Reference: reference(reflect.TypeFor[fasthttp.HostClient]()),
		},
		{
			ID:        FastHTTPPipelineClient,
			Family:    "fasthttp",
			Predicate: shape.Named("github.com/valyala/fasthttp.PipelineClient"),
			Bindings: []engine.Binding{
				engine.Bind(shape.MethodNamed("Do"),
					override.FieldsBeforeCall(proxyAndTrust("Dial", "TLSConfig")...)),
			},
			Reference: reference(reflect.TypeFor[fasthttp.PipelineClient]()),
		},
		{
			ID:     WebsocketDialer,
			Family: "websocket",
			Predicate: shape.And(
				shape.HasSupertype(CapabilityWebsocketHandshake),
				shape.NameContains("Dialer"),
				shape.DeclaresField("TLSClientConfig"),
				shape.NotAbstract(),
			),
			Bindings: []engine.Binding{
				engine.Bind(shape.MethodNamed("DialContext"),
					override.FieldsBeforeCall(proxyAndTrust("Proxy", "TLSClientConfig")...)),
				engine.Bind(shape.MethodNamed("Dial"),
					override.FieldsBeforeCall(proxyAndTrust("Proxy", "TLSClientConfig")...)),
			},
			Reference: reference(reflect.TypeFor[websocket.Dialer]()),
		},
		{
			ID:     TLSClientStrategy,
			Family: "tls",
			Predicate: shape.And(
				shape.HasSupertype(CapabilityTLSUpgrader),
				shape.NameContains("Client"),
				shape.DeclaresField("TLSConfig"),
				shape.NotAbstract(),
			),
			Bindings: []engine.Binding{
				engine.Bind(shape.MethodNamed("Upgrade"),
					override.FieldsBeforeCall(override.Assign("TLSConfig", override.KeyTrustContext))),
			},
			Reference: reference(reflect.TypeFor[tlsupgrade.ClientStrategy]()),
		},
	}
}

// CustomRule converts a configuration-defined rule. Its predicate is the
// compiled CEL match expression.
func CustomRule(cr config.CustomRule, opts ...shape.CELOption) (*engine.Rule, error) {
	pred, err := shape.CEL(cr.Match, opts...)
	if err != nil {
		return nil, fmt.Errorf("custom rule %q: %w", cr.ID, err)
	}

	family := cr.Family
	if family == "" {
		family = DefaultFamily
	}

	rule := &engine.Rule{ID: cr.ID, Family: family, Predicate: pred}
	for _, b := range cr.Bindings {
		strategy, err := b.ToStrategy()
		if err != nil {
			return nil, fmt.Errorf("custom rule %q: %w", cr.ID, err)
		}
		rule.Bindings = append(rule.Bindings, engine.Bind(b.Selector(), strategy))
	}
	return rule, nil
}

// IDs returns the built-in rule IDs in registration order.
func IDs() []string {
	return []string{
		NetHTTPTransport,
		HTTPProxyConfig,
		FastHTTPClient,
		FastHTTPHostClient,
		FastHTTPPipelineClient,
		WebsocketDialer,
		TLSClientStrategy,
	}
}
