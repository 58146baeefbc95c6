package config

import "time"

// Supported apiVersion and kind values.
const (
	APIVersionPrefix   = "avaegress.io/"
	DefaultAPIVersion  = APIVersionPrefix + "v1"
	KindEgressOverride = "EgressOverride"
)

// Default values applied by ApplyDefaults.
const (
	DefaultDialTimeout   = 10 * time.Second
	DefaultCBThreshold   = 5
	DefaultCBTimeout     = 30 * time.Second
	DefaultMinTLSVersion = "TLS12"
	DefaultMetricsAddr   = ":9464"
	DefaultMetricsPath   = "/metrics"
	DefaultNamespace     = "avaegress"
	DefaultServiceName   = "avaegress"
	DefaultSamplingRate  = 1.0
)

// EgressConfig is the root configuration document.
type EgressConfig struct {
	APIVersion string     `yaml:"apiVersion" json:"apiVersion"`
	Kind       string     `yaml:"kind" json:"kind"`
	Metadata   Metadata   `yaml:"metadata" json:"metadata"`
	Spec       EgressSpec `yaml:"spec" json:"spec"`
}

// Metadata identifies a configuration document.
type Metadata struct {
	Name   string            `yaml:"name" json:"name"`
	Labels map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// EgressSpec holds the override payload settings and rule selection.
type EgressSpec struct {
	Proxy         ProxyConfig         `yaml:"proxy" json:"proxy"`
	Trust         TrustConfig         `yaml:"trust" json:"trust"`
	Rules         RulesConfig         `yaml:"rules,omitempty" json:"rules,omitempty"`
	Observability ObservabilityConfig `yaml:"observability,omitempty" json:"observability,omitempty"`
}

// ProxyConfig configures the active proxy selector.
type ProxyConfig struct {
	// URL of the operator proxy: http, https, socks5 or socks5h.
	URL string `yaml:"url" json:"url"`
	// NoProxy lists destinations reached directly: hosts, domain suffixes
	// (".example.com"), IPs, CIDRs, host:port pairs or "*".
	NoProxy     []string `yaml:"noProxy,omitempty" json:"noProxy,omitempty"`
	DialTimeout Duration `yaml:"dialTimeout,omitempty" json:"dialTimeout,omitempty"`
	// CircuitBreaker fails proxied dials fast while the proxy is down.
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker,omitempty" json:"circuitBreaker,omitempty"`
}

// CircuitBreakerConfig configures the proxy dial circuit breaker.
type CircuitBreakerConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Threshold is the number of consecutive failed dials that opens the
	// circuit.
	Threshold int `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	// Timeout is how long the circuit stays open before a trial dial.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// TrustConfig configures the trusting TLS context.
type TrustConfig struct {
	CAFile string `yaml:"caFile,omitempty" json:"caFile,omitempty"`
	CAPEM  string `yaml:"caPEM,omitempty" json:"caPEM,omitempty"`
	// IncludeSystemRoots keeps the system trust store alongside the
	// operator CA. Defaults to true.
	IncludeSystemRoots *bool  `yaml:"includeSystemRoots,omitempty" json:"includeSystemRoots,omitempty"`
	MinVersion         string `yaml:"minVersion,omitempty" json:"minVersion,omitempty"`
}

// SystemRoots reports whether the system trust store is included.
func (t TrustConfig) SystemRoots() bool {
	return t.IncludeSystemRoots == nil || *t.IncludeSystemRoots
}

// RulesConfig selects catalog rules and declares custom rules.
type RulesConfig struct {
	// Disabled lists catalog rule IDs that are not registered.
	Disabled []string `yaml:"disabled,omitempty" json:"disabled,omitempty"`
	// Custom declares additional rules matched by CEL expressions.
	Custom []CustomRule `yaml:"custom,omitempty" json:"custom,omitempty"`
}

// CustomRule declares a rule in configuration.
type CustomRule struct {
	ID     string `yaml:"id" json:"id"`
	Family string `yaml:"family,omitempty" json:"family,omitempty"`
	// Match is a CEL expression over the "descriptor" variable.
	Match    string          `yaml:"match" json:"match"`
	Bindings []BindingConfig `yaml:"bindings" json:"bindings"`
}

// BindingConfig declares one method selector and the strategy bound to it.
type BindingConfig struct {
	Method string `yaml:"method" json:"method"`
	// Params narrows the selector to an exact parameter list when set.
	Params  []string `yaml:"params,omitempty" json:"params,omitempty"`
	Returns string   `yaml:"returns,omitempty" json:"returns,omitempty"`
	// Strategy is the strategy kind name, e.g. "ReplaceFieldBeforeCall".
	Strategy string `yaml:"strategy" json:"strategy"`
	// Key is the payload returned by ReplaceReturnValue.
	Key string `yaml:"key,omitempty" json:"key,omitempty"`
	// Assign maps field names to payload keys.
	Assign map[string]string `yaml:"assign,omitempty" json:"assign,omitempty"`
	Reset  string            `yaml:"reset,omitempty" json:"reset,omitempty"`
	Wrap   bool              `yaml:"wrap,omitempty" json:"wrap,omitempty"`
}

// ObservabilityConfig configures logging, metrics and tracing.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty"`
	Metrics MetricsConfig `yaml:"metrics,omitempty" json:"metrics,omitempty"`
	Tracing TracingConfig `yaml:"tracing,omitempty" json:"tracing,omitempty"`
}

// TracingConfig configures OpenTelemetry tracing of engine evaluations.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	SamplingRate float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`
	OTLPEndpoint string  `yaml:"otlpEndpoint,omitempty" json:"otlpEndpoint,omitempty"`
	ServiceName  string  `yaml:"serviceName,omitempty" json:"serviceName,omitempty"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" json:"level,omitempty"`
	Format string `yaml:"format,omitempty" json:"format,omitempty"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	Address   string `yaml:"address,omitempty" json:"address,omitempty"`
	Path      string `yaml:"path,omitempty" json:"path,omitempty"`
	Namespace string `yaml:"namespace,omitempty" json:"namespace,omitempty"`
}

// DefaultConfig returns a configuration with defaults and no proxy.
func DefaultConfig() *EgressConfig {
	cfg := &EgressConfig{
		APIVersion: DefaultAPIVersion,
		Kind:       KindEgressOverride,
		Metadata:   Metadata{Name: "default"},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset optional fields.
func (c *EgressConfig) ApplyDefaults() {
	if c.Spec.Proxy.DialTimeout == 0 {
		c.Spec.Proxy.DialTimeout = Duration(DefaultDialTimeout)
	}
	if cb := &c.Spec.Proxy.CircuitBreaker; cb.Enabled {
		if cb.Threshold == 0 {
			cb.Threshold = DefaultCBThreshold
		}
		if cb.Timeout == 0 {
			cb.Timeout = Duration(DefaultCBTimeout)
		}
	}
	if c.Spec.Trust.MinVersion == "" {
		c.Spec.Trust.MinVersion = DefaultMinTLSVersion
	}

	logging := &c.Spec.Observability.Logging
	if logging.Level == "" {
		logging.Level = "info"
	}
	if logging.Format == "" {
		logging.Format = "json"
	}
	if logging.Output == "" {
		logging.Output = "stdout"
	}

	metrics := &c.Spec.Observability.Metrics
	if metrics.Address == "" {
		metrics.Address = DefaultMetricsAddr
	}
	if metrics.Path == "" {
		metrics.Path = DefaultMetricsPath
	}
	if metrics.Namespace == "" {
		metrics.Namespace = DefaultNamespace
	}

	tracing := &c.Spec.Observability.Tracing
	if tracing.ServiceName == "" {
		tracing.ServiceName = DefaultServiceName
	}
	if tracing.Enabled && tracing.SamplingRate == 0 {
		tracing.SamplingRate = DefaultSamplingRate
	}
}
