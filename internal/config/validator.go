package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/vyrodovalexey/avaegress/internal/override"
	"github.com/vyrodovalexey/avaegress/internal/shape"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates egress configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

// ValidateConfig validates an egress configuration.
func ValidateConfig(config *EgressConfig) error {
	v := NewValidator()
	return v.Validate(config)
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *EgressConfig) error {
	v.errors = make(ValidationErrors, 0)

	if config == nil {
		v.addError("", "configuration is nil")
		return v.errors
	}

	v.validateRoot(config)
	v.validateProxy(&config.Spec.Proxy, "spec.proxy")
	v.validateTrust(&config.Spec.Trust, "spec.trust")
	v.validateRules(&config.Spec.Rules, "spec.rules")
	v.validateObservability(&config.Spec.Observability, "spec.observability")

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

// validateRoot validates root-level fields.
func (v *Validator) validateRoot(config *EgressConfig) {
	if config.APIVersion == "" {
		v.addError("apiVersion", "apiVersion is required")
	} else if !strings.HasPrefix(config.APIVersion, APIVersionPrefix) {
		v.addError("apiVersion", fmt.Sprintf("apiVersion must start with '%s'", APIVersionPrefix))
	}

	if config.Kind == "" {
		v.addError("kind", "kind is required")
	} else if config.Kind != KindEgressOverride {
		v.addError("kind", fmt.Sprintf("kind must be '%s'", KindEgressOverride))
	}

	if config.Metadata.Name == "" {
		v.addError("metadata.name", "name is required")
	}
}

var validProxySchemes = map[string]bool{
	"http":    true,
	"https":   true,
	"socks5":  true,
	"socks5h": true,
}

// validateProxy validates the proxy selector settings.
func (v *Validator) validateProxy(proxy *ProxyConfig, path string) {
	if proxy.URL == "" {
		v.addError(path+".url", "proxy url is required")
	} else {
		u, err := url.Parse(proxy.URL)
		switch {
		case err != nil:
			v.addError(path+".url", fmt.Sprintf("invalid proxy url: %v", err))
		case !validProxySchemes[u.Scheme]:
			v.addError(path+".url", fmt.Sprintf("unsupported proxy scheme: %q", u.Scheme))
		case u.Host == "":
			v.addError(path+".url", "proxy url must include a host")
		}
	}

	for i, entry := range proxy.NoProxy {
		if strings.TrimSpace(entry) == "" {
			v.addError(fmt.Sprintf("%s.noProxy[%d]", path, i), "entry must not be empty")
		}
	}

	if proxy.DialTimeout < 0 {
		v.addError(path+".dialTimeout", "must not be negative")
	}
	if cb := proxy.CircuitBreaker; cb.Enabled {
		if cb.Threshold < 0 {
			v.addError(path+".circuitBreaker.threshold", "must not be negative")
		}
		if cb.Timeout < 0 {
			v.addError(path+".circuitBreaker.timeout", "must not be negative")
		}
	}
}

var validTLSVersions = map[string]bool{
	"TLS10": true,
	"TLS11": true,
	"TLS12": true,
	"TLS13": true,
}

// validateTrust validates the trust context settings.
func (v *Validator) validateTrust(trust *TrustConfig, path string) {
	if trust.CAFile != "" && trust.CAPEM != "" {
		v.addError(path, "caFile and caPEM are mutually exclusive")
	}
	if trust.CAFile == "" && trust.CAPEM == "" && !trust.SystemRoots() {
		v.addError(path, "no trust anchors: set caFile or caPEM, or include system roots")
	}
	if trust.MinVersion != "" && !validTLSVersions[trust.MinVersion] {
		v.addError(path+".minVersion", fmt.Sprintf("invalid TLS version: %s", trust.MinVersion))
	}
}

// validateRules validates rule selection and custom rules.
func (v *Validator) validateRules(rules *RulesConfig, path string) {
	for i, id := range rules.Disabled {
		if id == "" {
			v.addError(fmt.Sprintf("%s.disabled[%d]", path, i), "rule id must not be empty")
		}
	}

	ids := make(map[string]bool, len(rules.Custom))
	for i := range rules.Custom {
		rulePath := fmt.Sprintf("%s.custom[%d]", path, i)
		v.validateCustomRule(&rules.Custom[i], rulePath, ids)
	}
}

func (v *Validator) validateCustomRule(rule *CustomRule, path string, ids map[string]bool) {
	switch {
	case rule.ID == "":
		v.addError(path+".id", "id is required")
	case ids[rule.ID]:
		v.addError(path+".id", fmt.Sprintf("duplicate rule id: %s", rule.ID))
	default:
		ids[rule.ID] = true
	}

	if rule.Match == "" {
		v.addError(path+".match", "match expression is required")
	} else if _, err := shape.CEL(rule.Match); err != nil {
		v.addError(path+".match", err.Error())
	}

	if len(rule.Bindings) == 0 {
		v.addError(path+".bindings", "at least one binding is required")
	}
	for i := range rule.Bindings {
		v.validateBinding(&rule.Bindings[i], fmt.Sprintf("%s.bindings[%d]", path, i))
	}
}

func (v *Validator) validateBinding(b *BindingConfig, path string) {
	if b.Method == "" {
		v.addError(path+".method", "method is required")
	}

	strategy, err := b.ToStrategy()
	if err != nil {
		v.addError(path, err.Error())
		return
	}
	if err := strategy.Validate(); err != nil {
		v.addError(path, err.Error())
	}
	for _, key := range strategy.Keys() {
		if !override.IsKnownKey(key) {
			v.addError(path, fmt.Sprintf("unknown payload key: %s", key))
		}
	}
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"json": true, "console": true}
)

// validateObservability validates logging, metrics and tracing settings.
func (v *Validator) validateObservability(obs *ObservabilityConfig, path string) {
	if obs.Logging.Level != "" && !validLogLevels[obs.Logging.Level] {
		v.addError(path+".logging.level", fmt.Sprintf("invalid log level: %s", obs.Logging.Level))
	}
	if obs.Logging.Format != "" && !validLogFormats[obs.Logging.Format] {
		v.addError(path+".logging.format", fmt.Sprintf("invalid log format: %s", obs.Logging.Format))
	}
	if obs.Metrics.Enabled && !strings.HasPrefix(obs.Metrics.Path, "/") {
		v.addError(path+".metrics.path", "path must start with '/'")
	}
	if obs.Tracing.SamplingRate < 0 || obs.Tracing.SamplingRate > 1 {
		v.addError(path+".tracing.samplingRate", "samplingRate must be between 0 and 1")
	}
}

// addError adds a validation error.
func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}
