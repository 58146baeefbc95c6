package payload

import (
	"fmt"
	"os"

	"github.com/vyrodovalexey/avaegress/internal/config"
	"github.com/vyrodovalexey/avaegress/internal/override"
)

// Payload is the set of values published to a Store.
type Payload struct {
	Selector *Selector
	Trust    *TrustContext
}

// Values returns the payload keyed by override payload key.
func (p *Payload) Values() map[string]any {
	return map[string]any{
		override.KeyProxySelector: p.Selector,
		override.KeyTrustContext:  p.Trust,
	}
}

// Build builds the proxy selector and trust context described by spec.
// The trust context also verifies https proxies. opts are applied to the
// selector after the options spec describes.
func Build(spec config.EgressSpec, opts ...SelectorOption) (*Payload, error) {
	caPEM := []byte(spec.Trust.CAPEM)
	if spec.Trust.CAFile != "" {
		data, err := os.ReadFile(spec.Trust.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %s: %w", spec.Trust.CAFile, err)
		}
		caPEM = data
	}

	trust, err := NewTrustContext(TrustOptions{
		CAPEM:              caPEM,
		IncludeSystemRoots: spec.Trust.SystemRoots(),
		MinVersion:         spec.Trust.MinVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build trust context: %w", err)
	}

	selectorOpts := []SelectorOption{
		WithNoProxy(spec.Proxy.NoProxy...),
		WithDialTimeout(spec.Proxy.DialTimeout.Duration()),
		WithProxyTLSConfig(trust.Config()),
	}
	if cb := spec.Proxy.CircuitBreaker; cb.Enabled {
		selectorOpts = append(selectorOpts, WithCircuitBreaker(cb.Threshold, cb.Timeout.Duration()))
	}
	selector, err := NewSelector(spec.Proxy.URL, append(selectorOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to build proxy selector: %w", err)
	}

	return &Payload{Selector: selector, Trust: trust}, nil
}

// Publish writes p to store as a single generation.
func Publish(store *Store, p *Payload) error {
	return store.SetAll(p.Values())
}

// Apply builds the payload described by cfg and publishes it. The store is
// left unchanged when the payload cannot be built.
func Apply(store *Store, cfg *config.EgressConfig, opts ...SelectorOption) error {
	p, err := Build(cfg.Spec, opts...)
	if err != nil {
		return err
	}
	return Publish(store, p)
}
