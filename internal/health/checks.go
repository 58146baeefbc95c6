package health

import (
	"fmt"
	"slices"
	"strings"

	"github.com/vyrodovalexey/avaegress/internal/engine"
	"github.com/vyrodovalexey/avaegress/internal/override"
)

// PayloadSource reports which override payloads have been published.
type PayloadSource interface {
	Keys() []string
	Generation() uint64
}

// RuleSet reports which rules are being applied.
type RuleSet interface {
	Rules() []*engine.Rule
	Disabled() map[string]error
}

// PayloadCheck is unhealthy until every required payload key has been
// published.
func PayloadCheck(src PayloadSource, required ...string) CheckFunc {
	return func() Check {
		have := src.Keys()
		var missing []string
		for _, key := range required {
			if !slices.Contains(have, key) {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			return Check{
				Status:  StatusUnhealthy,
				Message: "missing payload: " + strings.Join(missing, ", "),
			}
		}
		return Check{
			Status:  StatusHealthy,
			Message: fmt.Sprintf("generation %d", src.Generation()),
		}
	}
}

// RulesCheck is unhealthy when no rule is active and degraded when some
// rules have been disabled.
func RulesCheck(rules RuleSet) CheckFunc {
	return func() Check {
		active := len(rules.Rules())
		disabled := rules.Disabled()

		switch {
		case active == 0:
			return Check{Status: StatusUnhealthy, Message: "no active rules"}
		case len(disabled) > 0:
			ids := make([]string, 0, len(disabled))
			for id := range disabled {
				ids = append(ids, id)
			}
			slices.Sort(ids)
			return Check{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("%d active, disabled: %s", active, strings.Join(ids, ", ")),
			}
		default:
			return Check{Status: StatusHealthy, Message: fmt.Sprintf("%d active", active)}
		}
	}
}

// breakerReporter is implemented by proxy selectors that guard dials with
// a circuit breaker.
type breakerReporter interface {
	BreakerState() string
}

// ProxyCheck is degraded while the proxy circuit breaker is not closed.
// Proxied dials fail fast in that state; bypassed destinations still work.
func ProxyCheck(src override.Source) CheckFunc {
	return func() Check {
		v, err := src.Lookup(override.KeyProxySelector)
		if err != nil {
			return Check{Status: StatusUnhealthy, Message: err.Error()}
		}
		msg := fmt.Sprint(v)
		br, ok := v.(breakerReporter)
		if !ok {
			return Check{Status: StatusHealthy, Message: msg}
		}
		switch state := br.BreakerState(); state {
		case "", "closed":
			return Check{Status: StatusHealthy, Message: msg}
		default:
			return Check{Status: StatusDegraded, Message: msg + ": circuit breaker " + state}
		}
	}
}
