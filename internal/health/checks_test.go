package health

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaegress/internal/engine"
	"github.com/vyrodovalexey/avaegress/internal/override"
	"github.com/vyrodovalexey/avaegress/internal/payload"
)

func TestPayloadCheck(t *testing.T) {
	t.Parallel()

	store := payload.NewStore()
	check := PayloadCheck(store, override.Keys()...)

	got := check()
	assert.Equal(t, StatusUnhealthy, got.Status)
	assert.Equal(t, "missing payload: activeProxySelector, trustingTlsContext", got.Message)

	require.NoError(t, store.Set(override.KeyProxySelector, "proxy"))
	got = check()
	assert.Equal(t, StatusUnhealthy, got.Status)
	assert.Equal(t, "missing payload: trustingTlsContext", got.Message)

	require.NoError(t, store.Set(override.KeyTrustContext, "trust"))
	got = check()
	assert.Equal(t, StatusHealthy, got.Status)
	assert.Equal(t, "generation 2", got.Message)
}

type fakeRules struct {
	active   int
	disabled map[string]error
}

func (f fakeRules) Rules() []*engine.Rule { return make([]*engine.Rule, f.active) }
func (f fakeRules) Disabled() map[string]error { return f.disabled }

func TestRulesCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rules   fakeRules
		status  Status
		message string
	}{
		{
			name:    "no rules",
			rules:   fakeRules{},
			status:  StatusUnhealthy,
			message: "no active rules",
		},
		{
			name:    "all active",
			rules:   fakeRules{active: 7},
			status:  StatusHealthy,
			message: "7 active",
		},
		{
			name: "some disabled",
			rules: fakeRules{active: 5, disabled: map[string]error{
				"websocket-dialer": errors.New("drift"),
				"fasthttp-client":  errors.New("drift"),
			}},
			status:  StatusDegraded,
			message: "5 active, disabled: fasthttp-client, websocket-dialer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := RulesCheck(tt.rules)()
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.message, got.Message)
		})
	}
}

func TestProxyCheck(t *testing.T) {
	t.Parallel()

	store := payload.NewStore()
	check := ProxyCheck(store)
	assert.Equal(t, StatusUnhealthy, check().Status)

	sel, err := payload.NewSelector("http://127.0.0.1:1", payload.WithCircuitBreaker(1, time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.Set(override.KeyProxySelector, sel))

	got := check()
	assert.Equal(t, StatusHealthy, got.Status)
	assert.Equal(t, "http://127.0.0.1:1", got.Message)

	_, err = sel.Dial("tcp", "example.test:443")
	require.Error(t, err)

	got = check()
	assert.Equal(t, StatusDegraded, got.Status)
	assert.Equal(t, "http://127.0.0.1:1: circuit breaker open", got.Message)
}
