package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaegress/internal/observability"
)

func TestNewChecker(t *testing.T) {
	t.Parallel()

	checker := NewChecker("1.0.0", observability.NopLogger())

	assert.NotNil(t, checker)
	assert.Equal(t, "1.0.0", checker.version)
	assert.NotNil(t, checker.checks)
	assert.False(t, checker.startTime.IsZero())

	assert.NotNil(t, NewChecker("1.0.0", nil).logger)
}

func TestChecker_RegisterAndUnregister(t *testing.T) {
	t.Parallel()

	checker := NewChecker("1.0.0", observability.NopLogger())
	checker.RegisterCheck("payload", func() Check { return Check{Status: StatusHealthy} })

	assert.Contains(t, checker.Readiness().Checks, "payload")

	checker.UnregisterCheck("payload")
	assert.NotContains(t, checker.Readiness().Checks, "payload")
}

func TestChecker_Health(t *testing.T) {
	t.Parallel()

	checker := NewChecker("1.0.0", observability.NopLogger())
	response := checker.Health()

	assert.Equal(t, StatusHealthy, response.Status)
	assert.Equal(t, "1.0.0", response.Version)
	assert.NotEmpty(t, response.Uptime)
	assert.False(t, response.Timestamp.IsZero())
}

func TestChecker_Readiness(t *testing.T) {
	t.Parallel()

	check := func(s Status) CheckFunc {
		return func() Check { return Check{Status: s} }
	}

	tests := []struct {
		name   string
		checks map[string]CheckFunc
		want   Status
	}{
		{name: "no checks", want: StatusHealthy},
		{
			name:   "all healthy",
			checks: map[string]CheckFunc{"a": check(StatusHealthy), "b": check(StatusHealthy)},
			want:   StatusHealthy,
		},
		{
			name:   "degraded",
			checks: map[string]CheckFunc{"a": check(StatusHealthy), "b": check(StatusDegraded)},
			want:   StatusDegraded,
		},
		{
			name: "unhealthy wins over degraded",
			checks: map[string]CheckFunc{
				"a": check(StatusUnhealthy),
				"b": check(StatusDegraded),
				"c": check(StatusHealthy),
			},
			want: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			checker := NewChecker("1.0.0", observability.NopLogger())
			for name, fn := range tt.checks {
				checker.RegisterCheck(name, fn)
			}

			response := checker.Readiness()
			assert.Equal(t, tt.want, response.Status)
			assert.Len(t, response.Checks, len(tt.checks))
		})
	}
}

func TestChecker_Handlers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     Status
		handler    func(*Checker) http.HandlerFunc
		wantCode   int
		wantStatus string
	}{
		{
			name:       "health",
			status:     StatusUnhealthy,
			handler:    (*Checker).HealthHandler,
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name:       "ready",
			status:     StatusHealthy,
			handler:    (*Checker).ReadinessHandler,
			wantCode:   http.StatusOK,
			wantStatus: "healthy",
		},
		{
			name:       "ready degraded",
			status:     StatusDegraded,
			handler:    (*Checker).ReadinessHandler,
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
		},
		{
			name:       "not ready",
			status:     StatusUnhealthy,
			handler:    (*Checker).ReadinessHandler,
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unhealthy",
		},
		{
			name:       "live",
			status:     StatusUnhealthy,
			handler:    (*Checker).LivenessHandler,
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			checker := NewChecker("1.0.0", observability.NopLogger())
			checker.RegisterCheck("payload", func() Check { return Check{Status: tt.status} })

			rec := httptest.NewRecorder()
			tt.handler(checker)(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, ContentTypeJSON, rec.Header().Get(HeaderContentType))

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantStatus, body["status"])
		})
	}
}
