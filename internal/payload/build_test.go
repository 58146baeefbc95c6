package payload

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaegress/internal/config"
	"github.com/vyrodovalexey/avaegress/internal/override"
	"github.com/vyrodovalexey/avaegress/test/helpers"
)

func testSpec(t *testing.T, proxyURL string, caPEM []byte) config.EgressSpec {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Spec.Proxy.URL = proxyURL
	cfg.Spec.Proxy.DialTimeout = config.Duration(5 * time.Second)
	cfg.Spec.Trust.CAPEM = string(caPEM)
	return cfg.Spec
}

func TestBuild(t *testing.T) {
	t.Parallel()

	certs := helpers.MustGenerateTestCertificates(t)
	srv := certs.NewTLSServer(t, helloHandler())
	px := helpers.NewConnectProxy(t)

	p, err := Build(testSpec(t, px.URL().String(), certs.CACertPEM))
	require.NoError(t, err)
	require.NotNil(t, p.Selector)
	require.NotNil(t, p.Trust)

	transport := &http.Transport{Proxy: p.Selector.ProxyForRequest, TLSClientConfig: p.Trust.Config()}
	defer transport.CloseIdleConnections()
	assert.Equal(t, "hello", get(t, &http.Client{Transport: transport}, srv.URL))
	assert.True(t, px.Served(helpers.HostPort(t, srv.URL)))
}

func TestBuild_CAFile(t *testing.T) {
	t.Parallel()

	certs := helpers.MustGenerateTestCertificates(t)
	spec := testSpec(t, "http://127.0.0.1:3128", nil)
	spec.Trust.CAFile = certs.WriteCA(t, t.TempDir())

	p, err := Build(spec)
	require.NoError(t, err)
	assert.Len(t, p.Trust.Anchors(), 1)

	spec.Trust.CAFile = "/nonexistent/ca.crt"
	_, err = Build(spec)
	assert.Error(t, err)
}

func TestBuild_Errors(t *testing.T) {
	t.Parallel()

	no := false
	spec := testSpec(t, "http://127.0.0.1:3128", nil)
	spec.Trust.IncludeSystemRoots = &no
	_, err := Build(spec)
	assert.ErrorIs(t, err, ErrNoTrustAnchors)

	spec = testSpec(t, "gopher://127.0.0.1:70", nil)
	_, err = Build(spec)
	assert.ErrorIs(t, err, ErrInvalidProxy)
}

func TestApply(t *testing.T) {
	t.Parallel()

	certs := helpers.MustGenerateTestCertificates(t)
	store := NewStore()

	cfg := config.DefaultConfig()
	cfg.Spec = testSpec(t, "socks5://127.0.0.1:1080", certs.CACertPEM)
	require.NoError(t, Apply(store, cfg))
	assert.Equal(t, uint64(1), store.Generation())

	sel, err := store.Lookup(override.KeyProxySelector)
	require.NoError(t, err)
	assert.IsType(t, &Selector{}, sel)

	trust, err := store.Lookup(override.KeyTrustContext)
	require.NoError(t, err)
	assert.IsType(t, &TrustContext{}, trust)

	cfg.Spec.Proxy.URL = "ftp://bad"
	assert.Error(t, Apply(store, cfg))
	assert.Equal(t, uint64(1), store.Generation(), "failed builds leave the store unchanged")
}

func TestBuild_CircuitBreaker(t *testing.T) {
	t.Parallel()

	certs := helpers.MustGenerateTestCertificates(t)
	spec := testSpec(t, "http://127.0.0.1:3128", certs.CACertPEM)

	p, err := Build(spec)
	require.NoError(t, err)
	assert.Empty(t, p.Selector.BreakerState())

	spec.Proxy.CircuitBreaker = config.CircuitBreakerConfig{
		Enabled:   true,
		Threshold: 3,
		Timeout:   config.Duration(time.Second),
	}
	var hooked bool
	p, err = Build(spec, WithBreakerStateHook(func(string, string, string) { hooked = true }))
	require.NoError(t, err)
	assert.Equal(t, "closed", p.Selector.BreakerState())
	assert.False(t, hooked)
}
