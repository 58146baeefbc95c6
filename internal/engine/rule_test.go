package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avaegress/internal/override"
	"github.com/vyrodovalexey/avaegress/internal/shape"
)

func TestRule_Keys(t *testing.T) {
	t.Parallel()

	rule := &Rule{
		ID:        "both",
		Predicate: shape.Any(),
		Bindings: []Binding{
			Bind(shape.MethodNamed("upgrade"), override.FieldsBeforeCall(
				override.Assign("sslContext", override.KeyTrustContext),
				override.Assign("proxy", override.KeyProxySelector),
			)),
			Bind(shape.MethodNamed("connect"), override.ReturnValue(override.KeyTrustContext)),
		},
	}
	assert.Equal(t, []string{override.KeyProxySelector, override.KeyTrustContext}, rule.Keys())
}

func TestRule_Apply(t *testing.T) {
	t.Parallel()

	client := newEndpoint("example.com/starttls.Client", "sslContext", "proxy")
	rule := &Rule{
		ID:        "both",
		Predicate: shape.Any(),
		Bindings: []Binding{
			trustBinding("upgrade"),
			Bind(shape.MethodNamed("connect"),
				override.FieldsAfterCall(override.Assign("proxy", override.KeyProxySelector))),
		},
	}

	applied, err := rule.Apply(client.handle, newStore(t), override.Hooks{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"upgrade(*) ReplaceFieldBeforeCall{sslContext=trustingTlsContext}",
		"connect(*) ReplaceFieldAfterCall{proxy=activeProxySelector}",
	}, applied)

	// The proxy is written after connect returns.
	assert.Equal(t, "mx.test via direct", client.call(t, "connect", "mx.test"))
	assert.Equal(t, "mx.test via operator-proxy", client.call(t, "connect", "mx.test"))
}

func TestRule_Apply_ChecksEveryBindingFirst(t *testing.T) {
	t.Parallel()

	client := newEndpoint("example.com/starttls.Client", "sslContext")
	rule := &Rule{
		ID:        "half",
		Predicate: shape.Any(),
		Bindings: []Binding{
			trustBinding("upgrade"),
			Bind(shape.MethodNamed("connect"),
				override.FieldsBeforeCall(override.Assign("proxy", override.KeyProxySelector))),
		},
	}

	applied, err := rule.Apply(client.handle, newStore(t), override.Hooks{})
	require.Error(t, err)
	assert.ErrorIs(t, err, override.ErrBinding)
	assert.Empty(t, applied)

	_, bound := client.handle.BoundRule(shape.MethodNamed("upgrade"))
	assert.False(t, bound)
	assert.Equal(t, "mx.test with default-trust", client.call(t, "upgrade", "mx.test"))
}

func TestRule_CheckReference(t *testing.T) {
	t.Parallel()

	ref := newEndpoint("example.com/starttls.Client", "sslContext").handle.Descriptor()

	ok := &Rule{ID: "ok", Predicate: shape.Any(), Bindings: []Binding{trustBinding("upgrade")}, Reference: &ref}
	assert.NoError(t, ok.CheckReference())

	missingField := &Rule{ID: "f", Predicate: shape.Any(), Reference: &ref, Bindings: []Binding{
		Bind(shape.MethodNamed("upgrade"), override.FieldsBeforeCall(override.Assign("proxy", override.KeyProxySelector))),
	}}
	assert.ErrorIs(t, missingField.CheckReference(), override.ErrBinding)

	noResult := &Rule{ID: "r", Predicate: shape.Any(), Reference: &ref, Bindings: []Binding{
		Bind(shape.MethodNamed("flush"), override.ReturnValue(override.KeyTrustContext)),
	}}
	assert.ErrorIs(t, noResult.CheckReference(), override.ErrBinding)

	unreferenced := &Rule{ID: "u", Predicate: shape.Any(), Bindings: []Binding{trustBinding("anything")}}
	assert.NoError(t, unreferenced.CheckReference())
}

func TestConflictError_Error(t *testing.T) {
	t.Parallel()

	across := &ConflictError{Shape: "any()", Rule: "b", Selector: "m(*)", OtherRule: "a", OtherSelector: "m(int)"}
	assert.Contains(t, across.Error(), `rule "b" binding m(*) conflicts with rule "a"`)

	within := &ConflictError{Shape: "any()", Rule: "a", Selector: "m(*)", OtherRule: "a", OtherSelector: "m(*)"}
	assert.Contains(t, within.Error(), "overlapping methods")
}
