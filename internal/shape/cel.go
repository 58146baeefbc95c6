package shape

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/google/cel-go/cel"
)

var (
	celEnvOnce sync.Once
	celEnv     *cel.Env
	celEnvErr  error
)

// descriptorEnv returns the shared CEL environment exposing a descriptor as
// the "descriptor" variable.
func descriptorEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = cel.NewEnv(
			cel.Variable("descriptor", cel.MapType(cel.StringType, cel.DynType)),
		)
	})
	return celEnv, celEnvErr
}

// celPredicate evaluates a compiled CEL expression against a descriptor.
// Evaluation errors and non-boolean results do not match.
type celPredicate struct {
	expr    string
	program cel.Program
	onError func(expr string, err error)
}

// CELOption configures a CEL predicate.
type CELOption func(*celPredicate)

// WithCELErrorHandler sets a callback invoked on evaluation errors.
func WithCELErrorHandler(fn func(expr string, err error)) CELOption {
	return func(p *celPredicate) {
		p.onError = fn
	}
}

// CEL compiles expr into a predicate. The expression sees a "descriptor" map
// with the keys name, simpleName, supertypes, fields, methods and abstract.
//
//	descriptor.simpleName.contains('Client') && 'TLSConfig' in descriptor.fields
func CEL(expr string, opts ...CELOption) (Predicate, error) {
	env, err := descriptorEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile expression %q: %w", expr, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for %q: %w", expr, err)
	}

	p := &celPredicate{expr: expr, program: program}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Matches evaluates the expression.
func (p *celPredicate) Matches(d Descriptor) (matched bool) {
	defer func() {
		if r := recover(); r != nil {
			p.fail(fmt.Errorf("panic during evaluation: %v", r))
			matched = false
		}
	}()

	result, _, err := p.program.Eval(map[string]any{
		"descriptor": descriptorActivation(d),
	})
	if err != nil {
		p.fail(err)
		return false
	}

	b, ok := result.Value().(bool)
	return ok && b
}

func (p *celPredicate) fail(err error) {
	if p.onError != nil {
		p.onError(p.expr, err)
	}
}

// String returns the canonical form of the predicate.
func (p *celPredicate) String() string {
	return "cel(" + strconv.Quote(p.expr) + ")"
}

// descriptorActivation flattens a descriptor into CEL-friendly values.
func descriptorActivation(d Descriptor) map[string]any {
	methods := make([]string, 0, len(d.Methods))
	for _, m := range d.Methods {
		methods = append(methods, m.Name)
	}

	return map[string]any{
		"name":       d.Name,
		"simpleName": d.SimpleName(),
		"supertypes": nonNil(d.Supertypes),
		"fields":     nonNil(d.Fields),
		"methods":    methods,
		"abstract":   d.Abstract,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
