package mapping

import (
	"fmt"
	"maps"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// ResolveContext is the input of a NameResolver.
type ResolveContext struct {
	// Entity is the Go type name of the entity.
	Entity string
	// Table is the table name derived by the naming strategy.
	Table string
	// Vars are user supplied variables (see WithVars).
	Vars map[string]string
}

// NameResolver resolves a table or schema name.
type NameResolver interface {
	Resolve(ResolveContext) (string, error)
}

// Literal is a NameResolver returning a constant name.
type Literal string

// Resolve implements NameResolver.
func (l Literal) Resolve(ResolveContext) (string, error) { return string(l), nil }

// ExpressionResolver evaluates an HCL template such as
//
//	"${var.tenant}_${table}"
//	"${upper(entity)}"
//
// The variables entity, table and var (an object of the context Vars) are
// in scope, as are the functions lower, upper, snake and plural.
type ExpressionResolver struct {
	src  string
	expr hclsyntax.Expression
}

// Expression parses the given template into an ExpressionResolver.
func Expression(src string) (*ExpressionResolver, error) {
	expr, diags := hclsyntax.ParseTemplate([]byte(src), "name", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("mapping: parse name expression %q: %w", src, diags)
	}
	return &ExpressionResolver{src: src, expr: expr}, nil
}

// MustExpression is like Expression but panics on error.
func MustExpression(src string) *ExpressionResolver {
	r, err := Expression(src)
	if err != nil {
		panic(err)
	}
	return r
}

// String returns the source of the template.
func (r *ExpressionResolver) String() string { return r.src }

// Resolve implements NameResolver.
func (r *ExpressionResolver) Resolve(rc ResolveContext) (string, error) {
	vars := make(map[string]cty.Value, len(rc.Vars))
	for k, v := range rc.Vars {
		vars[k] = cty.StringVal(v)
	}
	ectx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"entity": cty.StringVal(rc.Entity),
			"table":  cty.StringVal(rc.Table),
			"var":    cty.ObjectVal(vars),
		},
		Functions: maps.Clone(resolverFuncs),
	}
	v, diags := r.expr.Value(ectx)
	if diags.HasErrors() {
		return "", fmt.Errorf("mapping: evaluate name expression %q: %w", r.src, diags)
	}
	v, err := convert.Convert(v, cty.String)
	if err != nil {
		return "", fmt.Errorf("mapping: name expression %q: %w", r.src, err)
	}
	if v.IsNull() || !v.IsKnown() {
		return "", fmt.Errorf("mapping: name expression %q resolved to null", r.src)
	}
	return v.AsString(), nil
}

var resolverFuncs = map[string]function.Function{
	"lower":  stdlib.LowerFunc,
	"upper":  stdlib.UpperFunc,
	"snake":  stringFunc(snake),
	"plural": stringFunc(rules.Pluralize),
}

func stringFunc(fn func(string) string) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{{Name: "s", Type: cty.String}},
		Type:   function.StaticReturnType(cty.String),
		Impl: func(args []cty.Value, _ cty.Type) (cty.Value, error) {
			return cty.StringVal(fn(args[0].AsString())), nil
		},
	})
}
