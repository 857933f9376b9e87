package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jmespath/go-jmespath"
)

// DefaultExpression is the identity projection. It passes a response that is
// already an array of records through unchanged.
const DefaultExpression = "@"

// ErrNotCompiled is returned by [Expression.Err] for the zero Expression.
var ErrNotCompiled = errors.New("expression not compiled")

// Expression is a compiled JMESPath expression, or the reason it failed to
// compile. The zero value reports [ErrNotCompiled].
type Expression struct {
	source   string
	compiled *jmespath.JMESPath
	err      error
}

// Compile compiles expr. An empty or blank expr compiles [DefaultExpression].
// Compile never fails outright; check [Expression.Err] before use.
func Compile(expr string) Expression {
	if strings.TrimSpace(expr) == "" {
		expr = DefaultExpression
	}

	compiled, err := jmespath.Compile(expr)
	if err != nil {
		return Expression{
			source: expr,
			err:    fmt.Errorf("invalid extractor %q: %w", expr, err),
		}
	}

	return Expression{source: expr, compiled: compiled}
}

// Source returns the expression text that was compiled.
func (e Expression) Source() string {
	return e.source
}

// Err returns the deferred compile error, or nil if the expression is usable.
func (e Expression) Err() error {
	if e.err != nil {
		return e.err
	}
	if e.compiled == nil {
		return ErrNotCompiled
	}
	return nil
}

// Evaluate runs the expression against a decoded JSON document and returns the
// resulting sequence of candidate items.
//
// Only array results are iterated. A scalar, object or null result, a search
// error, or a panic inside the search all yield an empty sequence together
// with a descriptive error. The error is informational: callers log it and
// carry on with zero items.
func (e Expression) Evaluate(document any) (items []any, err error) {
	if cerr := e.Err(); cerr != nil {
		return []any{}, cerr
	}

	defer func() {
		if r := recover(); r != nil {
			items = []any{}
			err = fmt.Errorf("extractor %q panicked: %v", e.source, r)
		}
	}()

	result, err := e.compiled.Search(document)
	if err != nil {
		return []any{}, fmt.Errorf("extractor %q: %w", e.source, err)
	}

	switch v := result.(type) {
	case []any:
		return v, nil
	case nil:
		return []any{}, nil
	default:
		return []any{}, fmt.Errorf("extractor %q produced %T, want an array", e.source, result)
	}
}
