package selector

import (
	"context"
	"errors"
	"strings"
)

// ErrUnsupported is returned by a Scope that cannot perform an operation,
// e.g. script evaluation on a static document.
var ErrUnsupported = errors.New("selector: operation not supported by scope")

// Scope is a queryable document region: a whole page or one element.
type Scope interface {
	// Find returns the elements under the scope matching a CSS selector,
	// in document order. No match is an empty slice, not an error.
	Find(ctx context.Context, css string) ([]Scope, error)
	// Text returns the rendered text of the scope.
	Text(ctx context.Context) (string, error)
	// Attr returns an attribute of the scope element.
	Attr(ctx context.Context, name string) (string, bool, error)
	// Eval evaluates a JavaScript function expression in the scope's
	// execution context. Inside element scopes `this` is the element.
	Eval(ctx context.Context, js string) (string, bool, error)
}

// Normalize collapses runs of whitespace and trims the result.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
