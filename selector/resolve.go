// Package selector resolves logical fields against a document through an
// ordered list of locator strategies. The first strategy that matches wins
// and its index is reported, so callers can notice when the primary locator
// has drifted.
package selector

import (
	"context"

	"github.com/hazyhaar/profilex/fault"
)

// FieldLocator is the ordered candidate list for one logical field.
// Duplicated strategies are allowed; they only cost an extra attempt.
type FieldLocator struct {
	Field      string
	Required   bool
	Strategies []Strategy
}

// Field builds an optional FieldLocator.
func Field(name string, strategies ...Strategy) FieldLocator {
	return FieldLocator{Field: name, Strategies: strategies}
}

// RequiredField builds a FieldLocator whose absence makes its section absent.
func RequiredField(name string, strategies ...Strategy) FieldLocator {
	return FieldLocator{Field: name, Required: true, Strategies: strategies}
}

// CSSList turns selectors into CSS strategies, keeping their order.
func CSSList(selectors ...string) []Strategy {
	out := make([]Strategy, len(selectors))
	for i, s := range selectors {
		out[i] = CSS(s)
	}
	return out
}

// ResolveText returns the first non-empty text produced by loc's strategies.
func ResolveText(ctx context.Context, s Scope, loc FieldLocator) Result[string] {
	return resolve(ctx, loc, func(st Strategy) (string, bool, error) {
		return st.Text(ctx, s)
	})
}

// ResolveNodes returns the elements located by the first matching strategy.
func ResolveNodes(ctx context.Context, s Scope, loc FieldLocator) Result[[]Scope] {
	return resolve(ctx, loc, func(st Strategy) ([]Scope, bool, error) {
		return st.Nodes(ctx, s)
	})
}

// resolve tries each strategy once, in order, and stops at the first match.
// A strategy error is a non-match recorded in Attempts; only a done context
// turns the outcome into an Error.
func resolve[T any](ctx context.Context, loc FieldLocator, try func(Strategy) (T, bool, error)) Result[T] {
	var attempts []Attempt
	for i, st := range loc.Strategies {
		if err := ctx.Err(); err != nil {
			r := Failed[T](fault.Wrap(err, fault.ErrTimeout, "selector: resolve "+loc.Field))
			r.Attempts = attempts
			return r
		}
		v, ok, err := try(st)
		if err != nil {
			if ctx.Err() != nil {
				r := Failed[T](fault.Wrap(err, fault.ErrTimeout, "selector: resolve "+loc.Field))
				r.Attempts = attempts
				return r
			}
			attempts = append(attempts, Attempt{Index: i, Strategy: st.String(), Err: err})
			continue
		}
		if ok {
			r := Found(v, i)
			r.Attempts = attempts
			return r
		}
	}
	r := NotFound[T]()
	r.Attempts = attempts
	return r
}
