package selector

import (
	"context"
	"fmt"
	"strings"
)

// Strategy is one way of locating a logical field. Every implementation
// answers the same question: did it match, and with what.
type Strategy interface {
	// Text attempts to extract a non-empty text value.
	Text(ctx context.Context, s Scope) (string, bool, error)
	// Nodes attempts to locate elements. Strategies that cannot yield
	// elements report no match.
	Nodes(ctx context.Context, s Scope) ([]Scope, bool, error)
	fmt.Stringer
}

// CSS is a structural locator.
type CSS string

func (c CSS) String() string { return "css:" + string(c) }

func (c CSS) Nodes(ctx context.Context, s Scope) ([]Scope, bool, error) {
	nodes, err := s.Find(ctx, string(c))
	if err != nil {
		return nil, false, err
	}
	return nodes, len(nodes) > 0, nil
}

// Text returns the first matching element with non-empty text.
func (c CSS) Text(ctx context.Context, s Scope) (string, bool, error) {
	nodes, err := s.Find(ctx, string(c))
	if err != nil {
		return "", false, err
	}
	return firstText(ctx, nodes)
}

// Contains matches elements selected by Selector whose text contains
// Label, compared case-insensitively. It models "has-text" lookups.
type Contains struct {
	Selector string
	Label    string
}

func (c Contains) String() string { return fmt.Sprintf("contains:%s[%q]", c.Selector, c.Label) }

func (c Contains) Nodes(ctx context.Context, s Scope) ([]Scope, bool, error) {
	nodes, err := s.Find(ctx, c.Selector)
	if err != nil {
		return nil, false, err
	}
	label := strings.ToLower(c.Label)
	var out []Scope
	for _, n := range nodes {
		txt, err := n.Text(ctx)
		if err != nil {
			return nil, false, err
		}
		if strings.Contains(strings.ToLower(txt), label) {
			out = append(out, n)
		}
	}
	return out, len(out) > 0, nil
}

func (c Contains) Text(ctx context.Context, s Scope) (string, bool, error) {
	nodes, ok, err := c.Nodes(ctx, s)
	if !ok || err != nil {
		return "", false, err
	}
	return firstText(ctx, nodes)
}

// Attr reads an attribute from the first element matching Selector that
// carries it. An empty Selector reads the attribute of the scope itself.
type Attr struct {
	Selector string
	Name     string
}

func (a Attr) String() string { return fmt.Sprintf("attr:%s@%s", a.Selector, a.Name) }

func (a Attr) Nodes(ctx context.Context, s Scope) ([]Scope, bool, error) {
	nodes, err := a.candidates(ctx, s)
	if err != nil {
		return nil, false, err
	}
	var out []Scope
	for _, n := range nodes {
		if v, ok, err := n.Attr(ctx, a.Name); err != nil {
			return nil, false, err
		} else if ok && v != "" {
			out = append(out, n)
		}
	}
	return out, len(out) > 0, nil
}

func (a Attr) Text(ctx context.Context, s Scope) (string, bool, error) {
	nodes, err := a.candidates(ctx, s)
	if err != nil {
		return "", false, err
	}
	for _, n := range nodes {
		v, ok, err := n.Attr(ctx, a.Name)
		if err != nil {
			return "", false, err
		}
		if v = strings.TrimSpace(v); ok && v != "" {
			return v, true, nil
		}
	}
	return "", false, nil
}

func (a Attr) candidates(ctx context.Context, s Scope) ([]Scope, error) {
	if a.Selector == "" {
		return []Scope{s}, nil
	}
	return s.Find(ctx, a.Selector)
}

// Script evaluates a JavaScript function expression, e.g.
// `() => document.title`. An empty or null result is no match.
type Script string

func (j Script) String() string { return "script" }

func (j Script) Text(ctx context.Context, s Scope) (string, bool, error) {
	v, ok, err := s.Eval(ctx, string(j))
	if err != nil || !ok {
		return "", false, err
	}
	v = Normalize(v)
	return v, v != "", nil
}

func (j Script) Nodes(context.Context, Scope) ([]Scope, bool, error) {
	return nil, false, nil
}

func firstText(ctx context.Context, nodes []Scope) (string, bool, error) {
	for _, n := range nodes {
		txt, err := n.Text(ctx)
		if err != nil {
			return "", false, err
		}
		if txt = Normalize(txt); txt != "" {
			return txt, true, nil
		}
	}
	return "", false, nil
}
