package browser

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/hazyhaar/profilex/fault"
	"github.com/hazyhaar/profilex/selector"
)

// Section is a named group of fields extracted together.
type Section struct {
	Name   string
	Fields []selector.FieldLocator
}

// SectionResult holds one Result per field plus the section outcome.
type SectionResult struct {
	Status selector.Status
	Fields map[string]selector.Result[string]
}

// Value returns the text of a found field or "".
func (r SectionResult) Value(field string) string {
	return r.Fields[field].Or("")
}

// Err returns the first field error, if any.
func (r SectionResult) Err() error {
	for _, f := range r.Fields {
		if f.Status == selector.StatusError {
			return f.Err
		}
	}
	return nil
}

// ExtractSection resolves every field of sec on the current page. The
// section is NotFound when all required fields are NotFound (all fields
// when none is marked required) and Error when none was found and one
// failed.
func (s *Session) ExtractSection(ctx context.Context, sec Section) SectionResult {
	out := SectionResult{Fields: make(map[string]selector.Result[string], len(sec.Fields))}
	if err := s.transition(Extracting, PageLoaded, Idle); err != nil {
		out.Status = selector.StatusError
		for _, f := range sec.Fields {
			out.Fields[f.Field] = selector.Failed[string](err)
		}
		return out
	}
	defer s.setState(Idle)

	root := s.page.Root()
	for _, loc := range sec.Fields {
		r := selector.ResolveText(ctx, root, loc)
		if r.OK() {
			s.noteDrift(loc.Field, r.Index)
		}
		out.Fields[loc.Field] = r
	}
	out.Status = sectionStatus(sec.Fields, out.Fields)
	s.log.Debug("browser: section extracted", "section", sec.Name, "status", out.Status)
	return out
}

func sectionStatus(locs []selector.FieldLocator, res map[string]selector.Result[string]) selector.Status {
	required := make([]selector.FieldLocator, 0, len(locs))
	for _, l := range locs {
		if l.Required {
			required = append(required, l)
		}
	}
	if len(required) == 0 {
		required = locs
	}
	errored := false
	for _, l := range required {
		switch res[l.Field].Status {
		case selector.StatusFound:
			return selector.StatusFound
		case selector.StatusError:
			errored = true
		}
	}
	if errored {
		return selector.StatusError
	}
	return selector.StatusNotFound
}

// ListSpec describes a list hidden behind an expand interaction.
type ListSpec struct {
	Name string
	// Opener locates the "show all" control. Optional.
	Opener selector.FieldLocator
	// Items locates the item containers.
	Items selector.FieldLocator
	// Fields are resolved inside each item.
	Fields []selector.FieldLocator
	// Key names the fields identifying an item. Default: all fields.
	Key []string
	// Expand reveals more items between passes. Default: Page.Scroll.
	Expand func(ctx context.Context, p Page) error
	// ExpandWait bounds the wait after opening and after each expansion. Default: 1s.
	ExpandWait time.Duration
	// MaxPasses bounds the extraction passes. Default: 20.
	MaxPasses int
}

// ListResult is the outcome of ExtractPaginatedList.
type ListResult struct {
	Status selector.Status
	Items  []map[string]string
	Passes int
	Opened bool
	Err    error
}

// ExtractPaginatedList opens the list, then extracts visible items pass
// after pass, expanding between passes. It stops once two consecutive
// passes add no new item, or after MaxPasses. Items gathered before an
// error are kept.
func (s *Session) ExtractPaginatedList(ctx context.Context, spec ListSpec) ListResult {
	if spec.ExpandWait <= 0 {
		spec.ExpandWait = time.Second
	}
	if spec.MaxPasses <= 0 {
		spec.MaxPasses = 20
	}
	if spec.Expand == nil {
		spec.Expand = func(ctx context.Context, p Page) error { return p.Scroll(ctx) }
	}

	var out ListResult
	if err := s.transition(Extracting, PageLoaded, Idle); err != nil {
		out.Status, out.Err = selector.StatusError, err
		return out
	}
	defer s.setState(Idle)

	root := s.page.Root()
	if len(spec.Opener.Strategies) > 0 {
		if r := selector.ResolveNodes(ctx, root, spec.Opener); r.OK() {
			if err := s.page.Activate(ctx, r.Value[0]); err != nil {
				s.warn("list opener failed", "list", spec.Name, "error", err)
			} else {
				out.Opened = true
				s.noteDrift(spec.Opener.Field, r.Index)
				if err := sleep(ctx, spec.ExpandWait); err != nil {
					return s.finishList(out, fault.Wrap(err, fault.ErrTimeout, "browser: open "+spec.Name))
				}
			}
		}
	}

	seen := map[string]bool{}
	stable := 0
	for out.Passes < spec.MaxPasses && stable < 2 {
		out.Passes++
		added, err := s.extractPass(ctx, spec, seen, &out)
		if err != nil {
			return s.finishList(out, err)
		}
		if added == 0 {
			stable++
		} else {
			stable = 0
		}
		if stable >= 2 || out.Passes >= spec.MaxPasses {
			break
		}
		if err := spec.Expand(ctx, s.page); err != nil {
			s.warn("list expand failed", "list", spec.Name, "error", err)
			stable++
		}
		if err := sleep(ctx, spec.ExpandWait); err != nil {
			return s.finishList(out, fault.Wrap(err, fault.ErrTimeout, "browser: expand "+spec.Name))
		}
	}
	s.log.Debug("browser: list extracted", "list", spec.Name, "items", len(out.Items), "passes", out.Passes)
	return s.finishList(out, nil)
}

func (s *Session) extractPass(ctx context.Context, spec ListSpec, seen map[string]bool, out *ListResult) (int, error) {
	nodes := selector.ResolveNodes(ctx, s.page.Root(), spec.Items)
	switch nodes.Status {
	case selector.StatusError:
		return 0, nodes.Err
	case selector.StatusNotFound:
		return 0, nil
	}
	s.noteDrift(spec.Items.Field, nodes.Index)

	added := 0
	for _, node := range nodes.Value {
		item := make(map[string]string, len(spec.Fields))
		for _, loc := range spec.Fields {
			r := selector.ResolveText(ctx, node, loc)
			if r.Status == selector.StatusError {
				return added, r.Err
			}
			if r.OK() {
				item[loc.Field] = r.Value
				s.noteDrift(loc.Field, r.Index)
			}
		}
		if len(item) == 0 {
			continue
		}
		k := itemKey(item, spec.Key)
		if seen[k] {
			continue
		}
		seen[k] = true
		out.Items = append(out.Items, item)
		added++
	}
	return added, nil
}

func (s *Session) finishList(out ListResult, err error) ListResult {
	out.Err = err
	switch {
	case len(out.Items) > 0:
		out.Status = selector.StatusFound
	case err != nil:
		out.Status = selector.StatusError
	default:
		out.Status = selector.StatusNotFound
	}
	return out
}

func itemKey(item map[string]string, key []string) string {
	if len(key) == 0 {
		key = make([]string, 0, len(item))
		for k := range item {
			key = append(key, k)
		}
		slices.Sort(key)
	}
	var b strings.Builder
	for _, k := range key {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(item[k])
		b.WriteByte(0)
	}
	return b.String()
}

// Probe resolves one field on the current page without changing state.
func (s *Session) Probe(ctx context.Context, loc selector.FieldLocator) selector.Result[string] {
	r := selector.ResolveText(ctx, s.page.Root(), loc)
	if r.OK() {
		s.noteDrift(loc.Field, r.Index)
	}
	return r
}

// Has reports whether any strategy of loc locates an element.
func (s *Session) Has(ctx context.Context, loc selector.FieldLocator) selector.Result[bool] {
	r := selector.ResolveNodes(ctx, s.page.Root(), loc)
	switch r.Status {
	case selector.StatusFound:
		return selector.Found(true, r.Index)
	case selector.StatusError:
		return selector.Failed[bool](r.Err)
	}
	return selector.NotFound[bool]()
}

func sortDrift(d []Drift) {
	slices.SortFunc(d, func(a, b Drift) int { return strings.Compare(a.Field, b.Field) })
}
