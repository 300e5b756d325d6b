package selector

import (
	"context"
	"errors"
	"testing"

	"github.com/hazyhaar/profilex/fault"
)

const profileHTML = `<html><body>
<main>
  <h1 class="top-card-layout__title">  Ada   Lovelace </h1>
  <div class="pvs-header__subtitle">Analyst of engines</div>
  <a class="all-posts" href="/in/ada/recent-activity/shares/">Show all posts</a>
  <ul>
    <li class="pvs-entity"><span>Mathematician</span></li>
    <li class="pvs-entity"><span>Writer</span></li>
  </ul>
</main>
</body></html>`

// counting wraps a Strategy and counts calls.
type counting struct {
	Strategy
	calls *int
}

func (c counting) Text(ctx context.Context, s Scope) (string, bool, error) {
	*c.calls++
	return c.Strategy.Text(ctx, s)
}

func mustDoc(t *testing.T, html string) *Document {
	t.Helper()
	doc, err := ParseHTML(html)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestResolveText_NthCandidateStopsThere(t *testing.T) {
	// WHAT: Only the 3rd candidate matches; later candidates are never tried.
	// WHY: The index signals drift and extra attempts cost round-trips on a live page.
	doc := mustDoc(t, profileHTML)
	calls := make([]int, 5)
	sels := []string{"h1.text-heading-xlarge", ".pv-top-card-section__name", "h1.top-card-layout__title", "h1", "main"}
	loc := FieldLocator{Field: "name"}
	for i, s := range sels {
		loc.Strategies = append(loc.Strategies, counting{Strategy: CSS(s), calls: &calls[i]})
	}

	r := ResolveText(context.Background(), doc, loc)
	if r.Status != StatusFound {
		t.Fatalf("status: got %v, want found", r.Status)
	}
	if r.Index != 2 {
		t.Errorf("index: got %d, want 2", r.Index)
	}
	if r.Value != "Ada Lovelace" {
		t.Errorf("value: got %q", r.Value)
	}
	if !r.Drifted() {
		t.Error("index 2 should report drift")
	}
	want := []int{1, 1, 1, 0, 0}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("candidate %d calls: got %d, want %d", i, calls[i], want[i])
		}
	}
}

func TestResolveText_AllMissIsNotFound(t *testing.T) {
	// WHAT: No candidate matches.
	// WHY: Absence is expected and must not surface as an error.
	doc := mustDoc(t, profileHTML)
	r := ResolveText(context.Background(), doc, Field("headline", CSSList("div.text-body-medium", ".nope")...))
	if r.Status != StatusNotFound {
		t.Fatalf("status: got %v, want not_found", r.Status)
	}
	if r.Err != nil {
		t.Errorf("err: got %v, want nil", r.Err)
	}
	if got := r.Or("fallback"); got != "fallback" {
		t.Errorf("Or: got %q", got)
	}
}

func TestResolveText_ScriptUnsupportedFallsThrough(t *testing.T) {
	// WHAT: A scripted strategy on a static document errors, the next candidate matches.
	// WHY: A failing strategy is a non-match, recorded for diagnostics.
	doc := mustDoc(t, profileHTML)
	loc := Field("headline", Script(`() => document.title`), CSS(".pvs-header__subtitle"))
	r := ResolveText(context.Background(), doc, loc)
	if !r.OK() || r.Index != 1 {
		t.Fatalf("got %+v", r)
	}
	if len(r.Attempts) != 1 || !errors.Is(r.Attempts[0].Err, ErrUnsupported) {
		t.Errorf("attempts: got %+v", r.Attempts)
	}
}

func TestResolveText_CancelledContextIsError(t *testing.T) {
	// WHAT: A cancelled context yields Error, not NotFound.
	// WHY: Timeouts must stay distinguishable from confirmed absence.
	doc := mustDoc(t, profileHTML)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := ResolveText(ctx, doc, Field("name", CSS("h1")))
	if r.Status != StatusError {
		t.Fatalf("status: got %v, want error", r.Status)
	}
	if fault.KindOf(r.Err) != fault.KindTimeout {
		t.Errorf("kind: got %v", fault.KindOf(r.Err))
	}
}

func TestResolveNodes_ContainsAndAttr(t *testing.T) {
	// WHAT: Content-pattern and attribute strategies locate the posts link.
	doc := mustDoc(t, profileHTML)
	ctx := context.Background()

	r := ResolveNodes(ctx, doc, Field("posts_link", CSS("a[href*='nothing']"), Contains{Selector: "a", Label: "show ALL posts"}))
	if !r.OK() || r.Index != 1 || len(r.Value) != 1 {
		t.Fatalf("nodes: got %+v", r)
	}

	href := ResolveText(ctx, doc, Field("posts_href", Attr{Selector: "a.all-posts", Name: "href"}))
	if href.Value != "/in/ada/recent-activity/shares/" {
		t.Errorf("href: got %q", href.Value)
	}

	items := ResolveNodes(ctx, doc, Field("items", CSSList(".pvs-list__outer-container > ul > li", "li.pvs-entity")...))
	if items.Index != 1 || len(items.Value) != 2 {
		t.Fatalf("items: got index %d len %d", items.Index, len(items.Value))
	}
	title := ResolveText(ctx, items.Value[1], Field("title", CSS("span")))
	if title.Value != "Writer" {
		t.Errorf("item scope text: got %q", title.Value)
	}
}

func TestResolveText_DuplicatesHarmless(t *testing.T) {
	doc := mustDoc(t, profileHTML)
	r := ResolveText(context.Background(), doc, Field("x", CSS(".nope"), CSS(".nope"), CSS("h1")))
	if r.Index != 2 {
		t.Errorf("index: got %d, want 2", r.Index)
	}
}
