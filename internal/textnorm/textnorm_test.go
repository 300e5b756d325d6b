package textnorm

import (
	"strings"
	"testing"
)

func TestParseCount(t *testing.T) {
	cases := map[string]int{
		"1,234 reactions": 1234,
		"1.2K":            1200,
		"3M followers":    3000000,
		"12 comments":     12,
		"":                0,
		"no data":         0,
		"2,5k":            2500,
	}
	for in, want := range cases {
		if got := ParseCount(in); got != want {
			t.Errorf("ParseCount(%q): got %d, want %d", in, got, want)
		}
	}
}

func TestPlainText(t *testing.T) {
	// WHAT: Markup and entities are removed, whitespace collapsed.
	n := New()
	got := n.PlainText("<p>Hello <b>world</b> &amp;\n\n friends</p><script>x()</script>")
	if got != "Hello world & friends" {
		t.Errorf("got %q", got)
	}
}

func TestMarkdown(t *testing.T) {
	// WHAT: Post HTML becomes markdown; scripts are dropped by sanitizing.
	n := New()
	got := n.Markdown(`<p>Shipped <strong>v2</strong>! <a href="/posts/1">read</a></p><script>alert(1)</script>`, "https://example.com")
	if !strings.Contains(got, "**v2**") {
		t.Errorf("bold missing: %q", got)
	}
	if strings.Contains(got, "alert") {
		t.Errorf("script leaked: %q", got)
	}
	if n.Markdown("  ", "") != "" {
		t.Error("blank input should give blank output")
	}
}

func TestParseCount_SuffixNeedsWordEnd(t *testing.T) {
	if got := ParseCount("5 months ago"); got != 5 {
		t.Errorf("got %d, want 5", got)
	}
}

func TestFirstLink(t *testing.T) {
	cases := []struct{ body, want string }{
		{`<p>Read <a href="/pulse/engines">this</a> and <a href="https://x.test/b">that</a></p>`, "https://www.linkedin.com/pulse/engines"},
		{`<a href="javascript:void(0)">x</a><a href="https://x.test/">y</a>`, "https://x.test/"},
		{`<p>no links</p>`, ""},
		{``, ""},
	}
	for _, c := range cases {
		if got := FirstLink(c.body, "https://www.linkedin.com/in/ada/"); got != c.want {
			t.Errorf("FirstLink(%q) = %q, want %q", c.body, got, c.want)
		}
	}
}
