package selector

import (
	"context"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is a static Scope over parsed HTML. It serves fixtures and
// snapshot extraction; script evaluation is unsupported.
type Document struct {
	sel *goquery.Selection
}

// NewDocument parses HTML from r.
func NewDocument(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	return &Document{sel: doc.Selection}, nil
}

// ParseHTML parses an HTML string.
func ParseHTML(html string) (*Document, error) {
	return NewDocument(strings.NewReader(html))
}

// Selection exposes the underlying goquery selection.
func (d *Document) Selection() *goquery.Selection { return d.sel }

func (d *Document) Find(_ context.Context, css string) ([]Scope, error) {
	found := d.sel.Find(css)
	out := make([]Scope, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Document{sel: s})
	})
	return out, nil
}

func (d *Document) Text(context.Context) (string, error) {
	return d.sel.Text(), nil
}

func (d *Document) Attr(_ context.Context, name string) (string, bool, error) {
	v, ok := d.sel.Attr(name)
	return v, ok, nil
}

func (d *Document) Eval(context.Context, string) (string, bool, error) {
	return "", false, ErrUnsupported
}

// HTML returns the outer HTML of the scope element.
func (d *Document) HTML() (string, error) {
	return goquery.OuterHtml(d.sel)
}
