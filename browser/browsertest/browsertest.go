// Package browsertest provides a deterministic in-memory browser for tests:
// pages are static HTML keyed by URL, and hooks simulate login redirects,
// "show all" clicks and infinite scroll.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/profilex/browser"
	"github.com/hazyhaar/profilex/selector"
)

// Driver is a fake browser.Driver. Configure it before use; it is safe
// for one session at a time.
type Driver struct {
	// Pages maps URLs to HTML.
	Pages map[string]string
	// Redirects maps a requested URL to the URL actually reached.
	Redirects map[string]string
	// ReadyState answers document.readyState. Default: "complete".
	ReadyState string
	// Scripts answers page-level script evaluations by exact source.
	Scripts map[string]string
	// NavigateErr fails every navigation when set.
	NavigateErr error
	// NavigateDelay stalls every navigation, or until its context ends.
	NavigateDelay time.Duration

	OnSubmit   func(p *Page)
	OnActivate func(p *Page, node selector.Scope)
	OnScroll   func(p *Page)

	mu         sync.Mutex
	closes     int
	pageCloses int
	pages      []*Page
}

// Factory returns a browser.DriverFactory handing out d.
func (d *Driver) Factory() browser.DriverFactory {
	return func(context.Context, browser.Config) (browser.Driver, error) { return d, nil }
}

func (d *Driver) NewPage(context.Context) (browser.Page, error) {
	p := &Page{driver: d}
	p.SetHTML("<html><body></body></html>")
	d.mu.Lock()
	d.pages = append(d.pages, p)
	d.mu.Unlock()
	return p, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	d.closes++
	d.mu.Unlock()
	return nil
}

// Closes returns how many times the driver was closed.
func (d *Driver) Closes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closes
}

// PageCloses returns how many times a page was closed.
func (d *Driver) PageCloses() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pageCloses
}

// LastPage returns the most recently opened page.
func (d *Driver) LastPage() *Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.pages) == 0 {
		return nil
	}
	return d.pages[len(d.pages)-1]
}

// Page is a fake browser.Page.
type Page struct {
	driver *Driver

	mu        sync.Mutex
	url       string
	doc       *selector.Document
	inputs    map[string]string
	clicks    []string
	scrolls   int
	visits    []string
	activated int
}

// SetHTML replaces the current document.
func (p *Page) SetHTML(html string) {
	doc, err := selector.ParseHTML(html)
	if err != nil {
		panic(fmt.Sprintf("browsertest: parse html: %v", err))
	}
	p.mu.Lock()
	p.doc = doc
	p.mu.Unlock()
}

// SetURL changes the location without loading a document.
func (p *Page) SetURL(u string) {
	p.mu.Lock()
	p.url = u
	p.mu.Unlock()
}

// Load moves to u and renders the configured page for it.
func (p *Page) Load(u string) {
	p.SetURL(u)
	if html, ok := p.driver.Pages[u]; ok {
		p.SetHTML(html)
	} else {
		p.SetHTML("<html><body><h1>404</h1></body></html>")
	}
}

// Inputs returns typed values keyed by selector.
func (p *Page) Inputs() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.inputs))
	for k, v := range p.inputs {
		out[k] = v
	}
	return out
}

// Scrolls returns the number of Scroll calls.
func (p *Page) Scrolls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrolls
}

// Visits returns the navigated URLs in order.
func (p *Page) Visits() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visits...)
}

func (p *Page) Navigate(ctx context.Context, u string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.driver.NavigateDelay > 0 {
		t := time.NewTimer(p.driver.NavigateDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if p.driver.NavigateErr != nil {
		return p.driver.NavigateErr
	}
	p.mu.Lock()
	p.visits = append(p.visits, u)
	p.mu.Unlock()
	if to, ok := p.driver.Redirects[u]; ok {
		u = to
	}
	p.Load(u)
	return nil
}

func (p *Page) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *Page) Root() selector.Scope { return &root{page: p} }

func (p *Page) Input(_ context.Context, css, text string) error {
	if !p.exists(css) {
		return fmt.Errorf("browsertest: no element %s", css)
	}
	p.mu.Lock()
	if p.inputs == nil {
		p.inputs = map[string]string{}
	}
	p.inputs[css] = text
	p.mu.Unlock()
	return nil
}

func (p *Page) Click(_ context.Context, css string) error {
	if !p.exists(css) {
		return fmt.Errorf("browsertest: no element %s", css)
	}
	p.mu.Lock()
	p.clicks = append(p.clicks, css)
	p.mu.Unlock()
	if p.driver.OnSubmit != nil && strings.Contains(css, "submit") {
		p.driver.OnSubmit(p)
	}
	return nil
}

func (p *Page) Activate(_ context.Context, node selector.Scope) error {
	if node == nil {
		return errors.New("browsertest: nil node")
	}
	p.mu.Lock()
	p.activated++
	p.mu.Unlock()
	if p.driver.OnActivate != nil {
		p.driver.OnActivate(p, node)
	}
	return nil
}

func (p *Page) Scroll(context.Context) error {
	p.mu.Lock()
	p.scrolls++
	p.mu.Unlock()
	if p.driver.OnScroll != nil {
		p.driver.OnScroll(p)
	}
	return nil
}

func (p *Page) Screenshot(context.Context) ([]byte, error) {
	return []byte("\x89PNG fake"), nil
}

func (p *Page) Close() error {
	p.driver.mu.Lock()
	p.driver.pageCloses++
	p.driver.mu.Unlock()
	return nil
}

func (p *Page) exists(css string) bool {
	nodes, _ := p.document().Find(context.Background(), css)
	return len(nodes) > 0
}

func (p *Page) document() *selector.Document {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc
}

// root is the page-level scope: static queries plus canned script answers.
type root struct{ page *Page }

func (r *root) Find(ctx context.Context, css string) ([]selector.Scope, error) {
	return r.page.document().Find(ctx, css)
}

func (r *root) Text(ctx context.Context) (string, error) {
	return r.page.document().Text(ctx)
}

func (r *root) Attr(context.Context, string) (string, bool, error) { return "", false, nil }

func (r *root) Eval(_ context.Context, js string) (string, bool, error) {
	d := r.page.driver
	if strings.Contains(js, "document.readyState") {
		if d.ReadyState == "" {
			return "complete", true, nil
		}
		return d.ReadyState, true, nil
	}
	if v, ok := d.Scripts[js]; ok {
		return v, true, nil
	}
	return "", false, selector.ErrUnsupported
}
