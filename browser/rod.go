package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/profilex/selector"
)

// RodDriver launches a local headless Chrome (or connects to RemoteURL)
// through go-rod. It is the default DriverFactory.
func RodDriver(ctx context.Context, cfg Config) (Driver, error) {
	log := cfg.Logger
	var wsURL string
	var lnch *launcher.Launcher

	if cfg.RemoteURL != "" {
		wsURL = cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Context(ctx).Headless(!cfg.Headful)
		// Anti-detection flags.
		l = l.Set("disable-blink-features", "AutomationControlled")
		if cfg.ChromePath != "" {
			l = l.Bin(cfg.ChromePath)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		lnch = l
		log.Info("browser: launched local chrome", "headful", cfg.Headful)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	if cfg.SlowMotion > 0 {
		b = b.SlowMotion(cfg.SlowMotion)
	}
	return &rodDriver{cfg: cfg, browser: b, lnch: lnch}, nil
}

type rodDriver struct {
	cfg     Config
	browser *rod.Browser
	lnch    *launcher.Launcher
}

func (d *rodDriver) NewPage(ctx context.Context) (Page, error) {
	var (
		page *rod.Page
		err  error
	)
	if d.cfg.DisableStealth {
		page, err = d.browser.Page(proto.TargetCreateTarget{URL: ""})
	} else {
		page, err = stealth.Page(d.browser)
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             d.cfg.ViewportWidth,
		Height:            d.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		d.cfg.Logger.Warn("browser: set viewport failed", "error", err)
	}
	if d.cfg.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: d.cfg.UserAgent}); err != nil {
			d.cfg.Logger.Warn("browser: set user agent failed", "error", err)
		}
	}

	rp := &rodPage{page: page, cfg: d.cfg}
	if len(d.cfg.ResourceBlocking) > 0 {
		rp.router = applyResourceBlocking(page, d.cfg.ResourceBlocking)
	}
	return rp, nil
}

func (d *rodDriver) Close() error {
	var err error
	if d.browser != nil {
		err = d.browser.Close()
	}
	if d.lnch != nil {
		d.lnch.Cleanup()
	}
	return err
}

type rodPage struct {
	page   *rod.Page
	router *rod.HijackRouter
	cfg    Config
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return err
	}
	if err := pg.WaitLoad(); err != nil {
		p.cfg.Logger.Warn("browser: wait load", "url", url, "error", err)
	}
	return nil
}

func (p *rodPage) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *rodPage) Root() selector.Scope { return &rodDocument{page: p.page} }

func (p *rodPage) Input(ctx context.Context, css, text string) error {
	el, err := p.page.Context(ctx).Element(css)
	if err != nil {
		return fmt.Errorf("browser: input %s: %w", css, err)
	}
	// Typed text replaces any prefilled value.
	_ = el.SelectAllText()
	return el.Input(text)
}

func (p *rodPage) Click(ctx context.Context, css string) error {
	el, err := p.page.Context(ctx).Element(css)
	if err != nil {
		return fmt.Errorf("browser: click %s: %w", css, err)
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) Activate(ctx context.Context, node selector.Scope) error {
	el, ok := node.(*rodElement)
	if !ok {
		return errors.New("browser: activate: node does not belong to this page")
	}
	e := el.el.Context(ctx)
	if err := e.ScrollIntoView(); err != nil {
		return err
	}
	return e.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) Scroll(ctx context.Context) error {
	_, err := p.page.Context(ctx).Eval(`() => window.scrollTo(0, document.body.scrollHeight)`)
	return err
}

func (p *rodPage) Screenshot(ctx context.Context) ([]byte, error) {
	return p.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
}

func (p *rodPage) Close() error {
	if p.router != nil {
		_ = p.router.Stop()
	}
	return p.page.Close()
}

// rodDocument is the page-level Scope.
type rodDocument struct{ page *rod.Page }

func (d *rodDocument) Find(ctx context.Context, css string) ([]selector.Scope, error) {
	els, err := d.page.Context(ctx).Elements(css)
	if err != nil {
		return nil, err
	}
	return wrapElements(els), nil
}

func (d *rodDocument) Text(ctx context.Context) (string, error) {
	v, _, err := d.Eval(ctx, `() => document.body ? document.body.innerText : ""`)
	return v, err
}

func (d *rodDocument) Attr(context.Context, string) (string, bool, error) {
	return "", false, nil
}

func (d *rodDocument) Eval(ctx context.Context, js string) (string, bool, error) {
	res, err := d.page.Context(ctx).Eval(js)
	if err != nil {
		return "", false, err
	}
	if res.Value.Nil() {
		return "", false, nil
	}
	return res.Value.Str(), true, nil
}

// rodElement is an element-level Scope.
type rodElement struct{ el *rod.Element }

func wrapElements(els rod.Elements) []selector.Scope {
	out := make([]selector.Scope, len(els))
	for i, el := range els {
		out[i] = &rodElement{el: el}
	}
	return out
}

func (e *rodElement) Find(ctx context.Context, css string) ([]selector.Scope, error) {
	els, err := e.el.Context(ctx).Elements(css)
	if err != nil {
		return nil, err
	}
	return wrapElements(els), nil
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}

func (e *rodElement) Attr(ctx context.Context, name string) (string, bool, error) {
	v, err := e.el.Context(ctx).Attribute(name)
	if err != nil || v == nil {
		return "", false, err
	}
	return *v, true, nil
}

func (e *rodElement) Eval(ctx context.Context, js string) (string, bool, error) {
	res, err := e.el.Context(ctx).Eval(js)
	if err != nil {
		return "", false, err
	}
	if res.Value.Nil() {
		return "", false, nil
	}
	return res.Value.Str(), true, nil
}

// applyResourceBlocking intercepts requests and fails the configured
// resource types (images, fonts, media, stylesheets).
func applyResourceBlocking(page *rod.Page, types []string) *rod.HijackRouter {
	blockSet := make(map[string]bool, len(types))
	for _, t := range types {
		blockSet[strings.ToLower(t)] = true
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(ctx *rod.Hijack) {
		if shouldBlock(blockSet, string(ctx.Request.Type())) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

func shouldBlock(blockSet map[string]bool, resType string) bool {
	switch lower := strings.ToLower(resType); lower {
	case "image":
		return blockSet["images"]
	case "font":
		return blockSet["fonts"]
	case "media":
		return blockSet["media"]
	case "stylesheet":
		return blockSet["stylesheets"]
	default:
		return blockSet[lower]
	}
}
