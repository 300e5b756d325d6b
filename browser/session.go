// Package browser is the browser source driver: one session per run over a
// headless Chrome page, with multi-signal login verification, readiness-aware
// navigation and section or list extraction through the selector resolver.
//
// A Session moves through
//
//	Unauthenticated → Authenticating → Authenticated → PageLoaded → Extracting → Idle
//
// and ends in Failed when authentication cannot be confirmed. Its page and
// driver are released exactly once, on every exit path.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/hazyhaar/profilex/fault"
	"github.com/hazyhaar/profilex/selector"
)

var tracer = otel.Tracer("github.com/hazyhaar/profilex/browser")

// ErrState is returned when an operation is not allowed in the current state.
var ErrState = errors.New("browser: invalid session state")

// State of a Session.
type State int

const (
	Unauthenticated State = iota
	Authenticating
	Authenticated
	PageLoaded
	Extracting
	Idle
	Failed
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case PageLoaded:
		return "page_loaded"
	case Extracting:
		return "extracting"
	case Idle:
		return "idle"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// LoginForm describes the login surface and the markers used to verify it.
type LoginForm struct {
	URL              string
	UsernameSelector string
	PasswordSelector string
	SubmitSelector   string
	// HomeMarkers are elements only present once logged in.
	HomeMarkers []string
	// ErrorMarkers are elements shown when the login is rejected.
	ErrorMarkers []string
	// SuccessURLHints mark URLs reached after a successful login.
	SuccessURLHints []string
}

// Config configures a Session.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome.
	RemoteURL  string
	ChromePath string
	Headful    bool
	// DisableStealth opens plain pages instead of go-rod/stealth pages.
	DisableStealth bool
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	SlowMotion     time.Duration
	// ResourceBlocking lists resource types to block (images, fonts, media, stylesheets).
	ResourceBlocking []string

	Login LoginForm
	// AuthWallHints are URL fragments meaning the session was bounced to a login wall.
	AuthWallHints []string
	// ReadySelectors signal that dynamic content has rendered. Empty = document complete.
	ReadySelectors []string
	// AllowAnonymous lets Navigate run without Authenticate.
	AllowAnonymous bool

	NavTimeout   time.Duration
	ReadyTimeout time.Duration
	AuthWait     time.Duration
	SettleDelay  time.Duration
	PollInterval time.Duration
	// ActionsPerSecond paces navigations. Default: 0.5.
	ActionsPerSecond float64

	// CaptureDir enables diagnostic screenshots when non-empty.
	CaptureDir string

	Driver DriverFactory
	Logger *slog.Logger
	Now    func() time.Time
}

func (c *Config) defaults() {
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	}
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = 1920
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = 1080
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 10 * time.Second
	}
	if c.AuthWait <= 0 {
		c.AuthWait = 15 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 2 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.ActionsPerSecond <= 0 {
		c.ActionsPerSecond = 0.5
	}
	if len(c.AuthWallHints) == 0 {
		c.AuthWallHints = []string{"authwall", "/login"}
	}
	if c.Driver == nil {
		c.Driver = RodDriver
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Drift records a field resolved by a fallback strategy.
type Drift struct {
	Field string
	Index int
}

// Session is one browser session owned by one run.
type Session struct {
	cfg    Config
	log    *slog.Logger
	driver Driver
	page   Page
	pacer  *rate.Limiter

	mu       sync.Mutex
	state    State
	drift    map[string]int
	warnings []string

	closeOnce sync.Once
	closeErr  error
}

// Open acquires a driver and a page. The caller must Close the session;
// prefer WithSession.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	cfg.defaults()
	drv, err := cfg.Driver(ctx, cfg)
	if err != nil {
		return nil, fault.Wrap(err, fault.ErrTransient, "browser: open driver")
	}
	page, err := drv.NewPage(ctx)
	if err != nil {
		drv.Close()
		return nil, fault.Wrap(err, fault.ErrTransient, "browser: open page")
	}
	burst := max(1, int(cfg.ActionsPerSecond))
	return &Session{
		cfg:    cfg,
		log:    cfg.Logger,
		driver: drv,
		page:   page,
		pacer:  rate.NewLimiter(rate.Limit(cfg.ActionsPerSecond), burst),
		state:  Unauthenticated,
		drift:  map[string]int{},
	}, nil
}

// WithSession opens a session, runs fn and releases the session whatever
// fn returns, panics included.
func WithSession(ctx context.Context, cfg Config, fn func(*Session) error) error {
	s, err := Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// Close releases the page and the driver. Safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if err := s.page.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := s.driver.Close(); err != nil {
			errs = append(errs, err)
		}
		s.closeErr = errors.Join(errs...)
		s.log.Debug("browser: session released", "state", s.State())
	})
	return s.closeErr
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// transition moves to next when the current state is one of from.
func (s *Session) transition(next State, from ...State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range from {
		if s.state == f {
			s.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrState, s.state, next)
}

// Warnings returns non-fatal observations made by the session.
func (s *Session) Warnings() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.warnings...)
}

func (s *Session) warn(msg string, args ...any) {
	s.log.Warn("browser: "+msg, args...)
	s.mu.Lock()
	s.warnings = append(s.warnings, msg)
	s.mu.Unlock()
}

// Drift returns the fields resolved by fallback strategies, highest index per field.
func (s *Session) Drift() []Drift {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Drift, 0, len(s.drift))
	for f, i := range s.drift {
		out = append(out, Drift{Field: f, Index: i})
	}
	sortDrift(out)
	return out
}

func (s *Session) noteDrift(field string, index int) {
	if index <= 0 {
		return
	}
	s.mu.Lock()
	if index > s.drift[field] {
		s.drift[field] = index
	}
	s.mu.Unlock()
	s.log.Warn("selector: drift", "field", field, "index", index)
}

// CurrentURL returns the page location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	return s.page.URL(ctx)
}

// Navigate loads target, checks for an auth-wall bounce, then waits for
// content readiness. When readiness is not observed within ReadyTimeout
// the page is still usable and an error classified Timeout is returned.
func (s *Session) Navigate(ctx context.Context, target string) error {
	from := []State{Authenticated, PageLoaded, Idle}
	if s.cfg.AllowAnonymous {
		from = append(from, Unauthenticated)
	}
	if err := s.transition(s.State(), from...); err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "browser.Navigate")
	defer span.End()
	span.SetAttributes(attribute.String("url.full", target))

	if err := s.pacer.Wait(ctx); err != nil {
		return fault.Wrap(err, fault.ErrTimeout, "browser: pace")
	}

	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavTimeout)
	err := s.page.Navigate(navCtx, target)
	timedOut := navCtx.Err() != nil
	cancel()
	if err != nil {
		span.RecordError(err)
		if timedOut {
			return fault.Wrap(err, fault.ErrTimeout, "browser: navigate "+target)
		}
		return fault.Wrap(err, fault.ErrTransient, "browser: navigate "+target)
	}

	if cur, err := s.page.URL(ctx); err == nil && s.onAuthWall(cur, target) {
		s.setState(Idle)
		return fault.Newf(fault.ErrAuthentication, "browser: navigate %s: redirected to auth wall %s", target, cur)
	}

	s.setState(PageLoaded)
	if err := s.waitReady(ctx); err != nil {
		s.warn("content readiness not observed on " + target)
		return err
	}
	s.log.Debug("browser: page loaded", "url", target)
	return nil
}

// onAuthWall reports whether cur is an auth-wall page that target was not.
func (s *Session) onAuthWall(cur, target string) bool {
	lc, lt := strings.ToLower(cur), strings.ToLower(target)
	for _, h := range s.cfg.AuthWallHints {
		if strings.Contains(lc, h) && !strings.Contains(lt, h) {
			return true
		}
	}
	return false
}

func (s *Session) waitReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReadyTimeout)
	defer cancel()
	root := s.page.Root()
	for {
		if s.ready(ctx, root) {
			return nil
		}
		if err := sleep(ctx, s.cfg.PollInterval); err != nil {
			return fault.Wrap(err, fault.ErrTimeout, "browser: wait ready")
		}
	}
}

func (s *Session) ready(ctx context.Context, root selector.Scope) bool {
	if len(s.cfg.ReadySelectors) == 0 {
		st, _, err := root.Eval(ctx, `() => document.readyState`)
		return err == nil && st == "complete"
	}
	for _, css := range s.cfg.ReadySelectors {
		if nodes, err := root.Find(ctx, css); err == nil && len(nodes) > 0 {
			return true
		}
	}
	return false
}

// sameLocation compares two URLs ignoring scheme case and trailing slash.
func sameLocation(a, b string) bool {
	ua, err1 := url.Parse(a)
	ub, err2 := url.Parse(b)
	if err1 != nil || err2 != nil {
		return a == b
	}
	return strings.EqualFold(ua.Host, ub.Host) && strings.TrimRight(ua.Path, "/") == strings.TrimRight(ub.Path, "/")
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
