package browser_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/profilex/browser"
	"github.com/hazyhaar/profilex/browser/browsertest"
	"github.com/hazyhaar/profilex/credential"
	"github.com/hazyhaar/profilex/fault"
)

const (
	loginURL   = "https://social.example/login"
	profileURL = "https://social.example/in/ada"
	loginHTML  = `<html><body><form>
		<input id="username"><input id="password" type="password">
		<button type="submit">Sign in</button></form></body></html>`
	feedHTML = `<html><body><div class="global-nav__me">me</div></body></html>`
)

var creds = credential.Credentials{Username: "ada@example.com", Password: "s3cret"}

func testConfig(d *browsertest.Driver) browser.Config {
	return browser.Config{
		Driver: d.Factory(),
		Login: browser.LoginForm{
			URL:              loginURL,
			UsernameSelector: "#username",
			PasswordSelector: "#password",
			SubmitSelector:   `button[type="submit"]`,
			HomeMarkers:      []string{"div.feed-identity-module", "div.global-nav__me"},
			ErrorMarkers:     []string{"div.alert.error", "p.alert-content"},
		},
		AuthWait:         30 * time.Millisecond,
		SettleDelay:      time.Millisecond,
		PollInterval:     time.Millisecond,
		ReadyTimeout:     20 * time.Millisecond,
		ActionsPerSecond: 1000,
		Logger:           slog.New(slog.DiscardHandler),
	}
}

func open(t *testing.T, d *browsertest.Driver, cfg browser.Config) *browser.Session {
	t.Helper()
	s, err := browser.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAuthenticate_URLTransitionAlone(t *testing.T) {
	// WHAT: Only the URL moves off the login path; the document is still
	// loading so the home and error-marker probes stay inconclusive.
	// WHY: Verification is an OR of signals; one positive signal suffices.
	d := &browsertest.Driver{
		Pages:      map[string]string{loginURL: loginHTML},
		ReadyState: "loading",
		OnSubmit:   func(p *browsertest.Page) { p.SetURL("https://social.example/challenge/verify") },
	}
	s := open(t, d, testConfig(d))

	if err := s.Authenticate(context.Background(), creds); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if s.State() != browser.Authenticated {
		t.Errorf("state: got %s", s.State())
	}
	in := d.LastPage().Inputs()
	if in["#username"] != "ada@example.com" || in["#password"] != "s3cret" {
		t.Errorf("form inputs: %v", in)
	}
}

func TestAuthenticate_HomeMarkerAlone(t *testing.T) {
	// WHAT: URL unchanged but the authenticated home marker renders.
	d := &browsertest.Driver{
		Pages:    map[string]string{loginURL: loginHTML},
		OnSubmit: func(p *browsertest.Page) { p.SetHTML(feedHTML) },
	}
	s := open(t, d, testConfig(d))
	if err := s.Authenticate(context.Background(), creds); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
}

func TestAuthenticate_TimeoutReleasesOnce(t *testing.T) {
	// WHAT: No signal fires within the wait window.
	// WHY: The session fails with AuthenticationError and its browser
	// resources are released exactly once, even with a deferred Close.
	d := &browsertest.Driver{Pages: map[string]string{loginURL: loginHTML}}

	err := browser.WithSession(context.Background(), testConfig(d), func(s *browser.Session) error {
		err := s.Authenticate(context.Background(), creds)
		if s.State() != browser.Failed {
			t.Errorf("state: got %s, want failed", s.State())
		}
		s.Close()
		return err
	})
	if !fault.Is(err, fault.ErrAuthentication) {
		t.Fatalf("err: got %v, want authentication error", err)
	}
	if d.Closes() != 1 || d.PageCloses() != 1 {
		t.Errorf("closes: driver %d page %d, want 1 and 1", d.Closes(), d.PageCloses())
	}
}

func TestAuthenticate_WaitBoundedWithFrozenClock(t *testing.T) {
	// WHAT: A rejected login fails after AuthWait even when Now never advances.
	// WHY: Runs pin the clock for reproducible output; the login wait must
	// still end on its own, well before the caller's deadline.
	d := &browsertest.Driver{Pages: map[string]string{loginURL: loginHTML}}
	cfg := testConfig(d)
	cfg.Now = func() time.Time { return time.Unix(1700000000, 0) }
	s := open(t, d, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	err := s.Authenticate(ctx, creds)
	elapsed := time.Since(start)

	if !fault.Is(err, fault.ErrAuthentication) {
		t.Fatalf("err: %v", err)
	}
	if ctx.Err() != nil || elapsed > time.Second {
		t.Errorf("login wait not bounded by AuthWait: elapsed %s", elapsed)
	}
	if !strings.Contains(err.Error(), "not verified within") {
		t.Errorf("err: %v", err)
	}
}

func TestAuthenticate_LogsMaskedUser(t *testing.T) {
	d := &browsertest.Driver{
		Pages:    map[string]string{loginURL: loginHTML},
		OnSubmit: func(p *browsertest.Page) { p.SetHTML(feedHTML) },
	}
	var logs bytes.Buffer
	cfg := testConfig(d)
	cfg.Logger = slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := open(t, d, cfg)
	if err := s.Authenticate(context.Background(), creds); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if strings.Contains(logs.String(), "ada@example.com") || strings.Contains(logs.String(), "s3cret") {
		t.Errorf("credentials in logs: %s", logs.String())
	}
}

func TestAuthenticate_ContradictingSignalsWarn(t *testing.T) {
	// WHAT: URL moves away but an error marker is also visible.
	// WHY: Permissive OR semantics accept the login and record the contradiction.
	d := &browsertest.Driver{
		Pages: map[string]string{loginURL: loginHTML},
		OnSubmit: func(p *browsertest.Page) {
			p.SetURL("https://social.example/feed/")
			p.SetHTML(`<html><body><div class="alert error">Wrong password</div></body></html>`)
		},
	}
	s := open(t, d, testConfig(d))
	if err := s.Authenticate(context.Background(), creds); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if w := s.Warnings(); len(w) != 1 || !strings.Contains(w[0], "error marker") {
		t.Errorf("warnings: %v", w)
	}
}

func TestAuthenticate_MissingCredentials(t *testing.T) {
	d := &browsertest.Driver{Pages: map[string]string{loginURL: loginHTML}}
	s := open(t, d, testConfig(d))
	err := s.Authenticate(context.Background(), credential.Credentials{Username: "x"})
	if fault.KindOf(err) != fault.KindAuthentication {
		t.Fatalf("kind: %v", fault.KindOf(err))
	}
	if d.Closes() != 1 {
		t.Errorf("driver closes: %d", d.Closes())
	}
	if err := s.Authenticate(context.Background(), creds); !errors.Is(err, browser.ErrState) {
		t.Errorf("second authenticate: %v", err)
	}
}

func TestNavigate_RequiresAuthentication(t *testing.T) {
	d := &browsertest.Driver{}
	s := open(t, d, testConfig(d))
	if err := s.Navigate(context.Background(), profileURL); !errors.Is(err, browser.ErrState) {
		t.Fatalf("err: %v", err)
	}
}

func TestNavigate_ReadinessAndAuthWall(t *testing.T) {
	// WHAT: Readiness selectors gate extraction; an auth-wall bounce is an authentication error.
	d := &browsertest.Driver{
		Pages: map[string]string{
			profileURL:                    `<html><body><main class="profile"><h1>Ada</h1></main></body></html>`,
			"https://social.example/in/x": `<html><body><p>loading…</p></body></html>`,
		},
		Redirects: map[string]string{"https://social.example/in/private": "https://social.example/authwall?trk=x"},
	}
	cfg := testConfig(d)
	cfg.AllowAnonymous = true
	cfg.ReadySelectors = []string{"main.profile"}
	s := open(t, d, cfg)
	ctx := context.Background()

	if err := s.Navigate(ctx, profileURL); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if s.State() != browser.PageLoaded {
		t.Errorf("state: %s", s.State())
	}

	err := s.Navigate(ctx, "https://social.example/in/x")
	if fault.KindOf(err) != fault.KindTimeout {
		t.Errorf("not ready: got %v", err)
	}
	if s.State() != browser.PageLoaded {
		t.Errorf("state after readiness timeout: %s", s.State())
	}

	err = s.Navigate(ctx, "https://social.example/in/private")
	if fault.KindOf(err) != fault.KindAuthentication {
		t.Errorf("auth wall: got %v", err)
	}
}

func TestNavigate_DriverErrorIsTransient(t *testing.T) {
	// WHAT: A driver failure inside the navigation window is Transient, not Timeout.
	d := &browsertest.Driver{NavigateErr: errors.New("net::ERR_CONNECTION_RESET")}
	cfg := testConfig(d)
	cfg.AllowAnonymous = true
	s := open(t, d, cfg)
	err := s.Navigate(context.Background(), profileURL)
	if !fault.Retryable(err) || fault.KindOf(err) != fault.KindTransient {
		t.Errorf("err: %v kind %v", err, fault.KindOf(err))
	}
}

func TestNavigate_StalledLoadIsTimeout(t *testing.T) {
	d := &browsertest.Driver{NavigateDelay: time.Second}
	cfg := testConfig(d)
	cfg.AllowAnonymous = true
	cfg.NavTimeout = 20 * time.Millisecond
	s := open(t, d, cfg)
	err := s.Navigate(context.Background(), profileURL)
	if fault.KindOf(err) != fault.KindTimeout {
		t.Errorf("err: %v kind %v", err, fault.KindOf(err))
	}
}

func TestCapture_WritesCheckpointFile(t *testing.T) {
	// WHAT: Captures land in CaptureDir as <checkpoint>_<unix>.png.
	dir := t.TempDir()
	d := &browsertest.Driver{}
	cfg := testConfig(d)
	cfg.CaptureDir = dir
	cfg.Now = func() time.Time { return time.Unix(1700000000, 0) }
	s := open(t, d, cfg)

	path := s.Capture(context.Background(), "profile_page")
	if filepath.Base(path) != "profile_page_1700000000.png" {
		t.Fatalf("path: %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
}
