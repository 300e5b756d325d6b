package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/hazyhaar/profilex/credential"
	"github.com/hazyhaar/profilex/fault"
	"github.com/hazyhaar/profilex/selector"
)

// Signal is the tri-state outcome of one login verification probe.
type Signal int

const (
	Inconclusive Signal = iota
	Negative
	Positive
)

func (s Signal) String() string {
	switch s {
	case Positive:
		return "positive"
	case Negative:
		return "negative"
	}
	return "inconclusive"
}

// AuthSignals is one sample of the three login verification signals.
type AuthSignals struct {
	HomeMarker    Signal
	URLTransition Signal
	NoErrorMarker Signal
	// ErrorMarker is true when a rejection marker is visible.
	ErrorMarker bool
}

// Verified is the logical OR of the three signals.
func (a AuthSignals) Verified() bool {
	return a.HomeMarker == Positive || a.URLTransition == Positive || a.NoErrorMarker == Positive
}

func (a AuthSignals) positives() []string {
	var out []string
	if a.HomeMarker == Positive {
		out = append(out, "home_marker")
	}
	if a.URLTransition == Positive {
		out = append(out, "url_transition")
	}
	if a.NoErrorMarker == Positive {
		out = append(out, "no_error_marker")
	}
	return out
}

// Authenticate submits creds on the login form and verifies the outcome.
// Verification samples the signals every SettleDelay until AuthWait
// elapses; one positive signal is enough. When none fires the session
// moves to Failed, its resources are released, and an error classified
// Authentication is returned.
func (s *Session) Authenticate(ctx context.Context, creds credential.Credentials) error {
	if err := s.transition(Authenticating, Unauthenticated); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "browser.Authenticate")
	defer span.End()

	form := s.cfg.Login
	s.log.Info("browser: authenticating", "login_url", form.URL, "user", creds.MaskedUsername())

	if !creds.Complete() {
		return s.failAuth(fault.New(fault.ErrAuthentication, "browser: credentials missing"))
	}
	if err := s.submit(ctx, form, creds); err != nil {
		return s.failAuth(err)
	}

	// The window runs on the wall clock; cfg.Now only names captures.
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.AuthWait)
	defer cancel()
	var last AuthSignals
	for {
		expired := false
		if err := sleep(waitCtx, s.cfg.SettleDelay); err != nil {
			if ctx.Err() != nil {
				return s.failAuth(fault.Wrap(ctx.Err(), fault.ErrAuthentication, "browser: verify login"))
			}
			expired = true
		}
		last = s.sampleSignals(ctx, form)
		if last.Verified() {
			if last.ErrorMarker {
				s.warn("login verified despite visible error marker", "signals", last.positives())
			}
			s.setState(Authenticated)
			s.log.Info("browser: authenticated", "signals", last.positives())
			s.Capture(ctx, "login")
			return nil
		}
		if expired || waitCtx.Err() != nil {
			break
		}
	}
	s.Capture(ctx, "login_failed")
	return s.failAuth(fault.Newf(fault.ErrAuthentication,
		"browser: login not verified within %s (home=%s url=%s error_absent=%s)",
		s.cfg.AuthWait, last.HomeMarker, last.URLTransition, last.NoErrorMarker))
}

func (s *Session) submit(ctx context.Context, form LoginForm, creds credential.Credentials) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavTimeout)
	defer cancel()
	if err := s.page.Navigate(navCtx, form.URL); err != nil {
		return fault.Wrap(err, fault.ErrAuthentication, "browser: open login page")
	}
	if err := s.page.Input(navCtx, form.UsernameSelector, creds.Username); err != nil {
		return fault.Wrap(err, fault.ErrAuthentication, "browser: fill username")
	}
	if err := s.page.Input(navCtx, form.PasswordSelector, creds.Password.Reveal()); err != nil {
		// The raw error may echo the typed text; keep only the selector.
		return fault.Newf(fault.ErrAuthentication, "browser: fill password field %s", form.PasswordSelector)
	}
	if err := s.page.Click(navCtx, form.SubmitSelector); err != nil {
		return fault.Wrap(err, fault.ErrAuthentication, "browser: submit login")
	}
	return nil
}

// failAuth moves to Failed and releases the session right away.
func (s *Session) failAuth(err error) error {
	s.setState(Failed)
	s.log.Warn("browser: authentication failed", "error", err)
	s.Close()
	return err
}

// sampleSignals probes the three signals once. A probe that errors, or
// runs while the document is still loading, is inconclusive.
func (s *Session) sampleSignals(ctx context.Context, form LoginForm) AuthSignals {
	var sig AuthSignals
	root := s.page.Root()

	rs, _, err := root.Eval(ctx, `() => document.readyState`)
	rendered := err == nil && rs == "complete"

	sig.HomeMarker = presence(ctx, root, form.HomeMarkers, rendered)
	sig.URLTransition = s.urlSignal(ctx, form)

	errMark := presence(ctx, root, form.ErrorMarkers, rendered)
	sig.ErrorMarker = errMark == Positive
	switch {
	case !rendered || errMark == Inconclusive:
		sig.NoErrorMarker = Inconclusive
	case sig.ErrorMarker:
		sig.NoErrorMarker = Negative
	default:
		// No error shown, but the form still on screen means not yet decided.
		pw := presence(ctx, root, []string{form.PasswordSelector}, true)
		if pw == Negative {
			sig.NoErrorMarker = Positive
		}
	}
	s.log.Debug("browser: login signals", "home", sig.HomeMarker, "url", sig.URLTransition, "no_error", sig.NoErrorMarker)
	return sig
}

// presence is Positive when any selector matches. Absence is Negative on a
// rendered document and Inconclusive otherwise.
func presence(ctx context.Context, root selector.Scope, selectors []string, rendered bool) Signal {
	if len(selectors) == 0 {
		return Inconclusive
	}
	r := selector.ResolveNodes(ctx, root, selector.Field("marker", selector.CSSList(selectors...)...))
	switch {
	case r.OK():
		return Positive
	case r.Status == selector.StatusError || len(r.Attempts) == len(selectors):
		return Inconclusive
	case !rendered:
		return Inconclusive
	}
	return Negative
}

func (s *Session) urlSignal(ctx context.Context, form LoginForm) Signal {
	cur, err := s.page.URL(ctx)
	if err != nil || cur == "" {
		return Inconclusive
	}
	lc := strings.ToLower(cur)
	for _, h := range form.SuccessURLHints {
		if strings.Contains(lc, strings.ToLower(h)) {
			return Positive
		}
	}
	if sameLocation(cur, form.URL) {
		return Negative
	}
	if u, err := url.Parse(form.URL); err == nil && u.Path != "" && u.Path != "/" {
		if strings.Contains(lc, strings.ToLower(strings.TrimRight(u.Path, "/"))) {
			return Negative
		}
	}
	return Positive
}

// String describes the signals for logs.
func (a AuthSignals) String() string {
	return fmt.Sprintf("home=%s url=%s no_error=%s", a.HomeMarker, a.URLTransition, a.NoErrorMarker)
}
