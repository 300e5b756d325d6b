// Package linkedin is the browser-rendered profile source. It logs in,
// loads the profile page, and extracts the top card, the work history and
// the recent posts through fallback locators.
package linkedin

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/hazyhaar/profilex/browser"
	"github.com/hazyhaar/profilex/credential"
	"github.com/hazyhaar/profilex/fault"
	"github.com/hazyhaar/profilex/internal/textnorm"
	"github.com/hazyhaar/profilex/profile"
	"github.com/hazyhaar/profilex/resilience"
	"github.com/hazyhaar/profilex/selector"
	"github.com/hazyhaar/profilex/source"
)

var tracer = otel.Tracer("github.com/hazyhaar/profilex/source/linkedin")

// Config configures the adapter.
type Config struct {
	Credentials credential.Credentials
	// Browser configures the session. Login defaults to Login().
	Browser   browser.Config
	Selectors *Selectors
	// Retry applies to page navigation. Authentication is never retried.
	Retry resilience.Policy
	// MaxPosts caps extracted posts. Default: 20.
	MaxPosts int
	// SkipPosts disables the activity page visit.
	SkipPosts bool
	// ListWait is the pause after expanding a list. Default: 1s.
	ListWait time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

func (c *Config) defaults() {
	if c.Browser.Login.URL == "" {
		c.Browser.Login = Login()
	}
	if c.Selectors == nil {
		s := DefaultSelectors()
		c.Selectors = &s
	}
	if c.MaxPosts <= 0 {
		c.MaxPosts = 20
	}
	if c.ListWait <= 0 {
		c.ListWait = time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Browser.Logger == nil {
		c.Browser.Logger = c.Logger
	}
	if c.Browser.Now == nil {
		c.Browser.Now = c.Now
	}
	if c.Retry.Logger == nil {
		c.Retry.Logger = c.Logger
	}
}

// Adapter implements source.Adapter over a browser session.
type Adapter struct {
	cfg  Config
	norm *textnorm.Normalizer
}

// New builds the adapter.
func New(cfg Config) *Adapter {
	cfg.defaults()
	return &Adapter{cfg: cfg, norm: textnorm.New()}
}

func (a *Adapter) Name() string { return profile.SourceLinkedIn }

// Applicable requires a profile URL.
func (a *Adapter) Applicable(id profile.Identity) bool {
	return id.ProfileURL != ""
}

// FetchProfile runs one browser session for id. Section failures degrade
// the fragment; only login, navigation or an unavailable profile fail the
// whole run.
func (a *Adapter) FetchProfile(ctx context.Context, id profile.Identity) (frag profile.Fragment, rep profile.SourceRunReport) {
	rec := source.NewRecorder(a.Name(), a.cfg.Logger, a.cfg.Now)
	frag = profile.NewFragment(a.Name())
	defer rec.Finish(&frag, &rep)

	ctx, span := tracer.Start(ctx, "linkedin.FetchProfile")
	defer span.End()

	target, err := profileURL(id.ProfileURL)
	if err != nil {
		rec.Fatal("profile_url", err)
		return frag, rep
	}

	err = browser.WithSession(ctx, a.cfg.Browser, func(s *browser.Session) error {
		defer func() {
			for _, d := range s.Drift() {
				rec.Drift(d.Field, d.Index)
			}
			for _, w := range s.Warnings() {
				rec.Warn(w)
			}
		}()
		if err := s.Authenticate(ctx, a.cfg.Credentials); err != nil {
			return err
		}
		if err := a.navigate(ctx, s, target); err != nil {
			return err
		}
		s.Capture(ctx, "profile_page")

		if r := s.Has(ctx, a.cfg.Selectors.Unavailable); r.OK() {
			return fault.Newf(fault.ErrNotFound, "linkedin: profile %s is private or unavailable", target)
		}

		a.basic(ctx, s, rec, &frag)
		a.experience(ctx, s, rec, &frag)
		if a.cfg.SkipPosts {
			return nil
		}
		a.posts(ctx, s, rec, &frag, target)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		rec.Fatal("session", err)
	}
	return frag, rep
}

// navigate loads target through the retry policy. A page whose dynamic
// content never signalled readiness is still extracted; the session
// already recorded the warning.
func (a *Adapter) navigate(ctx context.Context, s *browser.Session, target string) error {
	return a.cfg.Retry.Do(ctx, "linkedin.navigate", func(ctx context.Context) error {
		err := s.Navigate(ctx, target)
		if err != nil && fault.Is(err, fault.ErrTimeout) && s.State() == browser.PageLoaded {
			return nil
		}
		return err
	})
}

func (a *Adapter) basic(ctx context.Context, s *browser.Session, rec *source.Recorder, frag *profile.Fragment) {
	res := s.ExtractSection(ctx, a.cfg.Selectors.Basic)
	for field, r := range res.Fields {
		if r.OK() {
			frag.FieldIndex[field] = r.Index
		}
	}
	switch res.Status {
	case selector.StatusError:
		rec.Error("basic", res.Err())
		frag.Mark(profile.SectionBasic, profile.Unavailable)
		return
	case selector.StatusNotFound:
		frag.Mark(profile.SectionBasic, profile.Absent)
		return
	}
	frag.Basic = profile.Basic{
		Name:     res.Value("name"),
		Headline: res.Value("headline"),
		Location: res.Value("location"),
	}
	if frag.Basic.Name != "" && frag.Basic.Headline != "" {
		frag.Mark(profile.SectionBasic, profile.Complete)
	} else {
		frag.Mark(profile.SectionBasic, profile.Partial)
	}
}

func (a *Adapter) experience(ctx context.Context, s *browser.Session, rec *source.Recorder, frag *profile.Fragment) {
	spec := a.cfg.Selectors.Experience
	spec.ExpandWait = a.cfg.ListWait
	res := s.ExtractPaginatedList(ctx, spec)
	for _, it := range res.Items {
		start, end := splitPeriod(it["period"])
		frag.Experience = append(frag.Experience, profile.Experience{
			Title:        it["title"],
			Organization: it["organization"],
			Period:       it["period"],
			Start:        start,
			End:          end,
		})
	}
	frag.Mark(profile.SectionExperience, listCompleteness(res))
	if res.Err != nil {
		rec.Error("experience", res.Err)
	}
}

func (a *Adapter) posts(ctx context.Context, s *browser.Session, rec *source.Recorder, frag *profile.Fragment, base string) {
	link := s.Probe(ctx, a.cfg.Selectors.PostsLink)
	switch link.Status {
	case selector.StatusError:
		rec.Error("posts", link.Err)
		frag.Mark(profile.SectionPosts, profile.Unavailable)
		return
	case selector.StatusNotFound:
		frag.Mark(profile.SectionPosts, profile.Absent)
		return
	}
	postsURL := resolveURL(base, link.Value)
	if err := a.navigate(ctx, s, postsURL); err != nil {
		rec.Error("posts", err)
		frag.Mark(profile.SectionPosts, profile.Unavailable)
		return
	}
	s.Capture(ctx, "posts_page")

	spec := a.cfg.Selectors.Posts
	spec.ExpandWait = a.cfg.ListWait
	res := s.ExtractPaginatedList(ctx, spec)
	for i, it := range res.Items {
		if i >= a.cfg.MaxPosts {
			break
		}
		frag.Items = append(frag.Items, a.post(it, postsURL))
	}
	frag.Mark(profile.SectionPosts, listCompleteness(res))
	if res.Err != nil {
		rec.Error("posts", res.Err)
	}
}

func (a *Adapter) post(it map[string]string, pageURL string) profile.Item {
	text := a.norm.Markdown(it["content_html"], pageURL)
	if text == "" {
		text = a.norm.PlainText(it["content"])
	}
	item := profile.Item{
		Kind: profile.KindPost,
		Text: text,
		Date: strings.TrimSpace(it["date"]),
		URL:  it["article_url"],
		Metrics: profile.Metrics{
			Likes:    textnorm.ParseCount(it["likes"]),
			Comments: textnorm.ParseCount(it["comments"]),
		},
	}
	if item.URL == "" {
		item.URL = textnorm.FirstLink(it["content_html"], pageURL)
	}
	for _, flag := range []string{"image", "video", "article", "document"} {
		if it[flag] != "" {
			item.Flags = append(item.Flags, flag)
		}
	}
	return item
}

func listCompleteness(res browser.ListResult) profile.Completeness {
	switch {
	case res.Status == selector.StatusFound && res.Err != nil:
		return profile.Partial
	case res.Status == selector.StatusFound:
		return profile.Complete
	case res.Status == selector.StatusError:
		return profile.Unavailable
	}
	return profile.Absent
}

// splitPeriod splits "Jan 2020 - Present · 3 yrs" into its bounds.
func splitPeriod(p string) (start, end string) {
	if i := strings.Index(p, "·"); i >= 0 {
		p = p[:i]
	}
	for _, sep := range []string{" – ", " - ", "–", "-"} {
		if before, after, ok := strings.Cut(p, sep); ok {
			return strings.TrimSpace(before), strings.TrimSpace(after)
		}
	}
	return strings.TrimSpace(p), ""
}

func profileURL(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fault.New(fault.ErrConfig, "linkedin: identity has no profile url")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fault.Newf(fault.ErrConfig, "linkedin: invalid profile url %q", raw)
	}
	return u.String(), nil
}

func resolveURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
