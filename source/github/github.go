// Package github is the REST API profile source: the user record, then every
// owned repository through paginated, rate-limited requests.
package github

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hazyhaar/profilex/apifetch"
	"github.com/hazyhaar/profilex/fault"
	"github.com/hazyhaar/profilex/profile"
	"github.com/hazyhaar/profilex/source"
)

var tracer = otel.Tracer("github.com/hazyhaar/profilex/source/github")

var loginRe = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9-]{0,38})$`)

// Config configures the adapter.
type Config struct {
	API apifetch.Config
	// PageSize of repository listings. Default: 100 (the API maximum).
	PageSize int
	// SkipForks drops forked repositories from the items.
	SkipForks bool
	Logger    *slog.Logger
	Now       func() time.Time
}

func (c *Config) defaults() {
	if c.PageSize <= 0 || c.PageSize > 100 {
		c.PageSize = 100
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.API.Logger == nil {
		c.API.Logger = c.Logger
	}
	if c.API.Now == nil {
		c.API.Now = c.Now
	}
}

// Adapter implements source.Adapter over the REST API.
type Adapter struct {
	cfg Config
}

// New builds the adapter. Each FetchProfile call uses its own HTTP client.
func New(cfg Config) *Adapter {
	cfg.defaults()
	return &Adapter{cfg: cfg}
}

func (a *Adapter) Name() string { return profile.SourceGitHub }

// Applicable requires a username.
func (a *Adapter) Applicable(id profile.Identity) bool {
	return strings.TrimSpace(id.Username) != ""
}

type apiUser struct {
	Login       string `json:"login"`
	Name        string `json:"name"`
	Bio         string `json:"bio"`
	Company     string `json:"company"`
	Blog        string `json:"blog"`
	Location    string `json:"location"`
	AvatarURL   string `json:"avatar_url"`
	Followers   int    `json:"followers"`
	Following   int    `json:"following"`
	PublicRepos int    `json:"public_repos"`
	CreatedAt   string `json:"created_at"`
}

type apiRepo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	HTMLURL     string   `json:"html_url"`
	Language    string   `json:"language"`
	Topics      []string `json:"topics"`
	Stars       int      `json:"stargazers_count"`
	Forks       int      `json:"forks_count"`
	Fork        bool     `json:"fork"`
	Archived    bool     `json:"archived"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// FetchProfile reads the user record and the repository listing. A
// missing user fails the source; a failure while listing repositories
// keeps the pages already fetched.
func (a *Adapter) FetchProfile(ctx context.Context, id profile.Identity) (frag profile.Fragment, rep profile.SourceRunReport) {
	rec := source.NewRecorder(a.Name(), a.cfg.Logger, a.cfg.Now)
	frag = profile.NewFragment(a.Name())
	defer rec.Finish(&frag, &rep)

	login := strings.TrimSpace(id.Username)
	if !loginRe.MatchString(login) {
		rec.Fatal("username", fault.Newf(fault.ErrConfig, "github: invalid username %q", login))
		return frag, rep
	}

	ctx, span := tracer.Start(ctx, "github.FetchProfile")
	defer span.End()
	span.SetAttributes(attribute.String("github.login", login))

	client := apifetch.New(a.cfg.API)
	if !client.Authenticated() {
		rec.Warn("unauthenticated requests: low rate limit")
	}

	var u apiUser
	if _, err := client.GetJSON(ctx, "/users/"+url.PathEscape(login), nil, &u); err != nil {
		span.RecordError(err)
		rec.Fatal("user", err)
		if fault.Is(err, fault.ErrNotFound) {
			frag.Mark(profile.SectionBasic, profile.Absent)
		} else {
			frag.Mark(profile.SectionBasic, profile.Unavailable)
		}
		return frag, rep
	}
	a.basic(&frag, u)

	if u.PublicRepos == 0 {
		frag.Mark(profile.SectionRepositories, profile.Absent)
		frag.Mark(profile.SectionSkills, profile.Absent)
		return frag, rep
	}
	a.repositories(ctx, client, rec, &frag, login)
	return frag, rep
}

func (a *Adapter) basic(frag *profile.Fragment, u apiUser) {
	frag.Basic = profile.Basic{
		Name:        strings.TrimSpace(u.Name),
		Headline:    strings.TrimSpace(u.Bio),
		Location:    strings.TrimSpace(u.Location),
		Company:     strings.TrimPrefix(strings.TrimSpace(u.Company), "@"),
		Website:     strings.TrimSpace(u.Blog),
		AvatarURL:   u.AvatarURL,
		Followers:   u.Followers,
		Following:   u.Following,
		PublicRepos: u.PublicRepos,
		Joined:      joined(u.CreatedAt),
	}
	if frag.Basic.Name != "" && frag.Basic.Headline != "" {
		frag.Mark(profile.SectionBasic, profile.Complete)
	} else {
		frag.Mark(profile.SectionBasic, profile.Partial)
	}
}

func (a *Adapter) repositories(ctx context.Context, client *apifetch.Client, rec *source.Recorder, frag *profile.Fragment, login string) {
	params := url.Values{"sort": {"updated"}, "type": {"owner"}}
	paged, err := client.FetchPaginated(ctx, "/users/"+url.PathEscape(login)+"/repos", params, a.cfg.PageSize)
	if err != nil {
		rec.Error("repositories", err)
	}

	repos := make([]apiRepo, 0, len(paged.Items))
	for i, raw := range paged.Items {
		var r apiRepo
		if derr := json.Unmarshal(raw, &r); derr != nil {
			rec.Error("repositories", fault.Wrap(derr, fault.ErrInvalidResponse, fmt.Sprintf("github: repository %d", i)))
			continue
		}
		if a.cfg.SkipForks && r.Fork {
			continue
		}
		repos = append(repos, r)
	}
	sortRepos(repos)
	for _, r := range repos {
		frag.Items = append(frag.Items, repoItem(r))
	}
	frag.Skills = languageSkills(repos)

	switch {
	case err != nil && len(repos) > 0:
		frag.Mark(profile.SectionRepositories, profile.Partial)
		frag.Mark(profile.SectionSkills, profile.Partial)
	case err != nil:
		frag.Mark(profile.SectionRepositories, profile.Unavailable)
		frag.Mark(profile.SectionSkills, profile.Unavailable)
	case len(repos) == 0:
		frag.Mark(profile.SectionRepositories, profile.Absent)
		frag.Mark(profile.SectionSkills, profile.Absent)
	default:
		frag.Mark(profile.SectionRepositories, profile.Complete)
		if len(frag.Skills) > 0 {
			frag.Mark(profile.SectionSkills, profile.Complete)
		} else {
			frag.Mark(profile.SectionSkills, profile.Absent)
		}
	}
	a.cfg.Logger.Debug("github: repositories fetched", "login", login, "pages", paged.Pages, "repos", len(repos))
}

// sortRepos orders by stars, then forks, most popular first, then by name.
func sortRepos(repos []apiRepo) {
	slices.SortStableFunc(repos, func(x, y apiRepo) int {
		if c := cmp.Compare(y.Stars, x.Stars); c != 0 {
			return c
		}
		if c := cmp.Compare(y.Forks, x.Forks); c != 0 {
			return c
		}
		return strings.Compare(x.Name, y.Name)
	})
}

func repoItem(r apiRepo) profile.Item {
	it := profile.Item{
		Kind:     profile.KindRepository,
		Title:    r.Name,
		Text:     strings.TrimSpace(r.Description),
		URL:      r.HTMLURL,
		Language: r.Language,
		Topics:   slices.Clone(r.Topics),
		Date:     r.CreatedAt,
		Updated:  r.UpdatedAt,
		Metrics:  profile.Metrics{Stars: r.Stars, Forks: r.Forks},
	}
	if r.Fork {
		it.Flags = append(it.Flags, "fork")
	}
	if r.Archived {
		it.Flags = append(it.Flags, "archived")
	}
	return it
}

// languageSkills counts repositories per primary language, most used first.
func languageSkills(repos []apiRepo) []profile.Skill {
	counts := map[string]int{}
	for _, r := range repos {
		if r.Language != "" {
			counts[r.Language]++
		}
	}
	out := make([]profile.Skill, 0, len(counts))
	for name, n := range counts {
		out = append(out, profile.Skill{Name: name, Count: n})
	}
	slices.SortFunc(out, func(x, y profile.Skill) int {
		if c := cmp.Compare(y.Count, x.Count); c != 0 {
			return c
		}
		return strings.Compare(x.Name, y.Name)
	})
	return out
}

// joined keeps the date part of an RFC 3339 timestamp.
func joined(ts string) string {
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t.UTC().Format(time.DateOnly)
	}
	return ts
}
