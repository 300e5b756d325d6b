// Package profile defines the canonical, source-agnostic record produced by
// an extraction run, the per-source fragments it is merged from, and the
// per-source run reports attached to it.
package profile

import (
	"errors"
	"strings"
	"time"
)

// Source names used by the built-in adapters.
const (
	SourceLinkedIn = "linkedin"
	SourceGitHub   = "github"
)

// Identity is the immutable input of a run.
type Identity struct {
	Name       string `json:"name"`
	ProfileURL string `json:"profile_url,omitempty"`
	Username   string `json:"username,omitempty"`
}

// Validate requires a name or at least one source handle.
func (id Identity) Validate() error {
	if strings.TrimSpace(id.Name) == "" && id.ProfileURL == "" && id.Username == "" {
		return errors.New("profile: identity needs a name, profile url or username")
	}
	return nil
}

// Handle returns the handle an adapter uses for source, or "".
func (id Identity) Handle(source string) string {
	switch source {
	case SourceLinkedIn:
		return id.ProfileURL
	case SourceGitHub:
		return id.Username
	}
	return ""
}

// Section names a block of the canonical profile.
type Section string

const (
	SectionBasic        Section = "basic"
	SectionExperience   Section = "experience"
	SectionRepositories Section = "repositories"
	SectionPosts        Section = "posts"
	SectionSkills       Section = "skills"
)

// Sections lists every section in output order.
var Sections = []Section{SectionBasic, SectionExperience, SectionRepositories, SectionPosts, SectionSkills}

// Completeness distinguishes confirmed absence from absence caused by an error.
type Completeness string

const (
	Complete     Completeness = "complete"
	Partial      Completeness = "partial"
	Absent       Completeness = "absent"
	Unavailable  Completeness = "unavailable"
	NotRetrieved Completeness = "not_retrieved"
)

// rank orders completeness values from best to worst for merging.
func (c Completeness) rank() int {
	switch c {
	case Complete:
		return 0
	case Partial:
		return 1
	case Absent:
		return 2
	case Unavailable:
		return 3
	}
	return 4
}

// Better reports whether c carries more information than o.
func (c Completeness) Better(o Completeness) bool { return c.rank() < o.rank() }

// Basic holds the top-of-profile fields.
type Basic struct {
	Name      string `json:"name,omitempty"`
	Headline  string `json:"headline,omitempty"`
	Location  string `json:"location,omitempty"`
	Company   string `json:"company,omitempty"`
	Website   string `json:"website,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Followers int    `json:"followers,omitempty"`
	Following int    `json:"following,omitempty"`
	// PublicRepos is the count the source advertises, not the number fetched.
	PublicRepos int    `json:"public_repos,omitempty"`
	Joined      string `json:"joined,omitempty"`
}

// Experience is one work-history entry.
type Experience struct {
	Title        string `json:"title"`
	Organization string `json:"organization,omitempty"`
	Start        string `json:"start,omitempty"`
	End          string `json:"end,omitempty"`
	Period       string `json:"period,omitempty"`
}

// ItemKind tags an Item.
type ItemKind string

const (
	KindRepository ItemKind = "code_repository"
	KindPost       ItemKind = "social_post"
)

// Metrics carries engagement or popularity counters.
type Metrics struct {
	Stars    int `json:"stars,omitempty"`
	Forks    int `json:"forks,omitempty"`
	Likes    int `json:"likes,omitempty"`
	Comments int `json:"comments,omitempty"`
}

// Item is a repository or a post.
type Item struct {
	Kind     ItemKind `json:"kind"`
	Title    string   `json:"title,omitempty"`
	Text     string   `json:"text,omitempty"`
	URL      string   `json:"url,omitempty"`
	Language string   `json:"language,omitempty"`
	Topics   []string `json:"topics,omitempty"`
	Date     string   `json:"date,omitempty"`
	Updated  string   `json:"updated,omitempty"`
	Metrics  Metrics  `json:"metrics"`
	Flags    []string `json:"flags,omitempty"`
}

// Skill is a named competence with a weight (number of occurrences).
type Skill struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// FieldProvenance records which source supplied a merged field.
type FieldProvenance struct {
	Field        string   `json:"field"`
	Source       string   `json:"source"`
	Confidence   float64  `json:"confidence"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// Fragment is the partial canonical record one adapter returns.
type Fragment struct {
	Source     string                   `json:"source"`
	Basic      Basic                    `json:"basic"`
	Experience []Experience             `json:"experience,omitempty"`
	Items      []Item                   `json:"items,omitempty"`
	Skills     []Skill                  `json:"skills,omitempty"`
	Sections   map[Section]Completeness `json:"sections,omitempty"`
	// FieldIndex holds the locator index that produced a field (0 = primary).
	FieldIndex map[string]int `json:"field_index,omitempty"`
}

// NewFragment returns a fragment with every section NotRetrieved.
func NewFragment(source string) Fragment {
	f := Fragment{Source: source, Sections: make(map[Section]Completeness, len(Sections)), FieldIndex: map[string]int{}}
	for _, s := range Sections {
		f.Sections[s] = NotRetrieved
	}
	return f
}

// Mark sets the completeness of a section.
func (f *Fragment) Mark(s Section, c Completeness) {
	if f.Sections == nil {
		f.Sections = map[Section]Completeness{}
	}
	f.Sections[s] = c
}

// Filled reports whether any section holds data.
func (f Fragment) Filled() bool {
	for _, c := range f.Sections {
		if c == Complete || c == Partial {
			return true
		}
	}
	return false
}

// ItemsOf returns the items of one kind, in order.
func (f Fragment) ItemsOf(kind ItemKind) []Item {
	var out []Item
	for _, it := range f.Items {
		if it.Kind == kind {
			out = append(out, it)
		}
	}
	return out
}

// CanonicalProfile is the merged output of a run.
type CanonicalProfile struct {
	Identity     Identity                 `json:"identity"`
	Basic        Basic                    `json:"basic"`
	Experience   []Experience             `json:"experience"`
	Items        []Item                   `json:"items"`
	Skills       []Skill                  `json:"skills"`
	Completeness map[Section]Completeness `json:"completeness"`
	Provenance   []FieldProvenance        `json:"provenance"`
	Reports      []SourceRunReport        `json:"reports"`
	Sources      []string                 `json:"sources"`
	GeneratedAt  time.Time                `json:"generated_at"`
}

// Report returns the report of source, if present.
func (p *CanonicalProfile) Report(source string) (SourceRunReport, bool) {
	for _, r := range p.Reports {
		if r.Source == source {
			return r, true
		}
	}
	return SourceRunReport{}, false
}
