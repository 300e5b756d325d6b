package aggregate

import (
	"math"
	"slices"
	"strings"
	"time"

	"github.com/hazyhaar/profilex/profile"
)

// basicField names one Basic field with its presence test and setter.
type basicField struct {
	name string
	has  func(profile.Basic) bool
	set  func(dst *profile.Basic, src profile.Basic)
}

var basicFields = []basicField{
	{FieldName, func(b profile.Basic) bool { return b.Name != "" }, func(d *profile.Basic, s profile.Basic) { d.Name = s.Name }},
	{FieldHeadline, func(b profile.Basic) bool { return b.Headline != "" }, func(d *profile.Basic, s profile.Basic) { d.Headline = s.Headline }},
	{FieldLocation, func(b profile.Basic) bool { return b.Location != "" }, func(d *profile.Basic, s profile.Basic) { d.Location = s.Location }},
	{FieldCompany, func(b profile.Basic) bool { return b.Company != "" }, func(d *profile.Basic, s profile.Basic) { d.Company = s.Company }},
	{FieldWebsite, func(b profile.Basic) bool { return b.Website != "" }, func(d *profile.Basic, s profile.Basic) { d.Website = s.Website }},
	{FieldAvatarURL, func(b profile.Basic) bool { return b.AvatarURL != "" }, func(d *profile.Basic, s profile.Basic) { d.AvatarURL = s.AvatarURL }},
	{FieldFollowers, func(b profile.Basic) bool { return b.Followers != 0 }, func(d *profile.Basic, s profile.Basic) { d.Followers = s.Followers }},
	{FieldFollowing, func(b profile.Basic) bool { return b.Following != 0 }, func(d *profile.Basic, s profile.Basic) { d.Following = s.Following }},
	{FieldPublicRepos, func(b profile.Basic) bool { return b.PublicRepos != 0 }, func(d *profile.Basic, s profile.Basic) { d.PublicRepos = s.PublicRepos }},
	{FieldJoined, func(b profile.Basic) bool { return b.Joined != "" }, func(d *profile.Basic, s profile.Basic) { d.Joined = s.Joined }},
}

// Merge builds the canonical profile from outcomes. It is pure: the same
// inputs always produce the same profile.
func Merge(id profile.Identity, outcomes []Outcome, table PriorityTable, now time.Time) profile.CanonicalProfile {
	if table == nil {
		table = DefaultPriority()
	}
	frags := make(map[string]profile.Fragment, len(outcomes))
	names := make([]string, 0, len(outcomes))
	out := profile.CanonicalProfile{
		Identity:     id,
		Experience:   []profile.Experience{},
		Items:        []profile.Item{},
		Skills:       []profile.Skill{},
		Completeness: make(map[profile.Section]profile.Completeness, len(profile.Sections)),
		Provenance:   []profile.FieldProvenance{},
		Reports:      make([]profile.SourceRunReport, 0, len(outcomes)),
		Sources:      []string{},
		GeneratedAt:  now.UTC(),
	}
	for _, o := range outcomes {
		out.Reports = append(out.Reports, o.Report)
		frags[o.Fragment.Source] = o.Fragment
		names = append(names, o.Fragment.Source)
		if o.Fragment.Filled() {
			out.Sources = append(out.Sources, o.Fragment.Source)
		}
	}
	slices.SortStableFunc(out.Reports, func(a, b profile.SourceRunReport) int { return strings.Compare(a.Source, b.Source) })
	slices.Sort(out.Sources)

	m := merger{table: table, frags: frags, names: names, out: &out}
	m.basic()
	m.lists()
	return out
}

type merger struct {
	table PriorityTable
	frags map[string]profile.Fragment
	names []string
	out   *profile.CanonicalProfile
}

// holds reports whether a fragment's section carries data.
func holds(f profile.Fragment, s profile.Section) bool {
	c := f.Sections[s]
	return c == profile.Complete || c == profile.Partial
}

func (m *merger) basic() {
	for _, bf := range basicFields {
		order := m.table.Order(bf.name, m.names)
		var (
			chosen string
			alts   []string
		)
		for _, src := range order {
			f := m.frags[src]
			if !holds(f, profile.SectionBasic) {
				continue
			}
			if !bf.has(f.Basic) {
				continue
			}
			if chosen == "" {
				chosen = src
				bf.set(&m.out.Basic, f.Basic)
				continue
			}
			alts = append(alts, src)
		}
		if chosen != "" {
			m.provenance(bf.name, chosen, order, alts)
		}
	}
	m.out.Completeness[profile.SectionBasic] = m.best(profile.SectionBasic)
}

func (m *merger) lists() {
	for _, sec := range []profile.Section{profile.SectionExperience, profile.SectionRepositories, profile.SectionPosts, profile.SectionSkills} {
		field := string(sec)
		order := m.table.Order(field, m.names)
		var (
			chosen string
			alts   []string
		)
		for _, src := range order {
			f := m.frags[src]
			if !holds(f, sec) {
				continue
			}
			if chosen == "" {
				chosen = src
				continue
			}
			alts = append(alts, src)
		}
		if chosen == "" {
			m.out.Completeness[sec] = m.best(sec)
			continue
		}
		f := m.frags[chosen]
		switch sec {
		case profile.SectionExperience:
			m.out.Experience = append(m.out.Experience, f.Experience...)
		case profile.SectionRepositories:
			m.out.Items = append(m.out.Items, f.ItemsOf(profile.KindRepository)...)
		case profile.SectionPosts:
			m.out.Items = append(m.out.Items, f.ItemsOf(profile.KindPost)...)
		case profile.SectionSkills:
			m.out.Skills = append(m.out.Skills, f.Skills...)
		}
		m.out.Completeness[sec] = f.Sections[sec]
		m.provenance(field, chosen, order, alts)
	}
}

// best is the most informative completeness any source reached for s.
func (m *merger) best(s profile.Section) profile.Completeness {
	c := profile.NotRetrieved
	for _, name := range m.names {
		if v, ok := m.frags[name].Sections[s]; ok && v.Better(c) {
			c = v
		}
	}
	return c
}

func (m *merger) provenance(field, chosen string, order, alts []string) {
	m.out.Provenance = append(m.out.Provenance, profile.FieldProvenance{
		Field:        field,
		Source:       chosen,
		Confidence:   confidence(m.frags[chosen].FieldIndex[field], chosen != order[0]),
		Alternatives: alts,
	})
}

// confidence is 1.0 for a primary locator, minus 0.1 per fallback index
// down to 0.5, times 0.8 when a higher-priority source had nothing.
func confidence(index int, fallbackSource bool) float64 {
	c := max(1.0-0.1*float64(index), 0.5)
	if fallbackSource {
		c *= 0.8
	}
	return math.Round(c*100) / 100
}
