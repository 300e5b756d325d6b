package aggregate

import (
	"slices"

	"github.com/hazyhaar/profilex/profile"
)

// Merged field names. Basic fields use their JSON names; list sections
// use their section names.
const (
	FieldName         = "name"
	FieldHeadline     = "headline"
	FieldLocation     = "location"
	FieldCompany      = "company"
	FieldWebsite      = "website"
	FieldAvatarURL    = "avatar_url"
	FieldFollowers    = "followers"
	FieldFollowing    = "following"
	FieldPublicRepos  = "public_repos"
	FieldJoined       = "joined"
	FieldExperience   = string(profile.SectionExperience)
	FieldRepositories = string(profile.SectionRepositories)
	FieldPosts        = string(profile.SectionPosts)
	FieldSkills       = string(profile.SectionSkills)
)

// PriorityTable maps a merged field to its sources, most authoritative
// first. Sources absent from an entry rank after the listed ones, in name
// order.
type PriorityTable map[string][]string

// DefaultPriority prefers the social network for identity and career
// fields and the code host for everything derived from code.
func DefaultPriority() PriorityTable {
	social := []string{profile.SourceLinkedIn, profile.SourceGitHub}
	code := []string{profile.SourceGitHub, profile.SourceLinkedIn}
	return PriorityTable{
		FieldName:         social,
		FieldHeadline:     social,
		FieldLocation:     code,
		FieldCompany:      code,
		FieldWebsite:      code,
		FieldAvatarURL:    code,
		FieldFollowers:    code,
		FieldFollowing:    code,
		FieldPublicRepos:  code,
		FieldJoined:       code,
		FieldExperience:   {profile.SourceLinkedIn},
		FieldPosts:        {profile.SourceLinkedIn},
		FieldRepositories: code,
		FieldSkills:       code,
	}
}

// Order returns sources ranked for field. Every source appears once.
func (t PriorityTable) Order(field string, sources []string) []string {
	rest := slices.Clone(sources)
	slices.Sort(rest)
	rest = slices.Compact(rest)

	out := make([]string, 0, len(rest))
	for _, s := range t[field] {
		if i := slices.Index(rest, s); i >= 0 {
			out = append(out, s)
			rest = slices.Delete(rest, i, i+1)
		}
	}
	return append(out, rest...)
}
