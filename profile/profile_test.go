package profile

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity_Validate(t *testing.T) {
	assert.Error(t, Identity{Name: "   "}.Validate())
	assert.NoError(t, Identity{Name: "Ada"}.Validate())
	assert.NoError(t, Identity{Username: "ada"}.Validate())
	assert.NoError(t, Identity{ProfileURL: "https://www.linkedin.com/in/ada"}.Validate())
}

func TestIdentity_Handle(t *testing.T) {
	id := Identity{Name: "Ada", ProfileURL: "https://www.linkedin.com/in/ada", Username: "ada"}
	assert.Equal(t, id.ProfileURL, id.Handle(SourceLinkedIn))
	assert.Equal(t, "ada", id.Handle(SourceGitHub))
	assert.Empty(t, id.Handle("myspace"))
}

func TestCompleteness_Better(t *testing.T) {
	// WHAT: The merge order is complete, partial, absent, unavailable,
	// not retrieved.
	// WHY: A confirmed absence carries more information than an error.
	order := []Completeness{Complete, Partial, Absent, Unavailable, NotRetrieved}
	for i := range order {
		for j := range order {
			assert.Equal(t, i < j, order[i].Better(order[j]), "%s vs %s", order[i], order[j])
		}
	}
	assert.False(t, Completeness("bogus").Better(NotRetrieved))
}

func TestFragment_Filled(t *testing.T) {
	f := NewFragment("x")
	assert.False(t, f.Filled())
	for _, s := range Sections {
		assert.Equal(t, NotRetrieved, f.Sections[s])
	}
	f.Mark(SectionPosts, Absent)
	f.Mark(SectionBasic, Unavailable)
	assert.False(t, f.Filled(), "absence and errors hold no data")
	f.Mark(SectionSkills, Partial)
	assert.True(t, f.Filled())

	var zero Fragment
	zero.Mark(SectionBasic, Complete)
	assert.True(t, zero.Filled())
}

func TestFragment_ItemsOf(t *testing.T) {
	f := Fragment{Items: []Item{
		{Kind: KindPost, Text: "a"},
		{Kind: KindRepository, Title: "r"},
		{Kind: KindPost, Text: "b"},
	}}
	posts := f.ItemsOf(KindPost)
	require.Len(t, posts, 2)
	assert.Equal(t, "b", posts[1].Text)
}

func TestReport_JSONOmitsZeroReset(t *testing.T) {
	b, err := json.Marshal(SourceRunReport{Source: "github", Status: StatusPartial, RateLimit: &RateLimitState{Limited: true}})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "reset")
	assert.True(t, SourceRunReport{Status: StatusFailed}.Failed())
}
