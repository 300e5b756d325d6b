package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/profilex/fault"
	"github.com/hazyhaar/profilex/internal/dbopen"
	"github.com/hazyhaar/profilex/profile"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(dbopen.OpenMemory(t))
	require.NoError(t, err)
	return s
}

func sample(name string) profile.CanonicalProfile {
	return profile.CanonicalProfile{
		Identity: profile.Identity{Name: name, Username: "ada"},
		Basic:    profile.Basic{Name: "Ada Lovelace"},
		Sources:  []string{"github"},
		Reports: []profile.SourceRunReport{
			{Source: "github", Status: profile.StatusSuccess},
			{Source: "linkedin", Status: profile.StatusFailed},
		},
		GeneratedAt: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSaveGet_RoundTrip(t *testing.T) {
	s := testStore(t)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return at }
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, "run_1", sample("Ada"), fault.New(fault.ErrTimeout, "run exceeded 5m")))

	run, err := s.Get(ctx, "run_1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", run.Profile.Basic.Name)
	assert.Contains(t, run.Error, "run exceeded")
	assert.Equal(t, at, run.CreatedAt)
	assert.Equal(t, sample("Ada").Reports, run.Profile.Reports)
}

func TestGet_NotFound(t *testing.T) {
	_, err := testStore(t).Get(context.Background(), "run_missing")
	assert.True(t, fault.Is(err, fault.ErrNotFound))
}

func TestSave_DuplicateID(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, "run_1", sample("Ada"), nil))
	assert.Error(t, s.Save(ctx, "run_1", sample("Ada"), nil))
}

func TestList_NewestFirst(t *testing.T) {
	// WHAT: Three runs saved a minute apart, listed with limit 2.
	// WHY: Listing comes from indexed columns, newest first, and reports
	// which sources failed without decoding the stored profile.
	s := testStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"run_a", "run_b", "run_c"} {
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		var runErr error
		if id == "run_c" {
			runErr = errors.New("cancelled")
		}
		require.NoError(t, s.Save(ctx, id, sample("Ada"), runErr))
	}

	got, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "run_c", got[0].ID)
	assert.Equal(t, "cancelled", got[0].Error)
	assert.Equal(t, "run_b", got[1].ID)
	assert.Equal(t, []string{"github"}, got[1].Sources)
	assert.Equal(t, []string{"linkedin"}, got[1].Failed)
	assert.Equal(t, "ada", got[1].Identity.Username)
}

func TestOpen_File(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "data", "runs.db"))
	require.NoError(t, err)
	defer s.Close()
	got, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}
