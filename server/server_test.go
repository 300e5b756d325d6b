package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/profilex/history"
	"github.com/hazyhaar/profilex/idgen"
	"github.com/hazyhaar/profilex/internal/dbopen"
	"github.com/hazyhaar/profilex/pipeline"
	"github.com/hazyhaar/profilex/profile"
	"github.com/hazyhaar/profilex/service"
)

type nameAdapter struct{}

func (nameAdapter) Name() string                     { return "fixed" }
func (nameAdapter) Applicable(profile.Identity) bool { return true }
func (nameAdapter) FetchProfile(_ context.Context, id profile.Identity) (profile.Fragment, profile.SourceRunReport) {
	f := profile.NewFragment("fixed")
	f.Basic.Name = id.Name + " Lovelace"
	f.Mark(profile.SectionBasic, profile.Complete)
	return f, profile.SourceRunReport{Source: "fixed", Status: profile.StatusSuccess}
}

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	p, err := pipeline.New(pipeline.Config{Logger: log}, pipeline.WithAdapters(nameAdapter{}), pipeline.WithIDs(idgen.Sequence("run")))
	require.NoError(t, err)
	store, err := history.New(dbopen.OpenMemory(t))
	require.NoError(t, err)
	srv := httptest.NewServer(New(service.New(p, store, log), log))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestExtractThenFetchRun(t *testing.T) {
	srv := testServer(t)

	resp := post(t, srv.URL+"/v1/extract", `{"name":"Ada"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	var out service.ExtractResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "run-1", out.RunID)
	assert.Equal(t, "Ada Lovelace", out.Profile.Basic.Name)

	resp = get(t, srv.URL+"/v1/runs/run-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var run history.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	assert.Equal(t, "Ada Lovelace", run.Profile.Basic.Name)

	resp = get(t, srv.URL+"/v1/runs?limit=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Runs []history.Summary `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, "Ada", list.Runs[0].Identity.Name)
}

func TestErrors(t *testing.T) {
	srv := testServer(t)
	cases := []struct {
		name   string
		resp   func() *http.Response
		status int
	}{
		{"empty identity", func() *http.Response { return post(t, srv.URL+"/v1/extract", `{}`) }, http.StatusBadRequest},
		{"bad json", func() *http.Response { return post(t, srv.URL+"/v1/extract", `{"name":`) }, http.StatusBadRequest},
		{"unknown field", func() *http.Response { return post(t, srv.URL+"/v1/extract", `{"nom":"Ada"}`) }, http.StatusBadRequest},
		{"unknown run", func() *http.Response { return get(t, srv.URL+"/v1/runs/run_nope") }, http.StatusNotFound},
		{"bad limit", func() *http.Response { return get(t, srv.URL+"/v1/runs?limit=x") }, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.status, tc.resp().StatusCode)
		})
	}
}

func TestRequestIDEchoed(t *testing.T) {
	srv := testServer(t)
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "req_given")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "req_given", resp.Header.Get("X-Request-ID"))
}

func TestAPIHeadersAndBodyLimit(t *testing.T) {
	srv := testServer(t)

	resp := get(t, srv.URL+"/health")
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	big := `{"name":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	resp = post(t, srv.URL+"/v1/extract", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}
