// Package service runs extractions on behalf of the HTTP and MCP
// transports and archives each run.
package service

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/profilex/fault"
	"github.com/hazyhaar/profilex/history"
	"github.com/hazyhaar/profilex/kit"
	"github.com/hazyhaar/profilex/pipeline"
	"github.com/hazyhaar/profilex/profile"
)

// ExtractRequest names the person to extract.
type ExtractRequest struct {
	Name       string `json:"name"`
	ProfileURL string `json:"profile_url,omitempty"`
	Username   string `json:"username,omitempty"`
}

// Identity converts the request.
func (r ExtractRequest) Identity() profile.Identity {
	return profile.Identity{Name: r.Name, ProfileURL: r.ProfileURL, Username: r.Username}
}

// ExtractResponse carries the run outcome. Error holds the run error
// (timeout, cancellation) when a profile was still produced.
type ExtractResponse struct {
	RunID   string                   `json:"run_id"`
	Profile profile.CanonicalProfile `json:"profile"`
	Error   string                   `json:"error,omitempty"`
}

// Service couples a pipeline with an optional run archive.
type Service struct {
	pipe   *pipeline.Pipeline
	store  *history.Store
	logger *slog.Logger
}

// New creates a Service. store may be nil to disable archiving.
func New(pipe *pipeline.Pipeline, store *history.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{pipe: pipe, store: store, logger: logger}
}

// Extract runs the pipeline and archives the result. An invalid identity
// is returned as an ErrConfig error without running anything.
func (s *Service) Extract(ctx context.Context, req ExtractRequest) (ExtractResponse, error) {
	id := req.Identity()
	if err := id.Validate(); err != nil {
		return ExtractResponse{}, fault.Wrap(err, fault.ErrConfig, "service: extract")
	}
	runID := s.pipe.NewRunID()
	p, runErr := s.pipe.RunWithID(ctx, runID, id)
	resp := ExtractResponse{RunID: runID, Profile: p}
	if runErr != nil {
		resp.Error = runErr.Error()
	}
	if s.store != nil {
		// The archive write must not be lost to a cancelled request.
		if err := s.store.Save(context.WithoutCancel(ctx), runID, p, runErr); err != nil {
			s.logger.Warn("service: archive run", "run_id", runID, "error", err)
		}
	}
	return resp, nil
}

// Run returns an archived run.
func (s *Service) Run(ctx context.Context, runID string) (history.Run, error) {
	if s.store == nil {
		return history.Run{}, fault.New(fault.ErrNotFound, "service: history disabled")
	}
	return s.store.Get(ctx, runID)
}

// Runs lists archived runs, newest first.
func (s *Service) Runs(ctx context.Context, limit int) ([]history.Summary, error) {
	if s.store == nil {
		return []history.Summary{}, nil
	}
	return s.store.List(ctx, limit)
}

// ExtractEndpoint adapts Extract to a kit.Endpoint taking *ExtractRequest.
func (s *Service) ExtractEndpoint() kit.Endpoint {
	ep := func(ctx context.Context, req any) (any, error) {
		return s.Extract(ctx, *req.(*ExtractRequest))
	}
	return kit.Logging(s.logger, "extract")(ep)
}
