// Package server exposes extraction and the run archive over HTTP.
//
//	POST /v1/extract       {"name":..., "profile_url":..., "username":...}
//	GET  /v1/runs?limit=N
//	GET  /v1/runs/{runID}
//	GET  /health
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/profilex/fault"
	"github.com/hazyhaar/profilex/kit"
	"github.com/hazyhaar/profilex/service"
)

const maxBodyBytes = 64 << 10

// New returns the router.
func New(svc *service.Service, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{svc: svc, extract: svc.ExtractEndpoint(), logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID, apiHeaders, maxBody(maxBodyBytes))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/v1", func(r chi.Router) {
		r.Post("/extract", h.handleExtract)
		r.Get("/runs", h.handleList)
		r.Get("/runs/{runID}", h.handleGet)
	})
	return r
}

type handlers struct {
	svc     *service.Service
	extract kit.Endpoint
	logger  *slog.Logger
}

func (h *handlers) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req service.ExtractRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	resp, err := h.extract(r.Context(), &req)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	runs, err := h.svc.Runs(r.Context(), limit)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *handlers) handleGet(w http.ResponseWriter, r *http.Request) {
	run, err := h.svc.Run(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeFault(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case fault.Is(err, fault.ErrConfig):
		status = http.StatusBadRequest
	case fault.Is(err, fault.ErrNotFound):
		status = http.StatusNotFound
	case fault.Is(err, fault.ErrTimeout):
		status = http.StatusGatewayTimeout
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": string(fault.KindOf(err))})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Server returns an http.Server with timeouts sized for long extractions.
func Server(addr string, h http.Handler, runTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      runTimeout + 30*time.Second,
	}
}
