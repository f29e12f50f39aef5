package httpserver

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/social-hunt/internal/adapter/registry"
	"github.com/fairyhunter13/social-hunt/internal/config"
	"github.com/fairyhunter13/social-hunt/internal/domain"
	"github.com/fairyhunter13/social-hunt/internal/usecase"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg   config.Config
	Scans *usecase.ScanService
	Reg   *registry.Registry
}

// NewServer constructs the HTTP server with all handlers wired.
func NewServer(cfg config.Config, scans *usecase.ScanService, reg *registry.Registry) *Server {
	return &Server{Cfg: cfg, Scans: scans, Reg: reg}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// acceptsJSON rejects requests that explicitly refuse JSON responses.
func acceptsJSON(w http.ResponseWriter, r *http.Request) bool {
	if a := r.Header.Get("Accept"); a != "" && a != "*/*" && !strings.Contains(a, "application/json") {
		writeJSON(w, http.StatusNotAcceptable, errorEnvelope{Error: apiError{
			Code: "INVALID_ARGUMENT", Message: "not acceptable", Details: map[string]any{"accept": a},
		}})
		return false
	}
	return true
}

// SubmitScanHandler accepts a scan request and returns the job id.
func (s *Server) SubmitScanHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		// Cap body size; reference images dominate the payload.
		r.Body = http.MaxBytesReader(w, r.Body, 32<<20)
		var req struct {
			Username        string   `json:"username" validate:"required,max=64"`
			Providers       []string `json:"providers" validate:"max=128,dive,max=64"`
			ReferenceImages []string `json:"reference_images" validate:"max=8"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}

		opts := usecase.ScanOptions{Providers: req.Providers}
		if len(req.ReferenceImages) > 0 {
			images, err := decodeReferenceImages(req.ReferenceImages)
			if err != nil {
				writeError(w, r, err, nil)
				return
			}
			refs, err := s.Scans.ReferenceDescriptors(r.Context(), images)
			if err != nil {
				writeError(w, r, err, nil)
				return
			}
			opts.FaceMatch = true
			opts.FaceRefs = refs
		}

		id, err := s.Scans.Submit(r.Context(), req.Username, opts)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id, "state": string(domain.JobPending)})
	}
}

// JobHandler returns job state plus settled results; partial while running.
func (s *Server) JobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		id := chi.URLParam(r, "id")
		if id == "" {
			writeError(w, r, fmt.Errorf("%w: id missing", domain.ErrInvalidArgument), nil)
			return
		}
		limit := -1
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, r, fmt.Errorf("%w: limit must be a non-negative integer", domain.ErrInvalidArgument), nil)
				return
			}
			limit = n
		}
		job, err := s.Scans.Get(id, limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, job)
	}
}

// CancelJobHandler stops a running job, keeping settled results.
func (s *Server) CancelJobHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		id := chi.URLParam(r, "id")
		if id == "" {
			writeError(w, r, fmt.Errorf("%w: id missing", domain.ErrInvalidArgument), nil)
			return
		}
		if err := s.Scans.Cancel(id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"job_id": id, "state": "cancelling"})
	}
}

// ProvidersHandler lists registered providers in registry order.
func (s *Server) ProvidersHandler() http.HandlerFunc {
	type entry struct {
		Name       string `json:"name"`
		URLPattern string `json:"url_pattern"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		providers := s.Reg.Providers()
		out := make([]entry, 0, len(providers))
		for _, p := range providers {
			out = append(out, entry{Name: p.Name(), URLPattern: p.BuildURL("{username}")})
		}
		writeJSON(w, http.StatusOK, map[string]any{"providers": out})
	}
}

// ReverseImageLinksHandler expands an image URL into reverse-search links.
func (s *Server) ReverseImageLinksHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !acceptsJSON(w, r) {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req struct {
			ImageURL string `json:"image_url" validate:"required,max=2048"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), validationDetails(err))
			return
		}
		links, err := usecase.ReverseImageLinks(req.ImageURL)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"links": links})
	}
}

func decodeReferenceImages(encoded []string) ([][]byte, error) {
	out := make([][]byte, 0, len(encoded))
	for i, e := range encoded {
		// Tolerate data-URL prefixes from browser clients.
		if idx := strings.Index(e, ";base64,"); idx >= 0 {
			e = e[idx+len(";base64,"):]
		}
		b, err := base64.StdEncoding.DecodeString(e)
		if err != nil {
			return nil, fmt.Errorf("%w: reference_images[%d] is not base64", domain.ErrInvalidArgument, i)
		}
		out = append(out, b)
	}
	return out, nil
}
