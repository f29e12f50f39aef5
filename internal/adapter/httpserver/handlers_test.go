package httpserver_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/social-hunt/internal/adapter/httpclient"
	httpserver "github.com/fairyhunter13/social-hunt/internal/adapter/httpserver"
	"github.com/fairyhunter13/social-hunt/internal/adapter/registry"
	"github.com/fairyhunter13/social-hunt/internal/adapter/repo/memory"
	"github.com/fairyhunter13/social-hunt/internal/config"
	"github.com/fairyhunter13/social-hunt/internal/domain"
	"github.com/fairyhunter13/social-hunt/internal/usecase"
)

type fixedProvider struct {
	name   string
	status domain.ResultStatus
}

func (f fixedProvider) Name() string             { return f.name }
func (f fixedProvider) BuildURL(u string) string { return "https://" + f.name + ".example/" + u }
func (f fixedProvider) Check(_ context.Context, username string) domain.Result {
	return domain.Result{
		Provider: f.name, Username: username, URL: f.BuildURL(username),
		Status: f.status, Timestamp: time.Now().UTC(),
	}
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	reg := registry.New(nil, nil, slog.Default())
	reg.Register("alpha", func(*registry.Spec) domain.Provider {
		return fixedProvider{name: "alpha", status: domain.StatusFound}
	})
	reg.Register("beta", func(*registry.Spec) domain.Provider {
		return fixedProvider{name: "beta", status: domain.StatusNotFound}
	})
	require.NoError(t, reg.Load())

	factory, err := httpclient.New("")
	require.NoError(t, err)
	store := memory.NewJobsRepo(16, time.Hour)
	scans := usecase.NewScanService(reg, store, factory, nil, nil, usecase.ScanConfig{
		MaxConcurrency: 4,
		JobDeadline:    10 * time.Second,
		AvatarMaxBytes: 4 << 20,
	}, slog.Default())

	srv := httpserver.NewServer(config.Config{AppEnv: "dev"}, scans, reg)
	r := chi.NewRouter()
	r.Post("/v1/scans", srv.SubmitScanHandler())
	r.Get("/v1/jobs/{id}", srv.JobHandler())
	r.Post("/v1/jobs/{id}/cancel", srv.CancelJobHandler())
	r.Get("/v1/providers", srv.ProvidersHandler())
	r.Post("/v1/reverse_image_links", srv.ReverseImageLinksHandler())
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSubmitAndPollScan(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/scans", `{"username":"alice"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var submitResp struct {
		JobID string `json:"job_id"`
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitResp))
	require.NotEmpty(t, submitResp.JobID)
	require.Equal(t, "pending", submitResp.State)

	var job domain.Job
	require.Eventually(t, func() bool {
		pw := doJSON(t, router, http.MethodGet, "/v1/jobs/"+submitResp.JobID, "")
		if pw.Code != http.StatusOK {
			return false
		}
		require.NoError(t, json.Unmarshal(pw.Body.Bytes(), &job))
		return job.State.Terminal()
	}, 5*time.Second, 20*time.Millisecond)

	require.Equal(t, domain.JobDone, job.State)
	require.Equal(t, 2, job.ProvidersCount)
	require.Equal(t, 2, job.ResultsCount)
	require.Equal(t, 1, job.FoundCount)
}

func TestSubmitScanValidation(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/scans", `{"username":""}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/scans", `{not json`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	// whitespace-only usernames survive struct validation but fail sanitization
	w = doJSON(t, router, http.MethodPost, "/v1/scans", `{"username":"   "}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.Equal(t, "INVALID_ARGUMENT", env.Error.Code)
}

func TestSubmitWithReferencesNoEngine(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)

	// reference images are accepted without a face engine; face_match
	// marks results instead of rejecting the scan
	ref := base64.StdEncoding.EncodeToString([]byte("reference-image-bytes"))
	w := doJSON(t, router, http.MethodPost, "/v1/scans",
		`{"username":"alice","reference_images":["`+ref+`"]}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var submitResp struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitResp))
	var job domain.Job
	require.Eventually(t, func() bool {
		pw := doJSON(t, router, http.MethodGet, "/v1/jobs/"+submitResp.JobID, "")
		if pw.Code != http.StatusOK {
			return false
		}
		require.NoError(t, json.Unmarshal(pw.Body.Bytes(), &job))
		return job.State.Terminal()
	}, 5*time.Second, 20*time.Millisecond)
	require.Equal(t, domain.JobDone, job.State)

	// undecodable payloads are still rejected up front
	w = doJSON(t, router, http.MethodPost, "/v1/scans",
		`{"username":"alice","reference_images":["%%%not-base64%%%"]}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJobNotFound(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/v1/jobs/nope", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestJobLimitValidation(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/scans", `{"username":"alice"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var submitResp struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &submitResp))

	w = doJSON(t, router, http.MethodGet, "/v1/jobs/"+submitResp.JobID+"?limit=abc", "")
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/jobs/"+submitResp.JobID+"?limit=0", "")
	require.Equal(t, http.StatusOK, w.Code)
	var job domain.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	require.Empty(t, job.Results)
}

func TestProvidersListing(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)
	w := doJSON(t, router, http.MethodGet, "/v1/providers", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Providers []struct {
			Name       string `json:"name"`
			URLPattern string `json:"url_pattern"`
		} `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Providers, 2)
	require.Equal(t, "alpha", resp.Providers[0].Name)
	require.Contains(t, resp.Providers[0].URLPattern, "{username}")
}

func TestReverseImageLinksEndpoint(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/v1/reverse_image_links", `{"image_url":"https://cdn.example.com/a.png"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Links []struct {
			Engine string `json:"engine"`
			URL    string `json:"url"`
		} `json:"links"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Links, 5)

	w = doJSON(t, router, http.MethodPost, "/v1/reverse_image_links", `{"image_url":"ftp://nope"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelEndpoint(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)
	w := doJSON(t, router, http.MethodPost, "/v1/jobs/missing/cancel", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestNotAcceptable(t *testing.T) {
	t.Parallel()
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/providers", nil)
	req.Header.Set("Accept", "text/xml")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotAcceptable, w.Code)
}
