// Package provider implements the probe drivers: the generic data-driven
// driver built from a YAML descriptor, a handful of bespoke code drivers,
// and the shared classifier and profile extractor they use.
package provider

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/fairyhunter13/social-hunt/internal/adapter/httpclient"
	"github.com/fairyhunter13/social-hunt/internal/adapter/observability"
	"github.com/fairyhunter13/social-hunt/internal/domain"
	"github.com/fairyhunter13/social-hunt/internal/service/ratelimiter"
)

// Env bundles the shared collaborators every driver needs.
type Env struct {
	Client  *httpclient.Factory
	Limiter *ratelimiter.Limiter
	Log     *slog.Logger
}

// Guard wraps a provider so a panicking driver yields an error Result
// instead of aborting the job.
func Guard(p domain.Provider) domain.Provider { return guarded{p} }

type guarded struct{ inner domain.Provider }

func (g guarded) Name() string                    { return g.inner.Name() }
func (g guarded) BuildURL(username string) string { return g.inner.BuildURL(username) }

func (g guarded) Check(ctx context.Context, username string) (res domain.Result) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("provider panic recovered",
				slog.String("provider", g.inner.Name()), slog.Any("recover", rec),
				slog.String("stack", string(debug.Stack())))
			res = domain.Result{
				Provider:  g.inner.Name(),
				Username:  username,
				URL:       g.inner.BuildURL(username),
				Status:    domain.StatusError,
				ElapsedMS: time.Since(start).Milliseconds(),
				Error:     "driver panic",
				Timestamp: time.Now().UTC(),
			}
		}
		observability.ProviderChecksTotal.WithLabelValues(g.inner.Name(), string(res.Status)).Inc()
		observability.ProviderCheckDuration.WithLabelValues(g.inner.Name()).Observe(time.Since(start).Seconds())
	}()
	return g.inner.Check(ctx, username)
}

// errResult builds a transport-error Result with a short human message.
func errResult(name, username, url string, start time.Time, err error) domain.Result {
	msg := "request failed"
	if err != nil {
		msg = err.Error()
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}
	return domain.Result{
		Provider:  name,
		Username:  username,
		URL:       url,
		Status:    domain.StatusError,
		ElapsedMS: time.Since(start).Milliseconds(),
		Error:     msg,
		Timestamp: time.Now().UTC(),
	}
}

// readBody drains up to cap bytes and closes the response body.
func readBody(resp *http.Response, capBytes int64) []byte {
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, capBytes))
	return b
}
