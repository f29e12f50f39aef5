package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/social-hunt/internal/adapter/httpclient"
	"github.com/fairyhunter13/social-hunt/internal/domain"
)

const breachVIPEndpoint = "https://breach.vip/api/search"

// breachVIPMaxSamples caps the number of redacted sample records copied
// into the profile.
const breachVIPMaxSamples = 5

// BreachVIPProvider queries the breach.vip aggregated leak index. The
// endpoint is flaky under load, so transient failures are retried on a
// short backoff ladder before giving up.
type BreachVIPProvider struct {
	env Env
}

// NewBreachVIP builds the breach.vip code driver.
func NewBreachVIP(env Env) *BreachVIPProvider { return &BreachVIPProvider{env: env} }

// Name implements domain.Provider.
func (p *BreachVIPProvider) Name() string { return "breach_vip" }

// BuildURL implements domain.Provider.
func (p *BreachVIPProvider) BuildURL(string) string { return breachVIPEndpoint }

// Check implements domain.Provider.
func (p *BreachVIPProvider) Check(ctx context.Context, username string) domain.Result {
	start := time.Now()

	release, err := p.env.Limiter.Acquire(ctx, breachVIPEndpoint)
	if err != nil {
		return errResult(p.Name(), username, breachVIPEndpoint, start, err)
	}
	defer release()

	payload, _ := json.Marshal(map[string]any{
		"term":           username,
		"fields":         []string{"username", "email"},
		"categories":     []string{},
		"wildcard":       false,
		"case_sensitive": false,
	})

	var (
		lastStatus int
		body       []byte
	)
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, breachVIPEndpoint, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		httpclient.ApplyProfile(req, "desktop_chrome")

		resp, err := p.env.Client.Client(httpclient.DefaultTimeout).Do(req)
		if err != nil {
			return err
		}
		body = readBody(resp, httpclient.MaxJSONBody)
		lastStatus = resp.StatusCode
		if resp.StatusCode >= 500 {
			return fmt.Errorf("server error %d", resp.StatusCode)
		}
		return nil
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(breachVIPBackOff(), 2), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return errResult(p.Name(), username, breachVIPEndpoint, start, err)
	}

	res := domain.Result{
		Provider:   p.Name(),
		Username:   username,
		URL:        breachVIPEndpoint,
		HTTPStatus: lastStatus,
		ElapsedMS:  time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}

	switch {
	case lastStatus == http.StatusForbidden || lastStatus == http.StatusTooManyRequests:
		res.Status = domain.StatusBlocked
		return res
	case lastStatus < 200 || lastStatus >= 300:
		res.Status = domain.StatusUnknown
		return res
	}

	records := breachVIPRecords(body)
	if len(records) == 0 {
		res.Status = domain.StatusNotFound
		return res
	}

	res.Status = domain.StatusFound
	sources := map[string]struct{}{}
	var sourceList []string
	var samples []map[string]any
	for _, r := range records {
		for _, key := range []string{"source", "database", "breach"} {
			if s, ok := r[key].(string); ok && s != "" {
				if _, seen := sources[s]; !seen {
					sources[s] = struct{}{}
					sourceList = append(sourceList, s)
				}
				break
			}
		}
		if len(samples) < breachVIPMaxSamples {
			samples = append(samples, r)
		}
	}
	prof := domain.Profile{"breach_count": len(records)}
	if len(sourceList) > 0 {
		prof["breach_sources"] = sourceList
	}
	if len(samples) > 0 {
		prof["sample_records"] = samples
	}
	res.Profile = prof
	return res
}

// breachVIPBackOff bounds the retry ladder so the whole check stays
// within twice the per-request timeout.
func breachVIPBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = 2 * httpclient.DefaultTimeout
	return bo
}

// breachVIPRecords tolerates the endpoint's shifting response envelope:
// a bare array, {"results": [...]} or {"data": [...]}.
func breachVIPRecords(body []byte) []map[string]any {
	coerce := func(v any) []map[string]any {
		list, ok := v.([]any)
		if !ok {
			return nil
		}
		var out []map[string]any
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}

	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil
	}
	if recs := coerce(root); recs != nil {
		return recs
	}
	if m, ok := root.(map[string]any); ok {
		for _, key := range []string{"results", "data"} {
			if recs := coerce(m[key]); recs != nil {
				return recs
			}
		}
	}
	return nil
}
