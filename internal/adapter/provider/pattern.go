package provider

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fairyhunter13/social-hunt/internal/adapter/httpclient"
	"github.com/fairyhunter13/social-hunt/internal/adapter/registry"
	"github.com/fairyhunter13/social-hunt/internal/domain"
)

// PatternProvider is the generic data-driven driver: it expands the URL
// template, issues the request under the rate limiter, classifies the
// response against the descriptor's patterns and extracts a profile.
type PatternProvider struct {
	spec *registry.Spec
	env  Env
}

// NewPattern builds the generic driver for a compiled descriptor.
func NewPattern(spec *registry.Spec, env Env) *PatternProvider {
	return &PatternProvider{spec: spec, env: env}
}

// Name implements domain.Provider.
func (p *PatternProvider) Name() string { return p.spec.Name }

// BuildURL implements domain.Provider.
func (p *PatternProvider) BuildURL(username string) string {
	return p.spec.ExpandURL(username)
}

// Check implements domain.Provider.
func (p *PatternProvider) Check(ctx context.Context, username string) domain.Result {
	start := time.Now()
	url := p.spec.ExpandURL(username)

	release, err := p.env.Limiter.Acquire(ctx, url)
	if err != nil {
		return errResult(p.spec.Name, username, url, start, err)
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, p.spec.Method, url, nil)
	if err != nil {
		return errResult(p.spec.Name, username, url, start, err)
	}
	for k, v := range p.spec.Headers {
		req.Header.Set(k, v)
	}
	httpclient.ApplyProfile(req, p.spec.UAProfile)

	client := p.env.Client.Client(p.spec.Timeout)
	resp, err := client.Do(req)
	if err != nil {
		return errResult(p.spec.Name, username, url, start, err)
	}
	body := readBody(resp, httpclient.MaxHTMLBody)

	// Redirects are followed up to the cap; the result records where the
	// chain landed, not the requested URL.
	finalURL := url
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	ext := ExtractHTML(body)
	status := Classify(p.spec, username, resp.StatusCode, string(body), ext.HasMetaTitle, nil)

	res := domain.Result{
		Provider:   p.spec.Name,
		Username:   username,
		URL:        finalURL,
		Status:     status,
		HTTPStatus: resp.StatusCode,
		ElapsedMS:  time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
	if status == domain.StatusBlocked && resp.StatusCode == http.StatusTooManyRequests {
		res.Error = "rate_limited"
	}

	// Profile extraction is best-effort and never changes the verdict.
	if (status == domain.StatusFound || status == domain.StatusUnknown) &&
		resp.StatusCode >= 200 && resp.StatusCode < 300 {
		res.Profile = ext.Profile
		// Free the slot first: the sibling fetch takes its own and a
		// concurrency cap of one would otherwise stall here.
		release()
		p.mergeJSONEndpoint(ctx, username, res.Profile)
	}
	if len(res.Profile) == 0 {
		res.Profile = nil
	}
	return res
}

// mergeJSONEndpoint fetches the provider-declared sibling JSON endpoint,
// when any, and unions its fields into the profile.
func (p *PatternProvider) mergeJSONEndpoint(ctx context.Context, username string, prof domain.Profile) {
	if p.spec.JSONEndpoint == "" {
		return
	}
	url := strings.ReplaceAll(p.spec.JSONEndpoint, "{username}", username)
	release, err := p.env.Limiter.Acquire(ctx, url)
	if err != nil {
		return
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return
	}
	req.Header.Set("Accept", "application/json")
	httpclient.ApplyProfile(req, p.spec.UAProfile)

	resp, err := p.env.Client.Client(p.spec.Timeout).Do(req)
	if err != nil {
		return
	}
	body := readBody(resp, httpclient.MaxJSONBody)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return
	}
	MergeJSONProfile(body, prof)
}
