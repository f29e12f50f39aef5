package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fairyhunter13/social-hunt/internal/adapter/httpclient"
	"github.com/fairyhunter13/social-hunt/internal/domain"
)

// HIBPConfig carries the Have I Been Pwned credentials and policy.
type HIBPConfig struct {
	APIKey string
	// UserAgent is mandated by the HIBP acceptable-use policy.
	UserAgent string
	// AllowHandles also queries bare usernames. HIBP indexes mostly
	// email addresses, so this is off by default.
	AllowHandles bool
}

// HIBPProvider queries the Have I Been Pwned breach and paste indexes.
// Without an API key every query degrades to unknown rather than error,
// so a scan with no key configured stays quiet instead of noisy.
type HIBPProvider struct {
	cfg HIBPConfig
	env Env
}

// NewHIBP builds the hibp code driver.
func NewHIBP(cfg HIBPConfig, env Env) *HIBPProvider {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "social-hunt (HIBP)"
	}
	return &HIBPProvider{cfg: cfg, env: env}
}

// Name implements domain.Provider.
func (p *HIBPProvider) Name() string { return "hibp" }

// BuildURL implements domain.Provider.
func (p *HIBPProvider) BuildURL(username string) string {
	return "https://haveibeenpwned.com/account/" + url.PathEscape(username)
}

// Check implements domain.Provider.
func (p *HIBPProvider) Check(ctx context.Context, username string) domain.Result {
	start := time.Now()
	pageURL := p.BuildURL(username)

	res := domain.Result{
		Provider:  p.Name(),
		Username:  username,
		URL:       pageURL,
		Status:    domain.StatusUnknown,
		Timestamp: time.Now().UTC(),
	}
	if p.cfg.APIKey == "" {
		res.Error = "api key not configured"
		res.ElapsedMS = time.Since(start).Milliseconds()
		return res
	}
	isEmail := strings.Contains(username, "@")
	if !isEmail && !p.cfg.AllowHandles {
		res.Error = "non-email account skipped"
		res.ElapsedMS = time.Since(start).Milliseconds()
		return res
	}

	breaches, status, err := p.query(ctx, "breachedaccount", username)
	if err != nil {
		return errResult(p.Name(), username, pageURL, start, err)
	}
	res.HTTPStatus = status
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		res.Status = domain.StatusBlocked
		res.ElapsedMS = time.Since(start).Milliseconds()
		return res
	}

	var pastes []map[string]any
	if isEmail {
		// The paste index only accepts email addresses.
		pastes, _, _ = p.query(ctx, "pasteaccount", username)
	}

	if len(breaches) > 0 || len(pastes) > 0 {
		res.Status = domain.StatusFound
		prof := domain.Profile{
			"breach_count": len(breaches),
			"paste_count":  len(pastes),
		}
		var names []string
		for _, b := range breaches {
			if n, ok := b["Name"].(string); ok {
				names = append(names, n)
			}
		}
		if len(names) > 0 {
			prof["breaches"] = names
		}
		res.Profile = prof
	} else if status == http.StatusNotFound {
		res.Status = domain.StatusNotFound
	}
	res.ElapsedMS = time.Since(start).Milliseconds()
	return res
}

// query hits one HIBP v3 endpoint; a 404 means no records, not an error.
func (p *HIBPProvider) query(ctx context.Context, endpoint, account string) ([]map[string]any, int, error) {
	u := "https://haveibeenpwned.com/api/v3/" + endpoint + "/" + url.PathEscape(account)
	release, err := p.env.Limiter.Acquire(ctx, u)
	if err != nil {
		return nil, 0, err
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("hibp-api-key", p.cfg.APIKey)
	req.Header.Set("User-Agent", p.cfg.UserAgent)

	resp, err := p.env.Client.Client(httpclient.DefaultTimeout).Do(req)
	if err != nil {
		return nil, 0, err
	}
	body := readBody(resp, httpclient.MaxJSONBody)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, nil
	}
	var records []map[string]any
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, resp.StatusCode, nil
	}
	return records, resp.StatusCode, nil
}
