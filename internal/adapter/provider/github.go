package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fairyhunter13/social-hunt/internal/adapter/httpclient"
	"github.com/fairyhunter13/social-hunt/internal/domain"
)

// GitHubProvider probes the public GitHub REST API, which for public
// profiles returns avatar_url, followers, following, created_at and bio.
type GitHubProvider struct {
	env Env
}

// NewGitHub builds the github code driver.
func NewGitHub(env Env) *GitHubProvider { return &GitHubProvider{env: env} }

// Name implements domain.Provider.
func (p *GitHubProvider) Name() string { return "github" }

// BuildURL implements domain.Provider. The reported URL is the human
// profile page, not the API endpoint.
func (p *GitHubProvider) BuildURL(username string) string {
	return "https://github.com/" + username
}

// Check implements domain.Provider.
func (p *GitHubProvider) Check(ctx context.Context, username string) domain.Result {
	start := time.Now()
	pageURL := p.BuildURL(username)
	apiURL := "https://api.github.com/users/" + username

	release, err := p.env.Limiter.Acquire(ctx, apiURL)
	if err != nil {
		return errResult(p.Name(), username, pageURL, start, err)
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return errResult(p.Name(), username, pageURL, start, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	httpclient.ApplyProfile(req, "desktop_chrome")

	resp, err := p.env.Client.Client(httpclient.DefaultTimeout).Do(req)
	if err != nil {
		return errResult(p.Name(), username, pageURL, start, err)
	}
	body := readBody(resp, httpclient.MaxJSONBody)

	res := domain.Result{
		Provider:   p.Name(),
		Username:   username,
		URL:        pageURL,
		HTTPStatus: resp.StatusCode,
		ElapsedMS:  time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		res.Status = domain.StatusNotFound
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		// Usually the unauthenticated rate limit.
		res.Status = domain.StatusBlocked
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		res.Status = domain.StatusUnknown
	default:
		res.Status = domain.StatusFound
		var u struct {
			Login     string `json:"login"`
			Name      string `json:"name"`
			AvatarURL string `json:"avatar_url"`
			Followers int64  `json:"followers"`
			Following int64  `json:"following"`
			CreatedAt string `json:"created_at"`
			Bio       string `json:"bio"`
			Location  string `json:"location"`
			Blog      string `json:"blog"`
		}
		if err := json.Unmarshal(body, &u); err == nil {
			prof := domain.Profile{}
			prof.SetDefault("display_name", firstNonEmpty(u.Name, u.Login))
			prof.SetDefault("avatar_url", u.AvatarURL)
			prof["followers"] = u.Followers
			prof["following"] = u.Following
			prof.SetDefault("created_at", u.CreatedAt)
			prof.SetDefault("bio", u.Bio)
			prof.SetDefault("location", u.Location)
			prof.SetDefault("blog", u.Blog)
			res.Profile = prof
		}
	}
	return res
}
