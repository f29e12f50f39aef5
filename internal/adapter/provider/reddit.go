package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fairyhunter13/social-hunt/internal/adapter/httpclient"
	"github.com/fairyhunter13/social-hunt/internal/domain"
)

// redditUA is a descriptive UA; reddit throttles browser-looking
// clients on the JSON endpoints far more aggressively.
const redditUA = "social-hunt/2.0 (OSINT research)"

// RedditProvider probes the public about.json endpoint for a user.
type RedditProvider struct {
	env Env
}

// NewReddit builds the reddit code driver.
func NewReddit(env Env) *RedditProvider { return &RedditProvider{env: env} }

// Name implements domain.Provider.
func (p *RedditProvider) Name() string { return "reddit" }

// BuildURL implements domain.Provider.
func (p *RedditProvider) BuildURL(username string) string {
	return "https://www.reddit.com/user/" + username
}

// Check implements domain.Provider.
func (p *RedditProvider) Check(ctx context.Context, username string) domain.Result {
	start := time.Now()
	pageURL := p.BuildURL(username)
	apiURL := "https://www.reddit.com/user/" + username + "/about.json"

	release, err := p.env.Limiter.Acquire(ctx, apiURL)
	if err != nil {
		return errResult(p.Name(), username, pageURL, start, err)
	}
	defer release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return errResult(p.Name(), username, pageURL, start, err)
	}
	req.Header.Set("User-Agent", redditUA)
	req.Header.Set("Accept", "application/json")

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
		res.Status = domain.StatusBlocked
		if resp.StatusCode == http.StatusTooManyRequests {
			res.Error = "rate_limited"
		}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		res.Status = domain.StatusUnknown
	default:
		var envelope struct {
			Data struct {
				Name         string  `json:"name"`
				IconImg      string  `json:"icon_img"`
				SnoovatarImg string  `json:"snoovatar_img"`
				CreatedUTC   float64 `json:"created_utc"`
				CommentKarma int64   `json:"comment_karma"`
				LinkKarma    int64   `json:"link_karma"`
				Subreddit    struct {
					Title             string `json:"title"`
					PublicDescription string `json:"public_description"`
				} `json:"subreddit"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil || envelope.Data.Name == "" {
			res.Status = domain.StatusUnknown
			return res
		}
		res.Status = domain.StatusFound
		d := envelope.Data
		prof := domain.Profile{}
		prof.SetDefault("display_name", firstNonEmpty(d.Subreddit.Title, d.Name))
		prof.SetDefault("avatar_url", firstNonEmpty(d.SnoovatarImg, d.IconImg))
		prof.SetDefault("bio", d.Subreddit.PublicDescription)
		prof["comment_karma"] = d.CommentKarma
		prof["link_karma"] = d.LinkKarma
		if d.CreatedUTC > 0 {
			prof["created_at"] = time.Unix(int64(d.CreatedUTC), 0).UTC().Format(time.RFC3339)
		}
		res.Profile = prof
	}
	return res
}
