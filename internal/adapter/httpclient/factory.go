// Package httpclient builds the outbound HTTP clients used by provider
// drivers and addons: per-request timeouts, UA profiles, a capped redirect
// policy, and SOCKS5 proxying for .onion hosts.
package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"golang.org/x/net/proxy"

	"github.com/fairyhunter13/social-hunt/internal/domain"
)

const (
	// DefaultTimeout applies when a provider descriptor omits one.
	DefaultTimeout = 10 * time.Second
	// MaxRedirects caps redirect depth; cross-host redirects are followed.
	MaxRedirects = 5
	// MaxHTMLBody and MaxJSONBody cap decoded response bodies.
	MaxHTMLBody = 2 << 20
	MaxJSONBody = 16 << 20

	idleConnTimeout = 30 * time.Second
)

// UAProfile is a named bundle of UA and accept headers.
type UAProfile struct {
	UserAgent      string
	Accept         string
	AcceptLanguage string
}

// Recognized UA profiles. Providers that omit a profile get desktop_chrome.
var uaProfiles = map[string]UAProfile{
	"desktop_chrome": {
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		AcceptLanguage: "en-US,en;q=0.9",
	},
	"desktop_firefox": {
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:126.0) Gecko/20100101 Firefox/126.0",
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		AcceptLanguage: "en-US,en;q=0.5",
	},
	"mobile_safari": {
		UserAgent:      "Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
		Accept:         "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		AcceptLanguage: "en-US,en;q=0.9",
	},
}

// Profile resolves a UA profile by name, falling back to desktop_chrome.
func Profile(name string) UAProfile {
	if p, ok := uaProfiles[name]; ok {
		return p
	}
	return uaProfiles["desktop_chrome"]
}

// ApplyProfile sets UA headers on req without clobbering explicit values.
func ApplyProfile(req *http.Request, name string) {
	p := Profile(name)
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", p.Accept)
	}
	if req.Header.Get("Accept-Language") == "" {
		req.Header.Set("Accept-Language", p.AcceptLanguage)
	}
}

// IsOnionHost reports whether the URL's host ends in .onion.
func IsOnionHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Hostname()), ".onion")
}

// Factory hands out request-issuing clients. Clients share pooled
// transports per (direct, onion) so connection reuse per host works.
type Factory struct {
	direct *http.Transport
	safe   *http.Transport
	onion  http.RoundTripper
}

// New builds a Factory. torProxyURL is a SOCKS5(h) URL for .onion hosts;
// empty disables onion support (onion requests then fail at dial time).
func New(torProxyURL string) (*Factory, error) {
	direct := cleanhttp.DefaultPooledTransport()
	direct.IdleConnTimeout = idleConnTimeout

	safe := cleanhttp.DefaultPooledTransport()
	safe.IdleConnTimeout = idleConnTimeout
	safeDialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second, Control: SafeDialControl}
	safe.DialContext = safeDialer.DialContext

	f := &Factory{direct: direct, safe: safe}
	if torProxyURL != "" {
		u, err := url.Parse(torProxyURL)
		if err != nil {
			return nil, fmt.Errorf("%w: tor proxy url: %v", domain.ErrInvalidArgument, err)
		}
		var auth *proxy.Auth
		if u.User != nil {
			pw, _ := u.User.Password()
			auth = &proxy.Auth{User: u.User.Username(), Password: pw}
		}
		dialer, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("%w: tor proxy dialer: %v", domain.ErrInvalidArgument, err)
		}
		tr := cleanhttp.DefaultPooledTransport()
		tr.IdleConnTimeout = idleConnTimeout
		tr.Proxy = nil
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			tr.DialContext = cd.DialContext
		} else {
			tr.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
		f.onion = tr
	}
	return f, nil
}

type splitTransport struct{ f *Factory }

func (s splitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if strings.HasSuffix(strings.ToLower(req.URL.Hostname()), ".onion") {
		if s.f.onion == nil {
			return nil, fmt.Errorf("%w: onion host without tor proxy", domain.ErrInvalidArgument)
		}
		return s.f.onion.RoundTrip(req)
	}
	return s.f.direct.RoundTrip(req)
}

// Client returns a client with the given total timeout and the standard
// redirect policy (depth capped at MaxRedirects, cross-host allowed).
// Cookie jar is intentionally disabled; TLS verification stays on.
func (f *Factory) Client(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: splitTransport{f},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", MaxRedirects)
			}
			return nil
		},
	}
}

// SafeClient returns a direct-only client for addon fetches: it never
// follows redirects (SafeFetchBytes validates each hop itself) and its
// dialer re-checks the connected address against the blocked ranges.
func (f *Factory) SafeClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout:       timeout,
		Transport:     f.safe,
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
}
