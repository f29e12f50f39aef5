package httpclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"

	"github.com/gabriel-vasile/mimetype"
)

// UnsafeURLError marks a fetch refused by the SSRF guard.
type UnsafeURLError struct{ Reason string }

func (e *UnsafeURLError) Error() string { return "unsafe url: " + e.Reason }

func unsafe(reason string) error { return &UnsafeURLError{Reason: reason} }

// metadata endpoints commonly abused via redirect chains
var blockedHostNames = map[string]bool{
	"localhost":                true,
	"localhost.localdomain":    true,
	"metadata":                 true,
	"metadata.google.internal": true,
}

func ipBlocked(a netip.Addr) bool {
	return a.IsPrivate() || a.IsLoopback() || a.IsLinkLocalUnicast() ||
		a.IsLinkLocalMulticast() || a.IsMulticast() || a.IsUnspecified() ||
		!a.IsValid()
}

// AssertURLSafe is the central guard for addon fetches. It rejects
// non-http(s) schemes, .onion hosts, localhost-ish names, and hosts that
// resolve to private/link-local/loopback address space. The connected
// address is checked again at dial time by SafeDialControl.
func AssertURLSafe(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return unsafe("bad url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return unsafe("scheme not allowed")
	}
	host := strings.ToLower(strings.TrimSpace(u.Hostname()))
	if host == "" {
		return unsafe("missing host")
	}
	if strings.HasSuffix(host, ".onion") {
		return unsafe("onion host")
	}
	if blockedHostNames[host] {
		return unsafe("host blocked")
	}
	if a, err := netip.ParseAddr(strings.Trim(host, "[]")); err == nil {
		if ipBlocked(a) {
			return unsafe("ip blocked")
		}
		return nil
	}
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return unsafe("host does not resolve")
	}
	for _, a := range addrs {
		if ipBlocked(a.Unmap()) {
			return unsafe("host resolves to blocked ip")
		}
	}
	return nil
}

// SafeDialControl re-validates the connected address after DNS resolution,
// closing the TOCTOU window between AssertURLSafe and the actual dial.
// Wire it as net.Dialer.Control on transports doing addon fetches.
func SafeDialControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return unsafe("bad dial address")
	}
	a, err := netip.ParseAddr(host)
	if err != nil || ipBlocked(a.Unmap()) {
		return unsafe("dial to blocked ip")
	}
	return nil
}

const safeFetchRedirects = 3

// SafeFetchBytes fetches url with SSRF and size controls: every redirect
// hop is re-validated, the Content-Type must carry the accept prefix, and
// the body is capped at maxBytes. Returns the raw bytes and the media type.
func SafeFetchBytes(ctx context.Context, client *http.Client, rawURL string, maxBytes int64, acceptPrefix string) ([]byte, string, error) {
	next := rawURL
	for hop := 0; hop <= safeFetchRedirects; hop++ {
		if err := AssertURLSafe(ctx, next); err != nil {
			return nil, "", err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, "", err
		}
		if acceptPrefix != "" {
			req.Header.Set("Accept", acceptPrefix+"/*")
		}
		ApplyProfile(req, "desktop_chrome")

		resp, err := client.Do(req)
		if err != nil {
			return nil, "", err
		}

		switch resp.StatusCode {
		case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
			http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
			loc := resp.Header.Get("Location")
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			_ = resp.Body.Close()
			if loc == "" {
				return nil, "", unsafe("redirect without location")
			}
			ref, err := url.Parse(loc)
			if err != nil {
				return nil, "", unsafe("bad redirect location")
			}
			base, _ := url.Parse(next)
			next = base.ResolveReference(ref).String()
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return nil, "", fmt.Errorf("bad status %d", resp.StatusCode)
		}

		ctype := strings.ToLower(strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0]))
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
		_ = resp.Body.Close()
		if err != nil {
			return nil, "", err
		}
		if int64(len(body)) > maxBytes {
			return nil, "", unsafe("content too large")
		}
		if ctype == "" || ctype == "application/octet-stream" {
			// Some CDNs omit or genericize the type; sniff the bytes.
			ctype = mimetype.Detect(body).String()
			ctype = strings.Split(ctype, ";")[0]
		}
		if acceptPrefix != "" && !strings.HasPrefix(ctype, acceptPrefix+"/") {
			return nil, "", unsafe("unexpected content-type")
		}
		return body, ctype, nil
	}
	return nil, "", unsafe("too many redirects")
}
