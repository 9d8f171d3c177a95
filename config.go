package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
)

// Config holds the run configuration collected from the command line.
type Config struct {
	SpaceURL     string
	OutputDir    string
	CookiesFile  string
	CookieString string
	Workers      int
	SkipExisting bool
	// MaxRetries caps the attempts per metadata batch; 0 retries forever.
	MaxRetries int
	Verbose    bool
}

// extractSpaceInfo derives the API base URL and the space key from a space
// URL. Cloud sites serve the API under a /wiki prefix, which is kept when the
// given URL contains it.
func extractSpaceInfo(spaceURL string) (baseURL, spaceKey string, err error) {
	u, err := url.Parse(spaceURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid space URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", "", fmt.Errorf("invalid space URL %q: missing scheme or host", spaceURL)
	}

	segments := splitPathSegments(u.Path)
	baseURL = u.Scheme + "://" + u.Host
	for _, seg := range segments {
		if seg == "wiki" {
			baseURL += "/wiki"
			break
		}
	}

	for i, seg := range segments {
		if seg == "spaces" && i+1 < len(segments) {
			return baseURL, segments[i+1], nil
		}
	}
	return "", "", fmt.Errorf("invalid Confluence space URL %q: expected format https://your-site.atlassian.net/wiki/spaces/SPACEKEY", spaceURL)
}

// splitPathSegments splits a URL path into its non-empty segments.
func splitPathSegments(path string) []string {
	var segments []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

// browserCookie is the shape browser extensions use when exporting cookies.
type browserCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// loadCookies turns the configured cookie source into session cookies.
// Exactly one of the two sources must be set.
func loadCookies(cookiesFile, cookieString string) ([]*http.Cookie, error) {
	switch {
	case cookiesFile != "" && cookieString != "":
		return nil, errors.New("use either a cookies file or a cookie string, not both")
	case cookiesFile != "":
		return loadCookiesFile(cookiesFile)
	case cookieString != "":
		return parseCookieString(cookieString)
	}
	return nil, errors.New("no cookies provided: use -cookies-file or -cookies")
}

func loadCookiesFile(path string) ([]*http.Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cookies file: %w", err)
	}
	var raw []browserCookie
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing cookies file %s: %w", path, err)
	}

	cookies := make([]*http.Cookie, 0, len(raw))
	for _, rc := range raw {
		if rc.Name == "" {
			continue
		}
		cookiePath := rc.Path
		if cookiePath == "" {
			cookiePath = "/"
		}
		cookies = append(cookies, &http.Cookie{
			Name:   rc.Name,
			Value:  rc.Value,
			Domain: rc.Domain,
			Path:   cookiePath,
		})
	}
	if len(cookies) == 0 {
		return nil, fmt.Errorf("no cookies found in %s", path)
	}
	logInfo("Loaded %d cookies from %s", len(cookies), path)
	return cookies, nil
}

// parseCookieString parses an inline "name1=value1; name2=value2" string. The
// cookies stay host-scoped so the jar accepts them for the space's site.
func parseCookieString(s string) ([]*http.Cookie, error) {
	var cookies []*http.Cookie
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cookies = append(cookies, &http.Cookie{
			Name:  name,
			Value: strings.TrimSpace(value),
			Path:  "/",
		})
	}
	if len(cookies) == 0 {
		return nil, errors.New("no cookies parsed from cookie string")
	}
	logInfo("Parsed %d cookies from string", len(cookies))
	return cookies, nil
}
