package handler

import (
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// safeRedirect validates a redirect_to value for the authorize flow.
//
// OPEN REDIRECT PROTECTION:
// Only two kinds of targets are accepted:
//   - a same-origin path ("/", "/bookmarks"), used by the web page
//   - an http URL on a loopback host, used by the terminal client's
//     one-shot listener
//
// Anything else would let an attacker bounce a freshly issued token to a
// host they control. An empty value means "/".
func safeRedirect(raw string) (string, bool) {
	if raw == "" {
		return "/", true
	}

	if strings.HasPrefix(raw, "/") {
		// "//evil.com" and "/\evil.com" are treated as hosts by browsers.
		if strings.HasPrefix(raw, "//") || strings.HasPrefix(raw, `/\`) {
			return "", false
		}
		u, err := url.Parse(raw)
		if err != nil || u.Host != "" || u.Scheme != "" {
			return "", false
		}
		return raw, true
	}

	if isLoopbackURL(raw) {
		return raw, true
	}
	return "", false
}

// isLoopbackURL reports whether raw is an absolute http URL on localhost.
func isLoopbackURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "http" || u.User != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// withQuery appends query parameters to target, keeping any it already has.
func withQuery(target string, params url.Values) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// tokenParams is what a loopback client receives after sign-in.
func tokenParams(token string, expiresAt time.Time) url.Values {
	return url.Values{
		"access_token": {token},
		"expires_at":   {strconv.FormatInt(expiresAt.Unix(), 10)},
	}
}
