// Package backend implements the client's Auth and Store boundaries against
// the Backend Service over HTTP and WebSocket.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/smart-bookmarks/internal/apperror"
)

const maxErrorBody = 64 << 10

// API is a thin JSON client for the Backend Service.
type API struct {
	base *url.URL
	http *http.Client
}

// NewAPI creates an API for serverURL. A nil httpClient gets a client with a
// 30 second timeout.
func NewAPI(serverURL string, httpClient *http.Client) (*API, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: parsing server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend: server URL must be http or https, got %q", serverURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &API{base: u, http: httpClient}, nil
}

// URL resolves path (and optional query) against the server URL.
func (a *API) URL(path string, q url.Values) string {
	u := *a.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// wsURL is URL with the scheme switched to ws/wss.
func (a *API) wsURL(path string) string {
	u, _ := url.Parse(a.URL(path, nil))
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
// Error bodies are turned back into apperror values.
func (a *API) do(ctx context.Context, method, path string, q url.Values, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend: encoding request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.URL(path, q), reader)
	if err != nil {
		return fmt.Errorf("backend: building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(method, path, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: decoding %s %s: %w", method, path, err)
	}
	return nil
}

// errorBody mirrors handler.ErrorResponse.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func decodeError(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var body errorBody
	if json.Unmarshal(raw, &body) == nil {
		if appErr := apperror.FromKind(body.Error, body.Message); appErr != nil {
			return appErr
		}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return apperror.Unauthorized("not signed in")
	case http.StatusForbidden:
		return apperror.Forbidden("not allowed")
	}
	return fmt.Errorf("backend: %s %s: unexpected status %d", method, path, resp.StatusCode)
}
