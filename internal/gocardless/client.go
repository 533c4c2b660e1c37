// Package gocardless is the outbound transport to the hosted payment service
// API. Requests use the same parameter encoding as signed redirect URLs.
package gocardless

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/noah-isme/gocardless-connect/internal/connect"
	"github.com/noah-isme/gocardless-connect/internal/signing"
)

// Auth selects how a request authenticates.
type Auth int

const (
	// AuthNone sends no credentials.
	AuthNone Auth = iota
	// AuthBasic sends app_id:app_secret as HTTP basic auth.
	AuthBasic
	// AuthBearer sends the merchant access token.
	AuthBearer
)

const (
	apiPrefix       = "/api/v1"
	maxResponseBody = 1 << 20
	userAgent       = "gocardless-connect-go/1.0"
)

// Doer executes HTTP requests; resilience.HTTPClient implements it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client issues authenticated API calls. Credentials are read from Store on
// every call so rotations apply immediately. RedirectURI, when set, is sent
// with confirm calls.
type Client struct {
	BaseURL     string
	Store       *connect.CredentialStore
	HTTP        Doer
	RedirectURI string
}

// Get issues a GET request with params encoded as the query string.
func (c *Client) Get(ctx context.Context, path string, params signing.Params, auth Auth) ([]byte, int, error) {
	return c.Do(ctx, http.MethodGet, path, params, auth)
}

// Post issues a POST request with params form-encoded in the body.
func (c *Client) Post(ctx context.Context, path string, params signing.Params, auth Auth) ([]byte, int, error) {
	return c.Do(ctx, http.MethodPost, path, params, auth)
}

// Do sends one API request and returns the response body and status. Any
// non-2xx status is reported as *APIError alongside the status code.
func (c *Client) Do(ctx context.Context, method, path string, params signing.Params, auth Auth) ([]byte, int, error) {
	if c == nil || c.HTTP == nil || c.Store == nil {
		return nil, 0, fmt.Errorf("gocardless: client not configured")
	}
	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		return nil, 0, &connect.ArgumentError{Field: "base_url", Reason: "is required"}
	}
	target := base + apiPrefix + "/" + strings.TrimLeft(path, "/")

	sorted := append(signing.Params(nil), params...)
	signing.Sort(sorted)
	encoded := signing.Encode(sorted)

	var body io.Reader
	if method == http.MethodGet || method == http.MethodDelete {
		if encoded != "" {
			target += "?" + encoded
		}
	} else {
		body = strings.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, 0, fmt.Errorf("gocardless: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if err := c.authenticate(req, auth); err != nil {
		return nil, 0, err
	}

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("gocardless: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("gocardless: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return payload, resp.StatusCode, newAPIError(resp.StatusCode, payload)
	}
	return payload, resp.StatusCode, nil
}

func (c *Client) authenticate(req *http.Request, auth Auth) error {
	creds := c.Store.Current()
	switch auth {
	case AuthNone:
	case AuthBasic:
		if creds.AppID == "" || creds.AppSecret == "" {
			return &connect.ArgumentError{Field: "app_secret", Reason: "is required for basic auth"}
		}
		req.SetBasicAuth(creds.AppID, creds.AppSecret)
	case AuthBearer:
		if creds.AccessToken == "" {
			return &connect.ArgumentError{Field: "access_token", Reason: "is required for bearer auth"}
		}
		req.Header.Set("Authorization", "bearer "+creds.AccessToken)
	default:
		return fmt.Errorf("gocardless: unknown auth mode %d", auth)
	}
	return nil
}
