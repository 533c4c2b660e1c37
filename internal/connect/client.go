package connect

import (
	"fmt"
	"strings"
)

// Hosted service roots.
const (
	ProductionURL = "https://gocardless.com"
	SandboxURL    = "https://sandbox.gocardless.com"
)

// BaseURL resolves the hosted service root for an environment name. An
// explicit override wins over the environment.
func BaseURL(environment, override string) (string, error) {
	if o := strings.TrimRight(strings.TrimSpace(override), "/"); o != "" {
		return o, nil
	}
	switch strings.ToLower(strings.TrimSpace(environment)) {
	case "", "production":
		return ProductionURL, nil
	case "sandbox":
		return SandboxURL, nil
	default:
		return "", fmt.Errorf("unknown environment %q", environment)
	}
}

// Client binds a credential store, a hosted-service root and default
// navigation links to the signing functions.
type Client struct {
	Store       *CredentialStore
	BaseURL     string
	RedirectURI string
	CancelURI   string
	Signer      Signer
}

// NewURL fills default links and renders the signed hosted-page URL.
func (c *Client) NewURL(req Request) (string, error) {
	if req.RedirectURI == "" {
		req.RedirectURI = c.RedirectURI
	}
	if req.CancelURI == "" {
		req.CancelURI = c.CancelURI
	}
	return c.Signer.NewURL(req, c.Store.Current(), c.BaseURL)
}

// NewSubscriptionURL returns the URL for a payer to set up a subscription.
func (c *Client) NewSubscriptionURL(p SubscriptionParams) (string, error) {
	req, err := p.Request()
	if err != nil {
		return "", err
	}
	return c.NewURL(req)
}

// NewPreAuthorizationURL returns the URL for a payer to grant a pre-authorization.
func (c *Client) NewPreAuthorizationURL(p PreAuthorizationParams) (string, error) {
	req, err := p.Request()
	if err != nil {
		return "", err
	}
	return c.NewURL(req)
}

// NewBillURL returns the URL for a payer to pay a one-off bill.
func (c *Client) NewBillURL(p BillParams) (string, error) {
	req, err := p.Request()
	if err != nil {
		return "", err
	}
	return c.NewURL(req)
}

// ValidateWebhook checks payload against the current credentials.
func (c *Client) ValidateWebhook(payload map[string]any) bool {
	return ValidateWebhook(payload, c.Store.Current())
}
