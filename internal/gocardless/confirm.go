package gocardless

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/noah-isme/gocardless-connect/internal/connect"
	"github.com/noah-isme/gocardless-connect/internal/signing"
)

// ConfirmParams identifies a resource the payer just authorised on the
// hosted page.
type ConfirmParams struct {
	ResourceID   string `json:"resource_id"`
	ResourceType string `json:"resource_type"`
	ResourceURI  string `json:"resource_uri,omitempty"`
	State        string `json:"state,omitempty"`
}

// ConfirmParamsFromQuery reads the parameters the hosted page appends to the
// redirect URI.
func ConfirmParamsFromQuery(q url.Values) ConfirmParams {
	return ConfirmParams{
		ResourceID:   strings.TrimSpace(q.Get("resource_id")),
		ResourceType: strings.TrimSpace(q.Get("resource_type")),
		ResourceURI:  strings.TrimSpace(q.Get("resource_uri")),
		State:        q.Get("state"),
	}
}

// Validate reports a missing resource_id or resource_type.
func (p ConfirmParams) Validate() error {
	if p.ResourceID == "" {
		return &connect.ArgumentError{Field: "resource_id", Reason: "is required"}
	}
	if p.ResourceType == "" {
		return &connect.ArgumentError{Field: "resource_type", Reason: "is required"}
	}
	return nil
}

// ConfirmResult is the decoded confirm response.
type ConfirmResult struct {
	Success bool `json:"success"`
}

// ConfirmResource completes a hosted-page flow. The service discards
// resources that are never confirmed.
func (c *Client) ConfirmResource(ctx context.Context, p ConfirmParams) (ConfirmResult, error) {
	if err := p.Validate(); err != nil {
		return ConfirmResult{}, err
	}
	params := signing.Params{
		{Key: "resource_id", Value: p.ResourceID},
		{Key: "resource_type", Value: p.ResourceType},
	}
	if c.RedirectURI != "" {
		params = append(params, signing.Param{Key: "redirect_uri", Value: c.RedirectURI})
	}
	body, _, err := c.Post(ctx, "confirm", params, AuthBasic)
	if err != nil {
		return ConfirmResult{}, err
	}
	var result ConfirmResult
	if len(strings.TrimSpace(string(body))) == 0 {
		return ConfirmResult{Success: true}, nil
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return ConfirmResult{}, &APIError{Status: 200, Message: "undecodable confirm response", Body: body}
	}
	return result, nil
}
