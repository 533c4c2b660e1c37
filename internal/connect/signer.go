package connect

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/gocardless-connect/internal/signing"
)

// SignatureKey is the parameter carrying the MAC on every signed exchange.
const SignatureKey = "signature"

// Signer turns a Request into a signed parameter set. The zero value uses the
// wall clock and crypto/rand nonces; tests override both.
type Signer struct {
	Now   func() time.Time
	Nonce func() (string, error)
}

// Sign validates req, injects the protocol fields, and returns the sorted
// parameters with the signature appended last.
func (s Signer) Sign(req Request, creds Credentials) (signing.Params, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	resource := make(map[string]any, len(req.Fields)+1)
	for k, v := range req.Fields {
		resource[k] = v
	}
	if isBlank(resource["merchant_id"]) {
		resource["merchant_id"] = creds.MerchantID
	}

	nonce, err := s.nonce()
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	params := map[string]any{
		string(req.Type): resource,
		"client_id":      creds.AppID,
		"nonce":          nonce,
		"timestamp":      s.now().UTC().Format(time.RFC3339),
	}
	// Links are signed as top-level keys (redirect_uri, not bill[redirect_uri]).
	if v := strings.TrimSpace(req.RedirectURI); v != "" {
		params["redirect_uri"] = v
	}
	if v := strings.TrimSpace(req.CancelURI); v != "" {
		params["cancel_uri"] = v
	}
	if v := strings.TrimSpace(req.State); v != "" {
		params["state"] = v
	}

	flat, err := signing.Flatten(params)
	if err != nil {
		return nil, err
	}
	signing.Sort(flat)
	signature := signing.Sign(signing.Encode(flat), creds.AppSecret)
	return append(flat, signing.Param{Key: SignatureKey, Value: signature}), nil
}

// NewURL signs req and renders the hosted-page URL under baseURL.
func (s Signer) NewURL(req Request, creds Credentials, baseURL string) (string, error) {
	signed, err := s.Sign(req, creds)
	if err != nil {
		return "", err
	}
	return BuildURL(signed, req.Type, baseURL)
}

func (s Signer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Signer) nonce() (string, error) {
	if s.Nonce != nil {
		return s.Nonce()
	}
	return signing.NewNonce()
}

// BuildURL renders base/connect/{plural}/new?{query}. No I/O happens here.
func BuildURL(signed signing.Params, t RequestType, baseURL string) (string, error) {
	plural, ok := t.Plural()
	if !ok {
		return "", &ArgumentError{Field: "type", Reason: "must be one of bill, subscription, pre_authorization"}
	}
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return "", &ArgumentError{Field: "base_url", Reason: "is required"}
	}
	return base + "/connect/" + plural + "/new?" + signing.Encode(signed), nil
}
