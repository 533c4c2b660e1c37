package connect

import (
	"net/url"

	"github.com/noah-isme/gocardless-connect/internal/signing"
)

// ValidateWebhook reports whether payload carries a signature produced with
// the account secret over the rest of the payload. A missing or malformed
// signature is an ordinary false, never an error. payload is not modified.
func ValidateWebhook(payload map[string]any, creds Credentials) bool {
	candidate, ok := payload[SignatureKey].(string)
	if !ok || candidate == "" {
		return false
	}
	rest := make(map[string]any, len(payload))
	for k, v := range payload {
		if k != SignatureKey {
			rest[k] = v
		}
	}
	canonical, err := signing.Canonicalize(rest)
	if err != nil {
		return false
	}
	return signing.Verify(canonical, creds.AppSecret, candidate)
}

// ValidateRedirect applies the webhook rule to the query string the hosted
// page appends when it sends the payer back (resource_id, resource_type,
// resource_uri, state, signature).
func ValidateRedirect(query url.Values, creds Credentials) bool {
	candidate := query.Get(SignatureKey)
	if candidate == "" {
		return false
	}
	flat := make(signing.Params, 0, len(query))
	for key, values := range query {
		if key == SignatureKey {
			continue
		}
		for _, v := range values {
			flat = append(flat, signing.Param{Key: key, Value: v})
		}
	}
	signing.Sort(flat)
	return signing.Verify(signing.Encode(flat), creds.AppSecret, candidate)
}

// UnwrapPayload returns the object inside a {"payload": {...}} envelope, or
// body itself when no envelope is present.
func UnwrapPayload(body map[string]any) map[string]any {
	if inner, ok := body["payload"].(map[string]any); ok {
		return inner
	}
	return body
}
