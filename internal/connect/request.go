package connect

import (
	"sort"
	"strings"
)

// RequestType selects which hosted page the payer is sent to.
type RequestType string

const (
	Subscription     RequestType = "subscription"
	PreAuthorization RequestType = "pre_authorization"
	Bill             RequestType = "bill"
)

// Route segments used by the hosted service. This is a lookup, not a pluralizer.
var pluralRoutes = map[RequestType]string{
	Bill:             "bills",
	Subscription:     "subscriptions",
	PreAuthorization: "pre_authorizations",
}

var requiredFields = map[RequestType][]string{
	Subscription:     {"amount", "interval_length", "interval_unit"},
	PreAuthorization: {"max_amount", "interval_length", "interval_unit"},
	Bill:             {"amount"},
}

var optionalFields = map[RequestType][]string{
	Subscription: {
		"merchant_id", "name", "description", "interval_count", "start_at",
		"expires_at", "setup_fee", "user",
	},
	PreAuthorization: {
		"merchant_id", "name", "description", "interval_count", "expires_at",
		"calendar_intervals", "setup_fee", "user",
	},
	Bill: {"merchant_id", "name", "description", "user"},
}

// ParseRequestType maps user input onto a known request type.
func ParseRequestType(raw string) (RequestType, error) {
	t := RequestType(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := pluralRoutes[t]; !ok {
		return "", &ArgumentError{Field: "type", Reason: "must be one of bill, subscription, pre_authorization"}
	}
	return t, nil
}

// Plural returns the route segment for t.
func (t RequestType) Plural() (string, bool) {
	p, ok := pluralRoutes[t]
	return p, ok
}

// Request is a single hand-off to a hosted page. Fields holds the resource
// attributes that end up nested under the type key.
type Request struct {
	Type        RequestType
	Fields      map[string]any
	RedirectURI string
	CancelURI   string
	State       string
}

// Validate checks the type, the required field set and rejects fields the
// hosted page does not accept for that type.
func (r Request) Validate() error {
	required, ok := requiredFields[r.Type]
	if !ok {
		return &ArgumentError{Field: "type", Reason: "must be one of bill, subscription, pre_authorization"}
	}
	for _, name := range required {
		value, present := r.Fields[name]
		if !present || isBlank(value) {
			return &ArgumentError{Field: string(r.Type) + "." + name, Reason: "is required"}
		}
	}
	allowed := make(map[string]struct{}, len(required)+len(optionalFields[r.Type]))
	for _, name := range required {
		allowed[name] = struct{}{}
	}
	for _, name := range optionalFields[r.Type] {
		allowed[name] = struct{}{}
	}
	unknown := make([]string, 0)
	for name := range r.Fields {
		if _, ok := allowed[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return &ArgumentError{Field: string(r.Type) + "." + unknown[0], Reason: "is not accepted"}
	}
	return nil
}

func isBlank(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	}
	return false
}
