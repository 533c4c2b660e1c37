package connect

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func paramValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("param"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// User pre-fills the payer details on the hosted page.
type User struct {
	FirstName       string `param:"first_name"`
	LastName        string `param:"last_name"`
	Email           string `param:"email" validate:"omitempty,email"`
	CompanyName     string `param:"company_name"`
	BillingAddress1 string `param:"billing_address1"`
	BillingAddress2 string `param:"billing_address2"`
	BillingTown     string `param:"billing_town"`
	BillingCounty   string `param:"billing_county"`
	BillingPostcode string `param:"billing_postcode"`
}

func (u *User) fields() map[string]any {
	if u == nil {
		return nil
	}
	out := map[string]any{}
	set := func(key, value string) {
		if strings.TrimSpace(value) != "" {
			out[key] = value
		}
	}
	set("first_name", u.FirstName)
	set("last_name", u.LastName)
	set("email", u.Email)
	set("company_name", u.CompanyName)
	set("billing_address1", u.BillingAddress1)
	set("billing_address2", u.BillingAddress2)
	set("billing_town", u.BillingTown)
	set("billing_county", u.BillingCounty)
	set("billing_postcode", u.BillingPostcode)
	if len(out) == 0 {
		return nil
	}
	return out
}

// Links carries the optional top-level navigation parameters.
type Links struct {
	RedirectURI string `param:"redirect_uri" validate:"omitempty,url"`
	CancelURI   string `param:"cancel_uri" validate:"omitempty,url"`
	State       string `param:"state"`
}

// SubscriptionParams describes a fixed recurring payment.
type SubscriptionParams struct {
	Amount         decimal.Decimal `param:"amount"`
	IntervalLength int             `param:"interval_length" validate:"required,gt=0"`
	IntervalUnit   string          `param:"interval_unit" validate:"required,oneof=day week month"`
	IntervalCount  int             `param:"interval_count" validate:"gte=0"`
	Name           string          `param:"name"`
	Description    string          `param:"description"`
	StartAt        time.Time       `param:"start_at"`
	ExpiresAt      time.Time       `param:"expires_at"`
	SetupFee       decimal.Decimal `param:"setup_fee"`
	MerchantID     string          `param:"merchant_id"`
	User           *User           `param:"user"`
	Links
}

// Request validates p and converts it to a subscription Request.
func (p SubscriptionParams) Request() (Request, error) {
	if err := validateStruct(p); err != nil {
		return Request{}, err
	}
	if err := checkAmount("subscription.amount", p.Amount); err != nil {
		return Request{}, err
	}
	fields := map[string]any{
		"amount":          money(p.Amount),
		"interval_length": p.IntervalLength,
		"interval_unit":   p.IntervalUnit,
	}
	if p.IntervalCount > 0 {
		fields["interval_count"] = p.IntervalCount
	}
	if !p.StartAt.IsZero() {
		fields["start_at"] = p.StartAt
	}
	if !p.ExpiresAt.IsZero() {
		fields["expires_at"] = p.ExpiresAt
	}
	if p.SetupFee.IsPositive() {
		if err := checkAmount("subscription.setup_fee", p.SetupFee); err != nil {
			return Request{}, err
		}
		fields["setup_fee"] = money(p.SetupFee)
	}
	addCommon(fields, p.Name, p.Description, p.MerchantID, p.User)
	return p.Links.request(Subscription, fields), nil
}

// PreAuthorizationParams describes a mandate for future bills up to a cap.
type PreAuthorizationParams struct {
	MaxAmount         decimal.Decimal `param:"max_amount"`
	IntervalLength    int             `param:"interval_length" validate:"required,gt=0"`
	IntervalUnit      string          `param:"interval_unit" validate:"required,oneof=day week month"`
	IntervalCount     int             `param:"interval_count" validate:"gte=0"`
	CalendarIntervals bool            `param:"calendar_intervals"`
	Name              string          `param:"name"`
	Description       string          `param:"description"`
	ExpiresAt         time.Time       `param:"expires_at"`
	SetupFee          decimal.Decimal `param:"setup_fee"`
	MerchantID        string          `param:"merchant_id"`
	User              *User           `param:"user"`
	Links
}

// Request validates p and converts it to a pre-authorization Request.
func (p PreAuthorizationParams) Request() (Request, error) {
	if err := validateStruct(p); err != nil {
		return Request{}, err
	}
	if err := checkAmount("pre_authorization.max_amount", p.MaxAmount); err != nil {
		return Request{}, err
	}
	fields := map[string]any{
		"max_amount":      money(p.MaxAmount),
		"interval_length": p.IntervalLength,
		"interval_unit":   p.IntervalUnit,
	}
	if p.IntervalCount > 0 {
		fields["interval_count"] = p.IntervalCount
	}
	if p.CalendarIntervals {
		fields["calendar_intervals"] = true
	}
	if !p.ExpiresAt.IsZero() {
		fields["expires_at"] = p.ExpiresAt
	}
	if p.SetupFee.IsPositive() {
		if err := checkAmount("pre_authorization.setup_fee", p.SetupFee); err != nil {
			return Request{}, err
		}
		fields["setup_fee"] = money(p.SetupFee)
	}
	addCommon(fields, p.Name, p.Description, p.MerchantID, p.User)
	return p.Links.request(PreAuthorization, fields), nil
}

// BillParams describes a one-off payment.
type BillParams struct {
	Amount      decimal.Decimal `param:"amount"`
	Name        string          `param:"name"`
	Description string          `param:"description"`
	MerchantID  string          `param:"merchant_id"`
	User        *User           `param:"user"`
	Links
}

// Request validates p and converts it to a bill Request.
func (p BillParams) Request() (Request, error) {
	if err := validateStruct(p); err != nil {
		return Request{}, err
	}
	if err := checkAmount("bill.amount", p.Amount); err != nil {
		return Request{}, err
	}
	fields := map[string]any{"amount": money(p.Amount)}
	addCommon(fields, p.Name, p.Description, p.MerchantID, p.User)
	return p.Links.request(Bill, fields), nil
}

func (l Links) request(t RequestType, fields map[string]any) Request {
	return Request{
		Type:        t,
		Fields:      fields,
		RedirectURI: l.RedirectURI,
		CancelURI:   l.CancelURI,
		State:       l.State,
	}
}

func addCommon(fields map[string]any, name, description, merchantID string, user *User) {
	if name = strings.TrimSpace(name); name != "" {
		fields["name"] = name
	}
	if description = strings.TrimSpace(description); description != "" {
		fields["description"] = description
	}
	if merchantID = strings.TrimSpace(merchantID); merchantID != "" {
		fields["merchant_id"] = merchantID
	}
	if u := user.fields(); u != nil {
		fields["user"] = u
	}
}

// checkAmount accepts positive amounts with at most two decimal places.
func checkAmount(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return &ArgumentError{Field: field, Reason: "must be greater than zero"}
	}
	if !d.Equal(d.Round(2)) {
		return &ArgumentError{Field: field, Reason: "must have at most 2 decimal places"}
	}
	return nil
}

// money renders amounts with two decimal places, the format the hosted pages display.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func validateStruct(v any) error {
	err := paramValidator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ArgumentError{Field: fieldPath(fe.Namespace()), Reason: describeTag(fe)}
	}
	return &ArgumentError{Reason: err.Error()}
}

// fieldPath drops the struct name validator puts in front of the namespace
// and flattens the embedded Links block.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		ns = ns[i+1:]
	}
	return strings.TrimPrefix(ns, "Links.")
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "email":
		return "must be a valid email"
	case "url":
		return "must be a valid URL"
	default:
		return "failed " + fe.Tag()
	}
}
