package connect

import (
	"strings"
	"sync/atomic"
)

// Credentials identifies the merchant application to the hosted service.
// Values are copied, never mutated; rotate by storing a new snapshot.
type Credentials struct {
	AppID       string
	AppSecret   string
	AccessToken string
	MerchantID  string
}

// Validate reports the first credential required for signing that is missing.
func (c Credentials) Validate() error {
	switch {
	case strings.TrimSpace(c.AppID) == "":
		return &ArgumentError{Field: "app_id", Reason: "is required"}
	case strings.TrimSpace(c.AppSecret) == "":
		return &ArgumentError{Field: "app_secret", Reason: "is required"}
	case strings.TrimSpace(c.MerchantID) == "":
		return &ArgumentError{Field: "merchant_id", Reason: "is required"}
	}
	return nil
}

// CredentialStore holds the active credentials snapshot. Readers always see a
// complete value even while another goroutine rotates it.
type CredentialStore struct {
	current atomic.Pointer[Credentials]
}

// NewCredentialStore returns a store seeded with creds.
func NewCredentialStore(creds Credentials) *CredentialStore {
	s := &CredentialStore{}
	s.Rotate(creds)
	return s
}

// Current returns a copy of the active snapshot.
func (s *CredentialStore) Current() Credentials {
	if s == nil {
		return Credentials{}
	}
	if c := s.current.Load(); c != nil {
		return *c
	}
	return Credentials{}
}

// Rotate replaces the active snapshot.
func (s *CredentialStore) Rotate(creds Credentials) {
	snapshot := creds
	s.current.Store(&snapshot)
}
