package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// MaxBodyBytes bounds inbound JSON bodies.
const MaxBodyBytes = 1 << 20

// ClientIP attempts to determine the real client IP address from the request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); ip != "" {
		if first, _, _ := strings.Cut(ip, ","); strings.TrimSpace(first) != "" {
			return strings.TrimSpace(first)
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

// DecodeJSON reads a single JSON document from the request body into v.
// Numbers are kept as json.Number so their literal text survives decoding.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return NewAppError("INVALID_BODY", "request body is empty", http.StatusBadRequest, err)
		}
		return NewAppError("INVALID_BODY", "invalid JSON body", http.StatusBadRequest, err)
	}
	if dec.More() {
		return NewAppError("INVALID_BODY", "unexpected data after JSON body", http.StatusBadRequest, fmt.Errorf("trailing data"))
	}
	return nil
}
