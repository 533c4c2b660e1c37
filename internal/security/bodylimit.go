package security

import (
	"net/http"

	"github.com/noah-isme/gocardless-connect/internal/common"
)

// BodyLimit rejects request bodies larger than Max before they reach the
// JSON decoder. Zero means common.MaxBodyBytes.
type BodyLimit struct {
	Max int64
}

// Middleware answers 413 for declared oversize bodies and caps the rest.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	limit := b.Max
	if limit <= 0 {
		limit = common.MaxBodyBytes
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.Body == http.NoBody {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > limit {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}
