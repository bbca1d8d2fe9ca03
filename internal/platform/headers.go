// Package platform holds what the upstream price provider clients share.
package platform

import (
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries a fresh id on every outbound provider request.
const RequestIDHeader = "X-Request-Id"

// SetHeaders applies the header set every provider request carries.
func SetHeaders(req *http.Request, userAgent string) {
	req.Header.Set("Accept", "application/json")
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())
}
