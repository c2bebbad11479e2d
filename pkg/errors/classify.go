package errors

import (
	"fmt"
	"net/http"
)

// FromHTTPStatus converts a non-2xx provider HTTP status into a classified
// StructuredError. Rate limiting and server errors retry on later rounds;
// other client errors are configuration-level.
func FromHTTPStatus(provider string, status int, body string) *StructuredError {
	details := fmt.Sprintf("%s returned HTTP %d: %s", provider, status, body)
	switch {
	case status == http.StatusTooManyRequests:
		return New(TransientError, "provider rate limited", details, ErrProviderRateLimited)
	case status >= 500:
		return New(TransientError, "provider server error", details, ErrProviderServerError)
	default:
		return New(HardError, "provider rejected request", details, ErrProviderBadRequest)
	}
}
