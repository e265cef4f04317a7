package gateway

import "encoding/json"

// Stable machine-readable error codes. These are API surface; handlers and
// clients key off them, so they never change meaning.
const (
	CodeInvalidSignature = "invalid_signature"
	CodeUnknownService   = "unknown_service"
	CodeRateLimited      = "rate_limited"
	CodeHandlerFailure   = "handler_failure"
	CodePayloadTooLarge  = "payload_too_large"
	CodeInvalidPayload   = "invalid_payload"
	CodeBodyReadFailed   = "body_read_failed"
)

// ProcessedResponse is the 200 body for a successfully handled webhook.
type ProcessedResponse struct {
	Status  string          `json:"status"`
	Service string          `json:"service"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ErrorResponse is the body for every error status.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a stable code and a human message. It never includes
// secrets, signature material, or other callers' identifiers.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// ResetAt is set on rate_limited errors (unix seconds) so callers can
	// back off precisely.
	ResetAt int64 `json:"reset_at,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status        string   `json:"status"`
	UptimeSeconds int64    `json:"uptime_seconds"`
	Handlers      []string `json:"handlers"`
}

// ServicesResponse is returned by GET /api/services.
type ServicesResponse struct {
	Services []string `json:"services"`
	Count    int      `json:"count"`
}
