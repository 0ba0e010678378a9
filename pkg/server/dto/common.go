package dto

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// Error codes returned in ErrorResponse.Error.
const (
	CodeInvalidRequest = "invalid_request"
	CodeUnavailable    = "service_unavailable"
	CodeTimeout        = "timeout"
	CodeNotFound       = "not_found"
	CodeInternal       = "internal_error"
)
