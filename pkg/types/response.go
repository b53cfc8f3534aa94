// Package types holds the wire envelopes shared by every API response.
package types

// APIError is the public error payload. Details is only populated for error
// codes that allow exposing them to clients.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope is the body of every non-2xx response.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// SuccessEnvelope is the body of every 2xx response.
type SuccessEnvelope struct {
	Data any `json:"data"`
}
