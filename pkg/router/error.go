package router

import "net/http"

// Error is an error that knows how to report itself to an HTTP client.
type Error interface {
	error
	StatusCode() int
	// Write sends the status line and the error envelope.
	Write(w http.ResponseWriter) error
}

// APIError is written as {"success":false,"error":message}.
// The message reaches clients unchanged.
type APIError struct {
	Status  int
	Message string
}

var DefaultError = APIError{
	Status:  http.StatusInternalServerError,
	Message: "internal server error",
}

func NewAPIError(status int, message string) APIError {
	return APIError{Status: status, Message: message}
}

func (e APIError) StatusCode() int {
	return e.Status
}

func (e APIError) Error() string {
	return e.Message
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func (e APIError) Write(w http.ResponseWriter) error {
	return writeJSON(w, e.Status, errorResponse{Error: e.Message})
}
