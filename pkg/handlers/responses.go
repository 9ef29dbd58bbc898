package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// StandardResponse represents a standard API response structure
type StandardResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// JSONResponse sends a JSON response with the given data and status code
func JSONResponse(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// ErrorResponse sends an error JSON response
func ErrorResponse(w http.ResponseWriter, message string, statusCode int, details ...interface{}) {
	response := StandardResponse{
		Success: false,
		Error:   http.StatusText(statusCode),
		Message: message,
	}

	if len(details) > 0 {
		response.Details = details[0]
	}

	JSONResponse(w, response, statusCode)
}

// InternalErrorResponse sends a 500 internal server error response
func InternalErrorResponse(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Internal server error"
	}
	ErrorResponse(w, message, http.StatusInternalServerError)
}

// BadRequestResponse sends a 400 bad request response
func BadRequestResponse(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Bad request"
	}
	ErrorResponse(w, message, http.StatusBadRequest)
}
