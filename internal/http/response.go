package http

import (
	"encoding/json"
	"net/http"
)

// SuccessEnvelope es la respuesta estándar con datos.
type SuccessEnvelope struct {
	Data  any `json:"data"`
	Error any `json:"error"`
}

// ErrorEnvelope es la respuesta estándar de error.
type ErrorEnvelope struct {
	Data  any        `json:"data"`
	Error *ErrorBody `json:"error"`
}

// ErrorBody describe la falla.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON escribe el envelope de éxito.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(SuccessEnvelope{Data: data, Error: nil})
}

// WriteError escribe el envelope de error.
func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorEnvelope{
		Data:  nil,
		Error: &ErrorBody{Code: code, Message: message, Details: details},
	})
}
