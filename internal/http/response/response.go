package response

import (
	"encoding/json"
	"net/http"
)

type errorBody struct {
	Error string `json:"error"`
}

type messageBody struct {
	Message string `json:"message"`
}

func JSON(w http.ResponseWriter, _ *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error writes {"error": message}. The message must already be safe to show
// to the client.
func Error(w http.ResponseWriter, r *http.Request, status int, message string) {
	JSON(w, r, status, errorBody{Error: message})
}

func Message(w http.ResponseWriter, r *http.Request, status int, message string) {
	JSON(w, r, status, messageBody{Message: message})
}
