// Package response writes JSON API responses
package response

import (
	"encoding/json"
	"net/http"
)

// JSON writes v with the given status
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	json.NewEncoder(w).Encode(v)
}

// Detail writes a {"detail": message} error body
func Detail(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"detail": message})
}

// Error writes a {"error": message} error body
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Empty writes a status without a body
func Empty(w http.ResponseWriter, status int) {
	w.WriteHeader(status)
}
