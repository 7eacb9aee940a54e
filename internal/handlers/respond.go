package handlers

import (
	"net/http"

	json "github.com/goccy/go-json"

	"reportsink/internal/admin"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func writeFieldErrors(w http.ResponseWriter, errs admin.FieldErrors) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"errors": errs})
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeError(w, http.StatusUnauthorized, "unauthorized")
}
