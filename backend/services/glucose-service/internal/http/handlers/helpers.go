package handlers

import (
	"encoding/json"
	"net/http"
)

const msgInternal = "Something went wrong"

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeStatus(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, map[string]string{"status": message})
}
