package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/GluM1262/remoteshell-manager/backend/app/dto"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, reason string) {
	writeJSON(w, status, dto.ErrorResponse{Error: msg, Reason: reason})
}
