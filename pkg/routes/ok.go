package routes

import (
	"encoding/json"
	"net/http"
)

// StatusOK returns a simple 200 status indicating the service is up
func StatusOK(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(struct {
		Status string
	}{"OK"}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
