package routes

import (
	"encoding/json"
	"net/http"

	"github.com/flashguard/flashguard/pkg/errors"
	log "github.com/sirupsen/logrus"
)

func respondWithAPIError(w http.ResponseWriter, logEntry *log.Entry, apiError errors.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiError.GetStatus())
	if err := json.NewEncoder(w).Encode(&apiError); err != nil {
		logEntry.WithField("error", err.Error()).Error("Error while trying to encode api error")
	}
}

func respondWithJSONBody(w http.ResponseWriter, logEntry *log.Entry, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logEntry.WithField("error", err.Error()).Error("Error while trying to encode data")
		respondWithAPIError(w, logEntry, errors.NewInternalServerError())
	}
}

func readRequestJSONBody(w http.ResponseWriter, r *http.Request, logEntry *log.Entry, dataReceiver interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dataReceiver); err != nil {
		logEntry.WithField("error", err.Error()).Error("Error parsing json from request body")
		respondWithAPIError(w, logEntry, errors.NewBadRequest("invalid JSON request"))
		return err
	}
	return nil
}
