package routes

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/flashguard/flashguard/pkg/cryptoutil"
	"github.com/flashguard/flashguard/pkg/dependencies"
	"github.com/flashguard/flashguard/pkg/errors"
	"github.com/flashguard/flashguard/pkg/metrics"
	"github.com/flashguard/flashguard/pkg/models"
	"github.com/flashguard/flashguard/pkg/services"
	"github.com/flashguard/flashguard/pkg/vault"
	"github.com/go-chi/chi/v5"
)

// MakeSessionsRouter adds support for operations on flash sessions
func MakeSessionsRouter(sub chi.Router) {
	sub.Post("/", CreateSession)
	sub.Route("/{SessionID}", func(r chi.Router) {
		r.Use(SessionCtx)
		r.Get("/", GetSession)
		r.Get("/firmware/{ArtifactName}", GetSessionFirmware)
		r.Post("/complete", CompleteSession)
	})
}

type sessionContextKeyType string

// sessionContextKey is the key to the session identifier on the request
// context
const sessionContextKey = sessionContextKeyType("session_context_key")

// SessionCtx is a handler for requests addressing a single session
func SessionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "SessionID")
		if sessionID == "" {
			contextServices := dependencies.ServicesFromContext(r.Context())
			respondWithAPIError(w, contextServices.Log, errors.NewBadRequest("SessionID must be sent"))
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CreateSession mints a one-time flash session bound to the caller's
// hardware fingerprint
func CreateSession(w http.ResponseWriter, r *http.Request) {
	contextServices := dependencies.ServicesFromContext(r.Context())
	var req models.CreateSessionRequest
	if err := readRequestJSONBody(w, r, contextServices.Log, &req); err != nil {
		return
	}

	session, err := contextServices.SessionService.Create(req.HWID, req.DeviceType, req.ClientPublicKeyPem)
	if err != nil {
		var apiError errors.APIError
		switch err.(type) {
		case *services.ValidationError, *vault.UnknownDeviceTypeError, *services.FirmwareUnavailableError:
			apiError = errors.NewBadRequest(err.Error())
		default:
			apiError = errors.NewInternalServerError()
		}
		respondWithAPIError(w, contextServices.Log, apiError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	respondWithJSONBody(w, contextServices.Log, sessionToResponse(session))
}

// GetSession returns the session object as issued at create, the wrapped
// key is never re-wrapped
func GetSession(w http.ResponseWriter, r *http.Request) {
	contextServices := dependencies.ServicesFromContext(r.Context())
	sessionID, ok := r.Context().Value(sessionContextKey).(string)
	if !ok || sessionID == "" {
		return // Error set by SessionCtx method
	}

	hwid := r.URL.Query().Get("hwid")
	if hwid == "" {
		respondWithAPIError(w, contextServices.Log, errors.NewBadRequest("hwid must be sent"))
		return
	}

	session := contextServices.SessionService.Lookup(sessionID, hwid)
	if session == nil {
		respondWithAPIError(w, contextServices.Log, errors.NewNotFound("session not found"))
		return
	}
	respondWithJSONBody(w, contextServices.Log, sessionToResponse(session))
}

// GetSessionFirmware streams one artifact re-encrypted under the session
// key. The response body is nonce||tag||ciphertext, the same framing the
// vault uses at rest.
func GetSessionFirmware(w http.ResponseWriter, r *http.Request) {
	contextServices := dependencies.ServicesFromContext(r.Context())
	sessionID, ok := r.Context().Value(sessionContextKey).(string)
	if !ok || sessionID == "" {
		return // Error set by SessionCtx method
	}

	hwid := r.URL.Query().Get("hwid")
	if hwid == "" {
		respondWithAPIError(w, contextServices.Log, errors.NewBadRequest("hwid must be sent"))
		return
	}
	artifactName := chi.URLParam(r, "ArtifactName")

	session, err := contextServices.SessionService.RequireUsable(sessionID, hwid)
	if err != nil {
		var apiError errors.APIError
		switch err.(type) {
		case *services.SessionNotFoundError:
			apiError = errors.NewNotFound(err.Error())
		case *services.SessionUnusableError:
			apiError = errors.NewBadRequest(err.Error())
		default:
			apiError = errors.NewInternalServerError()
		}
		respondWithAPIError(w, contextServices.Log, apiError)
		return
	}
	defer session.ZeroizeKey()

	if !session.HasArtifact(artifactName) {
		respondWithAPIError(w, contextServices.Log,
			errors.NewBadRequest((&services.ArtifactNotInManifestError{Name: artifactName}).Error()))
		return
	}

	plaintext, err := contextServices.Vault.OpenPlaintext(artifactName)
	if err != nil {
		var apiError errors.APIError
		switch err.(type) {
		case *vault.ArtifactNotFoundError:
			apiError = errors.NewNotFound(err.Error())
		default:
			contextServices.Log.WithField("error", err.Error()).Error("vault failed to open artifact")
			apiError = errors.NewInternalServerError()
		}
		respondWithAPIError(w, contextServices.Log, apiError)
		return
	}
	defer plaintext.Close()

	blob, err := cryptoutil.Seal(session.Key, plaintext.Bytes())
	if err != nil {
		contextServices.Log.WithField("error", err.Error()).Error("failed to re-encrypt artifact")
		respondWithAPIError(w, contextServices.Log, errors.NewInternalServerError())
		return
	}

	metrics.ArtifactsServedCount.WithLabelValues(session.DeviceType).Inc()
	metrics.ArtifactBytesServed.Add(float64(len(blob)))

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := w.Write(blob); err != nil {
		contextServices.Log.WithField("error", err.Error()).Error("failed to write artifact response")
	}
}

// CompleteSession ends the session, burning it regardless of outcome
func CompleteSession(w http.ResponseWriter, r *http.Request) {
	contextServices := dependencies.ServicesFromContext(r.Context())
	sessionID, ok := r.Context().Value(sessionContextKey).(string)
	if !ok || sessionID == "" {
		return // Error set by SessionCtx method
	}

	var req models.CompleteSessionRequest
	if err := readRequestJSONBody(w, r, contextServices.Log, &req); err != nil {
		return
	}

	result, err := contextServices.SessionService.Complete(sessionID, req.HWID, req.Success, req.ErrorMessage)
	if err != nil {
		var apiError errors.APIError
		switch err.(type) {
		case *services.SessionNotFoundError:
			apiError = errors.NewNotFound(err.Error())
		default:
			apiError = errors.NewInternalServerError()
		}
		respondWithAPIError(w, contextServices.Log, apiError)
		return
	}
	respondWithJSONBody(w, contextServices.Log, result)
}

func sessionToResponse(session *models.Session) *models.SessionResponse {
	return &models.SessionResponse{
		SessionID:               session.SessionID,
		WrappedSessionKeyBase64: base64.StdEncoding.EncodeToString(session.WrappedKey),
		ExpiresAt:               session.ExpiresAt.UTC().Format(time.RFC3339),
		Status:                  session.Status,
		FirmwareFiles:           session.FirmwareFiles,
		CreditCost:              session.CreditCost,
	}
}
