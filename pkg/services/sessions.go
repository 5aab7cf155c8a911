package services

import (
	"context"
	"sync"
	"time"

	"github.com/flashguard/flashguard/pkg/cryptoutil"
	"github.com/flashguard/flashguard/pkg/metrics"
	"github.com/flashguard/flashguard/pkg/models"
	"github.com/flashguard/flashguard/pkg/vault"
	log "github.com/sirupsen/logrus"
)

// SessionServiceInterface defines the interface for the session authority
type SessionServiceInterface interface {
	Create(hwid string, deviceType string, clientPublicKeyPem string) (*models.Session, error)
	Lookup(sessionID string, hwid string) *models.Session
	RequireUsable(sessionID string, hwid string) (*models.Session, error)
	Complete(sessionID string, hwid string, success bool, reason string) (*models.CompleteSessionResponse, error)
	Sweep() int
}

// Store is the session table shared by all request handlers. Every status
// transition happens under the lock and only out of the expected
// predecessor status, so terminal statuses are sticky.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	now      func() time.Time
}

// NewStore creates an empty session table
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*models.Session),
		now:      time.Now,
	}
}

// SetClock overrides the store clock, used by tests
func (st *Store) SetClock(now func() time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.now = now
}

// SessionService is the main implementation of SessionServiceInterface
type SessionService struct {
	Service
	Vault      vault.VaultInterface
	Store      *Store
	Accounting AccountingRecorder
	TTL        time.Duration
	Retention  time.Duration
}

// NewSessionService gives an instance of the main implementation of
// SessionServiceInterface bound to the shared store
func NewSessionService(ctx context.Context, logEntry *log.Entry, v vault.VaultInterface, store *Store, accounting AccountingRecorder, ttl time.Duration, retention time.Duration) SessionServiceInterface {
	return &SessionService{
		Service:    NewService(ctx, logEntry.WithField("service", "sessions")),
		Vault:      v,
		Store:      store,
		Accounting: accounting,
		TTL:        ttl,
		Retention:  retention,
	}
}

// Create validates the request, mints a session key, wraps it under the
// caller's public key and inserts a new Active session.
func (s *SessionService) Create(hwid string, deviceType string, clientPublicKeyPem string) (*models.Session, error) {
	if hwid == "" || deviceType == "" || clientPublicKeyPem == "" {
		return nil, &ValidationError{Message: "HWID, DeviceType and ClientPublicKeyPem must be sent"}
	}

	dt, err := s.Vault.DeviceType(deviceType)
	if err != nil {
		return nil, err
	}

	present, err := s.Vault.AllPresent(deviceType)
	if err != nil {
		return nil, err
	}
	if !present {
		s.log.WithField("deviceType", deviceType).Error("firmware artifacts missing from vault")
		return nil, &FirmwareUnavailableError{DeviceType: deviceType}
	}

	pub, err := cryptoutil.ParsePublicKeyPEM(clientPublicKeyPem)
	if err != nil {
		return nil, &ValidationError{Message: "invalid client public key"}
	}

	key, err := cryptoutil.NewKey()
	if err != nil {
		return nil, err
	}

	wrapped, err := cryptoutil.WrapKey(pub, key)
	if err != nil {
		cryptoutil.Zeroize(key)
		return nil, &ValidationError{Message: "client public key is unsuitable for key wrapping"}
	}

	manifest, err := s.Vault.RequiredArtifacts(deviceType)
	if err != nil {
		cryptoutil.Zeroize(key)
		return nil, err
	}

	st := s.Store
	st.mu.Lock()
	defer st.mu.Unlock()

	var id string
	for {
		id, err = cryptoutil.NewToken()
		if err != nil {
			cryptoutil.Zeroize(key)
			return nil, err
		}
		// 192-bit identifiers do not collide in practice, but the insert
		// still refuses to overwrite
		if _, taken := st.sessions[id]; !taken {
			break
		}
	}

	now := st.now()
	session := &models.Session{
		SessionID:     id,
		HWID:          hwid,
		DeviceType:    deviceType,
		Key:           key,
		WrappedKey:    wrapped,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.TTL),
		FirmwareFiles: manifest,
		CreditCost:    dt.CreditCost,
		Status:        models.SessionStatusActive,
	}
	st.sessions[id] = session

	metrics.SessionsCreatedCount.Inc()
	s.log.WithFields(log.Fields{
		"sessionID":  session.SessionID,
		"deviceType": deviceType,
		"hwidPrefix": hwidPrefix(hwid),
		"expiresAt":  session.ExpiresAt.UTC().Format(time.RFC3339),
	}).Info("session created")

	return snapshot(session, false), nil
}

// Lookup returns a snapshot of the session, or nil when the identifier is
// unknown or the fingerprint does not match the bound one. An Active
// session past its expiry transitions to Expired before returning.
func (s *SessionService) Lookup(sessionID string, hwid string) *models.Session {
	st := s.Store
	st.mu.Lock()
	defer st.mu.Unlock()

	session := st.bound(sessionID, hwid)
	if session == nil {
		return nil
	}
	st.lazyExpire(session)
	return snapshot(session, false)
}

// RequireUsable is Lookup restricted to sessions that may still serve
// artifact downloads. The snapshot carries its own copy of the session
// key; the caller owns zeroizing it.
func (s *SessionService) RequireUsable(sessionID string, hwid string) (*models.Session, error) {
	st := s.Store
	st.mu.Lock()
	defer st.mu.Unlock()

	session := st.bound(sessionID, hwid)
	if session == nil {
		return nil, &SessionNotFoundError{}
	}
	st.lazyExpire(session)
	if !session.IsUsable(st.now()) {
		return nil, &SessionUnusableError{Status: session.Status}
	}
	return snapshot(session, true), nil
}

// Complete transitions an Active session to Completed or Failed, then
// immediately to Burned, and zeroizes its key. Terminal and expired
// sessions report Success=false without mutating anything further.
func (s *SessionService) Complete(sessionID string, hwid string, success bool, reason string) (*models.CompleteSessionResponse, error) {
	st := s.Store
	st.mu.Lock()

	session := st.bound(sessionID, hwid)
	if session == nil {
		st.mu.Unlock()
		return nil, &SessionNotFoundError{}
	}
	st.lazyExpire(session)

	if session.Status != models.SessionStatusActive {
		status := session.Status
		st.mu.Unlock()
		return &models.CompleteSessionResponse{
			Success:         false,
			Message:         "session is " + status,
			CreditsDeducted: false,
		}, nil
	}

	if !success {
		session.ErrorMessage = reason
	}
	// Completed and Failed both burn immediately; Burned is the only
	// terminal state the store keeps
	session.Status = models.SessionStatusBurned
	session.BurnedAt = st.now()
	session.ZeroizeKey()
	record := snapshot(session, false)
	st.mu.Unlock()

	metrics.SessionsBurnedCount.Inc()
	s.log.WithFields(log.Fields{
		"sessionID":  sessionID,
		"success":    success,
		"hwidPrefix": hwidPrefix(hwid),
	}).Info("session completed and burned")

	charged := success
	if err := s.Accounting.RecordCompletion(record, charged, reason); err != nil {
		// the session is already burned; accounting failures must not
		// resurrect it
		s.log.WithField("error", err.Error()).Error("failed to record credit transaction")
	}

	message := "flash completed"
	if !success {
		message = "flash failed"
	}
	return &models.CompleteSessionResponse{
		Success:         true,
		Message:         message,
		CreditsDeducted: charged,
	}, nil
}

// Sweep removes Expired sessions and Burned sessions older than the quiet
// retention period, zeroizing keys on the way out. Idempotent on a
// quiesced table.
func (s *SessionService) Sweep() int {
	st := s.Store
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	removed := 0
	for id, session := range st.sessions {
		st.lazyExpire(session)
		switch session.Status {
		case models.SessionStatusExpired:
			session.ZeroizeKey()
			delete(st.sessions, id)
			removed++
		case models.SessionStatusBurned:
			if now.Sub(session.BurnedAt) > s.Retention {
				session.ZeroizeKey()
				delete(st.sessions, id)
				removed++
			}
		}
	}
	if removed > 0 {
		metrics.SessionsSweptCount.Add(float64(removed))
		s.log.WithField("removed", removed).Info("session sweep finished")
	}
	return removed
}

// bound returns the live session only when both the identifier and the
// fingerprint match. Callers hold the store lock.
func (st *Store) bound(sessionID string, hwid string) *models.Session {
	session, ok := st.sessions[sessionID]
	if !ok || hwid == "" || session.HWID != hwid {
		return nil
	}
	return session
}

// lazyExpire moves an Active session past its deadline to Expired.
// Callers hold the store lock.
func (st *Store) lazyExpire(session *models.Session) {
	if session.Status == models.SessionStatusActive && st.now().After(session.ExpiresAt) {
		session.Status = models.SessionStatusExpired
	}
}

// snapshot copies a session out of the store. The raw key is copied only
// when withKey is set; that copy is the caller's to zeroize.
func snapshot(session *models.Session, withKey bool) *models.Session {
	out := *session
	out.Key = nil
	if withKey {
		out.Key = append([]byte(nil), session.Key...)
	}
	out.WrappedKey = append([]byte(nil), session.WrappedKey...)
	out.FirmwareFiles = append([]string(nil), session.FirmwareFiles...)
	return &out
}

// hwidPrefix keeps fingerprints out of the logs, only the first 8
// characters appear
func hwidPrefix(hwid string) string {
	if len(hwid) <= 8 {
		return hwid
	}
	return hwid[:8]
}
