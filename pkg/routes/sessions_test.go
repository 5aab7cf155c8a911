package routes

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flashguard/flashguard/config"
	"github.com/flashguard/flashguard/pkg/cryptoutil"
	"github.com/flashguard/flashguard/pkg/dependencies"
	"github.com/flashguard/flashguard/pkg/models"
	"github.com/flashguard/flashguard/pkg/services"
	"github.com/flashguard/flashguard/pkg/vault"
	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	router      *chi.Mux
	vault       *vault.Vault
	storagePath string
	store       *services.Store
	clientKey   *rsa.PrivateKey
	publicPEM   string
	hwid        string
	now         time.Time
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	masterKey, err := cryptoutil.NewKey()
	require.NoError(t, err)
	storagePath := t.TempDir()
	cfg := &config.FlashConfig{StoragePath: storagePath, MasterKey: masterKey}

	rootLog := log.NewEntry(log.StandardLogger())
	v, err := vault.NewVault(cfg, rootLog)
	require.NoError(t, err)

	require.NoError(t, v.SealArtifact("system.bin", []byte("system image bytes")))
	require.NoError(t, v.SealArtifact("usbloader-5577.bin", []byte("loader bytes")))

	fx := &apiFixture{
		vault:       v,
		storagePath: storagePath,
		store:       services.NewStore(),
		now:         time.Now(),
	}
	fx.store.SetClock(func() time.Time { return fx.now })

	factory := dependencies.NewFactory(
		v,
		fx.store,
		services.NewNopRecorder(rootLog),
		15*time.Minute,
		time.Hour,
	)

	r := chi.NewRouter()
	r.Use(factory.Middleware)
	r.Route("/api/flash", func(s chi.Router) {
		s.Route("/sessions", MakeSessionsRouter)
	})
	fx.router = r

	fx.clientKey, err = rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	fx.publicPEM, err = cryptoutil.EncodePublicKeyPEM(&fx.clientKey.PublicKey)
	require.NoError(t, err)

	sum := sha256.Sum256([]byte("cpu1|mb1|bios1"))
	fx.hwid = strings.ToUpper(hex.EncodeToString(sum[:]))

	return fx
}

func (fx *apiFixture) createSession(t *testing.T) *models.SessionResponse {
	t.Helper()
	rr := fx.do(t, http.MethodPost, "/api/flash/sessions", models.CreateSessionRequest{
		HWID:               fx.hwid,
		DeviceType:         "MTK6580",
		ClientPublicKeyPem: fx.publicPEM,
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	var session models.SessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &session))
	return &session
}

func (fx *apiFixture) do(t *testing.T, method string, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	fx.router.ServeHTTP(rr, req)
	return rr
}

func (fx *apiFixture) sessionKey(t *testing.T, session *models.SessionResponse) []byte {
	t.Helper()
	wrapped, err := base64.StdEncoding.DecodeString(session.WrappedSessionKeyBase64)
	require.NoError(t, err)
	key, err := cryptoutil.UnwrapKey(fx.clientKey, wrapped)
	require.NoError(t, err)
	return key
}

func TestFlashSessionHappyPath(t *testing.T) {
	fx := newAPIFixture(t)

	session := fx.createSession(t)
	assert.Equal(t, models.SessionStatusActive, session.Status)
	assert.Equal(t, []string{"system.bin", "usbloader-5577.bin"}, session.FirmwareFiles)
	assert.Equal(t, 1, session.CreditCost)
	assert.Equal(t, fx.now.UTC().Add(15*time.Minute).Format(time.RFC3339), session.ExpiresAt)

	key := fx.sessionKey(t, session)
	defer cryptoutil.Zeroize(key)

	want := map[string][]byte{
		"system.bin":         []byte("system image bytes"),
		"usbloader-5577.bin": []byte("loader bytes"),
	}
	for _, name := range session.FirmwareFiles {
		rr := fx.do(t, http.MethodGet,
			fmt.Sprintf("/api/flash/sessions/%s/firmware/%s?hwid=%s", session.SessionID, name, fx.hwid), nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/octet-stream", rr.Header().Get("Content-Type"))

		plaintext, err := cryptoutil.Open(key, rr.Body.Bytes())
		require.NoError(t, err)
		assert.Equal(t, want[name], plaintext)
	}

	rr := fx.do(t, http.MethodPost,
		fmt.Sprintf("/api/flash/sessions/%s/complete", session.SessionID),
		models.CompleteSessionRequest{HWID: fx.hwid, Success: true})
	require.Equal(t, http.StatusOK, rr.Code)

	var result models.CompleteSessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.True(t, result.CreditsDeducted)

	// third fetch attempt after completion is rejected, the session burned
	rr = fx.do(t, http.MethodGet,
		fmt.Sprintf("/api/flash/sessions/%s/firmware/system.bin?hwid=%s", session.SessionID, fx.hwid), nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), models.SessionStatusBurned)
}

func TestFetchArtifactNoncesAreFresh(t *testing.T) {
	fx := newAPIFixture(t)
	session := fx.createSession(t)

	path := fmt.Sprintf("/api/flash/sessions/%s/firmware/system.bin?hwid=%s", session.SessionID, fx.hwid)
	first := fx.do(t, http.MethodGet, path, nil)
	second := fx.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusOK, second.Code)
	assert.NotEqual(t,
		first.Body.Bytes()[:cryptoutil.NonceSize],
		second.Body.Bytes()[:cryptoutil.NonceSize])
}

func TestCreateSessionRejectsMalformedRequests(t *testing.T) {
	fx := newAPIFixture(t)

	tt := []struct {
		name string
		body models.CreateSessionRequest
	}{
		{"empty hwid", models.CreateSessionRequest{DeviceType: "MTK6580", ClientPublicKeyPem: fx.publicPEM}},
		{"unknown device type", models.CreateSessionRequest{HWID: fx.hwid, DeviceType: "NOPE9999", ClientPublicKeyPem: fx.publicPEM}},
		{"bad public key", models.CreateSessionRequest{HWID: fx.hwid, DeviceType: "MTK6580", ClientPublicKeyPem: "garbage"}},
	}
	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			rr := fx.do(t, http.MethodPost, "/api/flash/sessions", tc.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestCreateSessionRejectsInvalidJSON(t *testing.T) {
	fx := newAPIFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/api/flash/sessions", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	fx.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCreateSessionFirmwareMissing(t *testing.T) {
	fx := newAPIFixture(t)
	require.NoError(t, os.Remove(filepath.Join(fx.storagePath, "system.bin.enc")))

	rr := fx.do(t, http.MethodPost, "/api/flash/sessions", models.CreateSessionRequest{
		HWID:               fx.hwid,
		DeviceType:         "MTK6580",
		ClientPublicKeyPem: fx.publicPEM,
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetSessionReturnsOriginalWrap(t *testing.T) {
	fx := newAPIFixture(t)
	session := fx.createSession(t)

	rr := fx.do(t, http.MethodGet,
		fmt.Sprintf("/api/flash/sessions/%s?hwid=%s", session.SessionID, fx.hwid), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var read models.SessionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &read))
	assert.Equal(t, session.WrappedSessionKeyBase64, read.WrappedSessionKeyBase64)
	assert.Equal(t, session.ExpiresAt, read.ExpiresAt)
}

func TestFingerprintMismatchIsNotFound(t *testing.T) {
	fx := newAPIFixture(t)
	session := fx.createSession(t)

	rr := fx.do(t, http.MethodGet,
		fmt.Sprintf("/api/flash/sessions/%s/firmware/system.bin?hwid=OTHERHWID", session.SessionID), nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	// indistinguishable from an unknown session
	other := fx.do(t, http.MethodGet,
		fmt.Sprintf("/api/flash/sessions/unknown-session/firmware/system.bin?hwid=%s", fx.hwid), nil)
	assert.Equal(t, http.StatusNotFound, other.Code)
	assert.JSONEq(t, rr.Body.String(), other.Body.String())

	// the mismatch did not burn anything
	good := fx.do(t, http.MethodGet,
		fmt.Sprintf("/api/flash/sessions/%s/firmware/system.bin?hwid=%s", session.SessionID, fx.hwid), nil)
	assert.Equal(t, http.StatusOK, good.Code)
}

func TestFetchArtifactOutsideManifest(t *testing.T) {
	fx := newAPIFixture(t)
	session := fx.createSession(t)

	rr := fx.do(t, http.MethodGet,
		fmt.Sprintf("/api/flash/sessions/%s/firmware/other.bin?hwid=%s", session.SessionID, fx.hwid), nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestFetchArtifactMissingHWIDQuery(t *testing.T) {
	fx := newAPIFixture(t)
	session := fx.createSession(t)

	rr := fx.do(t, http.MethodGet,
		fmt.Sprintf("/api/flash/sessions/%s/firmware/system.bin", session.SessionID), nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestFetchAfterExpiry(t *testing.T) {
	fx := newAPIFixture(t)
	session := fx.createSession(t)

	fx.now = fx.now.Add(16 * time.Minute)
	rr := fx.do(t, http.MethodGet,
		fmt.Sprintf("/api/flash/sessions/%s/firmware/system.bin?hwid=%s", session.SessionID, fx.hwid), nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), models.SessionStatusExpired)

	// a subsequent complete reports false
	cr := fx.do(t, http.MethodPost,
		fmt.Sprintf("/api/flash/sessions/%s/complete", session.SessionID),
		models.CompleteSessionRequest{HWID: fx.hwid, Success: true})
	require.Equal(t, http.StatusOK, cr.Code)
	var result models.CompleteSessionResponse
	require.NoError(t, json.Unmarshal(cr.Body.Bytes(), &result))
	assert.False(t, result.Success)
	assert.False(t, result.CreditsDeducted)
}

func TestFetchTamperedArtifact(t *testing.T) {
	fx := newAPIFixture(t)
	session := fx.createSession(t)

	// create succeeded lazily, the tamper surfaces at fetch as a 500
	path := filepath.Join(fx.storagePath, "system.bin.enc")
	blob, err := os.ReadFile(path)
	require.NoError(t, err)
	blob[cryptoutil.HeaderSize] ^= 0x01
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	rr := fx.do(t, http.MethodGet,
		fmt.Sprintf("/api/flash/sessions/%s/firmware/system.bin?hwid=%s", session.SessionID, fx.hwid), nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "system image")
}

func TestCompleteUnknownSession(t *testing.T) {
	fx := newAPIFixture(t)
	rr := fx.do(t, http.MethodPost, "/api/flash/sessions/unknown/complete",
		models.CompleteSessionRequest{HWID: fx.hwid, Success: false, ErrorMessage: "cancelled"})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
