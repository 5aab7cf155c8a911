// Package agent orchestrates the client side of one firmware flash: it
// binds a session to this hardware, pulls each artifact, decrypts it only
// in memory, drives the native flashing tool and reports the outcome. The
// agent recovers nothing; every failure ends in a best-effort completion
// call with success=false followed by zeroization.
package agent

import (
	"context"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/flashguard/flashguard/pkg/agent/flashapi"
	"github.com/flashguard/flashguard/pkg/agent/hwid"
	"github.com/flashguard/flashguard/pkg/agent/keystore"
	"github.com/flashguard/flashguard/pkg/agent/toolrunner"
	"github.com/flashguard/flashguard/pkg/cryptoutil"
	"github.com/flashguard/flashguard/pkg/models"
	"github.com/flashguard/flashguard/pkg/vault"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Flash states. The machine is strictly sequential; Aborted is reachable
// from every non-terminal state.
const (
	StateIdle               = "Idle"
	StateSessionRequested   = "SessionRequested"
	StateSessionEstablished = "SessionEstablished"
	StateFetching           = "Fetching"
	StateToolRunning        = "ToolRunning"
	StateReporting          = "Reporting"
	StateDone               = "Done"
	StateAborted            = "Aborted"
)

// ToolRunner is the seam to the tool supervisor
type ToolRunner interface {
	Run(ctx context.Context, toolName string, argTemplate string, buffers map[string]*cryptoutil.Secret, sink toolrunner.ProgressSink) error
}

// SessionFactory opens an API client for one flash. The context carries
// the flash's cancellation.
type SessionFactory func(ctx context.Context, logEntry *log.Entry) flashapi.ClientInterface

// Agent is the client-side flash orchestrator. One flash runs at a time.
type Agent struct {
	Prober     *hwid.Prober
	Custodian  *keystore.Custodian
	NewClient  SessionFactory
	Runner     ToolRunner
	log        *log.Entry
	state      string
}

// New builds a flash agent from its collaborators
func New(prober *hwid.Prober, custodian *keystore.Custodian, newClient SessionFactory, runner ToolRunner, logEntry *log.Entry) *Agent {
	return &Agent{
		Prober:    prober,
		Custodian: custodian,
		NewClient: newClient,
		Runner:    runner,
		log:       logEntry.WithField("component", "agent"),
		state:     StateIdle,
	}
}

// State returns the current flash state
func (a *Agent) State() string { return a.state }

func (a *Agent) transition(state string) {
	a.state = state
	a.log.WithField("state", state).Debug("flash state changed")
}

// Flash performs one complete flash for the given device type. Whatever
// happens after the session is established, a completion call is attempted
// and the unwrapped session key is zeroized before returning.
func (a *Agent) Flash(ctx context.Context, deviceType string, sink toolrunner.ProgressSink) error {
	a.transition(StateIdle)

	dt, err := vault.GetDeviceType(deviceType)
	if err != nil {
		a.transition(StateAborted)
		return err
	}

	fingerprint := a.Prober.Fingerprint()
	if err := a.Custodian.Ensure(); err != nil {
		a.transition(StateAborted)
		return errors.Wrap(err, "preparing client keypair")
	}
	publicPEM, err := a.Custodian.PublicPEM()
	if err != nil {
		a.transition(StateAborted)
		return err
	}

	client := a.NewClient(ctx, a.log)

	a.transition(StateSessionRequested)
	session, err := client.CreateSession(&models.CreateSessionRequest{
		HWID:               fingerprint,
		DeviceType:         deviceType,
		ClientPublicKeyPem: publicPEM,
	})
	if err != nil {
		a.transition(StateAborted)
		return errors.Wrap(err, "creating session")
	}
	a.transition(StateSessionEstablished)
	a.log.WithFields(log.Fields{
		"sessionID":  session.SessionID,
		"deviceType": deviceType,
		"artifacts":  len(session.FirmwareFiles),
	}).Info("session established")

	flashErr := a.runFlash(ctx, client, session, dt, sink)

	a.transition(StateReporting)
	a.reportCompletion(session.SessionID, fingerprint, flashErr)

	if flashErr != nil {
		a.transition(StateAborted)
		return flashErr
	}
	a.transition(StateDone)
	return nil
}

// runFlash is everything between session establishment and completion
// reporting: unwrap, fetch+decrypt each artifact, run the tool
func (a *Agent) runFlash(ctx context.Context, client flashapi.ClientInterface, session *models.SessionResponse, dt vault.DeviceType, sink toolrunner.ProgressSink) error {
	wrapped, err := base64.StdEncoding.DecodeString(session.WrappedSessionKeyBase64)
	if err != nil {
		return errors.Wrap(err, "decoding wrapped session key")
	}
	sessionKey, err := a.Custodian.Unwrap(wrapped)
	if err != nil {
		return err
	}
	defer sessionKey.Close()

	buffers := make(map[string]*cryptoutil.Secret, len(session.FirmwareFiles))
	// on any exit before handoff, whatever was fetched gets zeroized here
	defer func() {
		for _, buf := range buffers {
			buf.Close()
		}
	}()

	for _, name := range session.FirmwareFiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		a.transition(StateFetching)

		blob, err := client.FetchFirmware(session.SessionID, a.Prober.Fingerprint(), name)
		if err != nil {
			return errors.Wrapf(err, "fetching %q", name)
		}

		plaintext, err := cryptoutil.Open(sessionKey.Bytes(), blob)
		cryptoutil.Zeroize(blob)
		if err != nil {
			return errors.Wrapf(err, "decrypting %q", name)
		}
		buffers[name] = cryptoutil.NewSecret(plaintext)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	a.transition(StateToolRunning)
	handoff := buffers
	buffers = nil // ownership moves to the runner
	return a.Runner.Run(ctx, dt.Tool, dt.ArgumentTemplate, handoff, sink)
}

// reportCompletion makes the best-effort completion call. It runs on a
// fresh context because the per-flash client may carry a cancelled one and
// a cancelled flash must still burn its session.
func (a *Agent) reportCompletion(sessionID string, fingerprint string, flashErr error) {
	req := &models.CompleteSessionRequest{
		HWID:    fingerprint,
		Success: flashErr == nil,
	}
	if flashErr != nil {
		req.ErrorMessage = completionReason(flashErr)
	}

	reportCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	reportClient := a.NewClient(reportCtx, a.log)

	result, err := reportClient.Complete(sessionID, req)
	if err != nil {
		a.log.WithField("error", err.Error()).Error("best-effort completion call failed")
		return
	}
	a.log.WithFields(log.Fields{
		"success":         req.Success,
		"creditsDeducted": result.CreditsDeducted,
	}).Info("session completion reported")
}

// completionReason maps a flash error to the reason string reported to the
// server
func completionReason(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case errors.Is(err, cryptoutil.ErrIntegrity):
		return "integrity"
	case errors.Is(err, keystore.ErrUnwrap):
		return "session key unwrap failed"
	}
	var toolFailed *toolrunner.ToolFailedError
	if errors.As(err, &toolFailed) {
		return "Flash tool failed"
	}
	var apiErr *flashapi.APIStatusError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusInternalServerError {
		// the only 500 the fetch path produces is a vault integrity failure
		return "integrity"
	}
	return err.Error()
}
