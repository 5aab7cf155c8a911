// Package flashapi is the HTTP client for the /api/flash session protocol
package flashapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/flashguard/flashguard/config"
	"github.com/flashguard/flashguard/pkg/models"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ClientInterface is an Interface to make requests to the flash API
type ClientInterface interface {
	CreateSession(req *models.CreateSessionRequest) (*models.SessionResponse, error)
	GetSession(sessionID string, hwid string) (*models.SessionResponse, error)
	FetchFirmware(sessionID string, hwid string, artifactName string) ([]byte, error)
	Complete(sessionID string, req *models.CompleteSessionRequest) (*models.CompleteSessionResponse, error)
}

// Client is the implementation of ClientInterface
type Client struct {
	ctx     context.Context
	log     *log.Entry
	baseURL string
	http    *http.Client
}

// APIStatusError carries a non-2xx response from the server
type APIStatusError struct {
	StatusCode int
	Title      string
}

func (e *APIStatusError) Error() string {
	return fmt.Sprintf("flash API returned %d: %s", e.StatusCode, e.Title)
}

// TransportError indicates the request never produced a usable response
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "flash API transport error: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// InitClient initializes the client for the flash API
func InitClient(ctx context.Context, logEntry *log.Entry) *Client {
	cfg := config.Get()
	return &Client{
		ctx:     ctx,
		log:     logEntry.WithField("client", "flashapi"),
		baseURL: cfg.Client.ServerURL,
		http: &http.Client{
			// large artifacts over slow links, the session TTL is the
			// real upper bound
			Timeout: time.Duration(cfg.Client.RequestTimeoutMins) * time.Minute,
		},
	}
}

// CreateSession asks the session authority to mint a one-time session
func (c *Client) CreateSession(req *models.CreateSessionRequest) (*models.SessionResponse, error) {
	var session models.SessionResponse
	if err := c.postJSON("/api/flash/sessions", req, &session, http.StatusCreated); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession reads a session back as originally issued
func (c *Client) GetSession(sessionID string, hwid string) (*models.SessionResponse, error) {
	var session models.SessionResponse
	path := fmt.Sprintf("/api/flash/sessions/%s?hwid=%s", url.PathEscape(sessionID), url.QueryEscape(hwid))
	if err := c.getJSON(path, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// FetchFirmware downloads one artifact re-encrypted under the session key.
// The body is the framed blob nonce||tag||ciphertext.
func (c *Client) FetchFirmware(sessionID string, hwid string, artifactName string) ([]byte, error) {
	path := fmt.Sprintf("/api/flash/sessions/%s/firmware/%s?hwid=%s",
		url.PathEscape(sessionID), url.PathEscape(artifactName), url.QueryEscape(hwid))
	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}
	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return blob, nil
}

// Complete reports the flash outcome, burning the session
func (c *Client) Complete(sessionID string, req *models.CompleteSessionRequest) (*models.CompleteSessionResponse, error) {
	var result models.CompleteSessionResponse
	path := fmt.Sprintf("/api/flash/sessions/%s/complete", url.PathEscape(sessionID))
	if err := c.postJSON(path, req, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) postJSON(path string, body interface{}, out interface{}, wantStatus int) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "encoding request")
	}
	resp, err := c.do(http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		return c.statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Err: err}
	}
	return nil
}

func (c *Client) getJSON(path string, out interface{}) error {
	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Err: err}
	}
	return nil
}

func (c *Client) do(method string, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(c.ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return resp, nil
}

func (c *Client) statusError(resp *http.Response) error {
	defer resp.Body.Close()
	var apiErr struct {
		Code  string `json:"Code"`
		Title string `json:"Title"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		apiErr.Title = resp.Status
	}
	c.log.WithFields(log.Fields{
		"status": resp.StatusCode,
		"title":  apiErr.Title,
	}).Error("flash API request failed")
	return &APIStatusError{StatusCode: resp.StatusCode, Title: apiErr.Title}
}
