package models

// CreateSessionRequest is the body of POST /api/flash/sessions
type CreateSessionRequest struct {
	HWID               string `json:"HWID"`
	DeviceType         string `json:"DeviceType"`
	ClientPublicKeyPem string `json:"ClientPublicKeyPem"`
}

// SessionResponse is the session object returned on create and read
type SessionResponse struct {
	SessionID               string   `json:"SessionId"`
	WrappedSessionKeyBase64 string   `json:"WrappedSessionKeyBase64"`
	ExpiresAt               string   `json:"ExpiresAt"`
	Status                  string   `json:"Status"`
	FirmwareFiles           []string `json:"FirmwareFiles"`
	CreditCost              int      `json:"CreditCost"`
}

// CompleteSessionRequest is the body of POST /api/flash/sessions/{id}/complete
type CompleteSessionRequest struct {
	HWID         string `json:"HWID"`
	Success      bool   `json:"Success"`
	ErrorMessage string `json:"ErrorMessage,omitempty"`
}

// CompleteSessionResponse reports the completion outcome and whether
// credits were charged
type CompleteSessionResponse struct {
	Success         bool   `json:"Success"`
	Message         string `json:"Message"`
	CreditsDeducted bool   `json:"CreditsDeducted"`
}
