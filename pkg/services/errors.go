package services

import "fmt"

// SessionNotFoundError covers both an unknown session identifier and a
// fingerprint that does not match the bound one. The two cases are
// deliberately indistinguishable to the caller.
type SessionNotFoundError struct{}

func (e *SessionNotFoundError) Error() string {
	return "session not found"
}

// SessionUnusableError indicates the session exists but is expired or
// terminal
type SessionUnusableError struct {
	Status string
}

func (e *SessionUnusableError) Error() string {
	return fmt.Sprintf("session is not usable: %s", e.Status)
}

// ValidationError indicates a malformed session-create request
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// FirmwareUnavailableError indicates a device type whose artifacts are not
// fully present in the vault
type FirmwareUnavailableError struct {
	DeviceType string
}

func (e *FirmwareUnavailableError) Error() string {
	return fmt.Sprintf("firmware for device type %q is not available", e.DeviceType)
}

// ArtifactNotInManifestError indicates a fetch for an artifact outside the
// session's manifest
type ArtifactNotInManifestError struct {
	Name string
}

func (e *ArtifactNotInManifestError) Error() string {
	return fmt.Sprintf("artifact %q is not part of this session", e.Name)
}
