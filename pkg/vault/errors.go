package vault

import "fmt"

// UnknownDeviceTypeError indicates the device type is not in the table
type UnknownDeviceTypeError struct {
	DeviceType string
}

func (e *UnknownDeviceTypeError) Error() string {
	return fmt.Sprintf("unknown device type %q", e.DeviceType)
}

// ArtifactNotFoundError indicates the ciphertext file for an artifact is
// missing from storage
type ArtifactNotFoundError struct {
	Name string
}

func (e *ArtifactNotFoundError) Error() string {
	return fmt.Sprintf("firmware artifact %q not found", e.Name)
}

// IntegrityError indicates authenticated decryption of an artifact failed
type IntegrityError struct {
	Name string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("firmware artifact %q failed integrity check", e.Name)
}

// MasterKeyMissingError indicates the vault refused to start without a
// master key outside of dev mode
type MasterKeyMissingError struct{}

func (e *MasterKeyMissingError) Error() string {
	return "vault master key is not configured"
}
