package toolrunner

import "fmt"

// ToolMissingError indicates the flashing binary is absent from the tools
// directory
type ToolMissingError struct {
	Name string
}

func (e *ToolMissingError) Error() string {
	return fmt.Sprintf("flash tool %q not found", e.Name)
}

// ToolUntrustedError indicates the tool's hash is not on the allowlist
type ToolUntrustedError struct {
	Name string
	Hash string
}

func (e *ToolUntrustedError) Error() string {
	return fmt.Sprintf("flash tool %q failed integrity check", e.Name)
}

// ToolFailedError indicates the tool exited non-zero
type ToolFailedError struct {
	Name     string
	ExitCode int
}

func (e *ToolFailedError) Error() string {
	return fmt.Sprintf("flash tool %q exited with code %d", e.Name, e.ExitCode)
}
