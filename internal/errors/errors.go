package errors

import (
	"fmt"
	"strings"
)

// ConfigError represents a fatal configuration error. It aborts the process
// before any pipeline work starts.
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// VaultAccessError reports a failure scoped to one subscription or one vault.
// It is collected into the sync run's error list and never aborts the run.
type VaultAccessError struct {
	Scope  string // "subscription" or "vault"
	Target string
	Err    error
}

func (e VaultAccessError) Error() string {
	return fmt.Sprintf("failed to process %s %s: %v", e.Scope, e.Target, e.Err)
}

func (e VaultAccessError) Unwrap() error {
	return e.Err
}

// StoreWriteError reports a failed batch chunk. One failed chunk does not
// affect other chunks or partitions.
type StoreWriteError struct {
	Partition string
	Chunk     int
	Err       error
}

func (e StoreWriteError) Error() string {
	return fmt.Sprintf("store write failed for partition %s chunk %d: %v", e.Partition, e.Chunk, e.Err)
}

func (e StoreWriteError) Unwrap() error {
	return e.Err
}

// NotificationError reports a failed dispatch for one recipient. Other
// recipients are unaffected.
type NotificationError struct {
	Recipient string
	Err       error
}

func (e NotificationError) Error() string {
	return fmt.Sprintf("failed to send alert to %s: %v", e.Recipient, e.Err)
}

func (e NotificationError) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	retryablePatterns := []string{
		"timeout",
		"temporary failure",
		"connection reset",
		"broken pipe",
		"rate limit",
		"throttl",
		"too many requests",
		"429",
		"503",
	}

	for _, pattern := range retryablePatterns {
		if strings.Contains(strings.ToLower(errStr), pattern) {
			return true
		}
	}

	return false
}

// AzureSuggestion provides helpful suggestions based on Azure errors
func AzureSuggestion(err error) string {
	errStr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errStr, "forbidden") || strings.Contains(errStr, "access denied"):
		return "Check Key Vault access policies: 'Get' and 'List' permissions are required for secrets and certificates"
	case strings.Contains(errStr, "notfound") || strings.Contains(errStr, "404"):
		return "Verify the vault exists and the object name is correct. Names are case-sensitive"
	case strings.Contains(errStr, "unauthorized") || strings.Contains(errStr, "401"):
		return "Check authentication: verify managed identity, service principal, or Azure CLI login"
	case strings.Contains(errStr, "throttled") || strings.Contains(errStr, "429"):
		return "Request was throttled. Consider lowering sync concurrency or increasing retry backoff"
	case strings.Contains(errStr, "tenant"):
		return "Check that the tenant ID is correct and the application is registered"
	default:
		return "Check Azure credentials, vault URL, and access policies"
	}
}
