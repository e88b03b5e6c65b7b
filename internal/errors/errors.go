package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
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
		msg += "\n  " + e.Suggestion
	}

	return msg
}

// SecretNotFoundError is returned when the vault has no secret with the given name.
type SecretNotFoundError struct {
	Name string
	Err  error
}

func (e SecretNotFoundError) Error() string {
	return fmt.Sprintf("secret '%s' not found", e.Name)
}

func (e SecretNotFoundError) Unwrap() error {
	return e.Err
}

// SecretEmptyError is returned when a secret exists but carries no value.
type SecretEmptyError struct {
	Name string
}

func (e SecretEmptyError) Error() string {
	return fmt.Sprintf("secret '%s' is empty", e.Name)
}

// NotFoundError is a domain-level miss (profile, photo). It is not a fault.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Resource, e.ID)
}

// ConflictError reports a uniqueness violation.
type ConflictError struct {
	Resource string
	ID       string
	Err      error
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s '%s' already exists", e.Resource, e.ID)
}

func (e ConflictError) Unwrap() error {
	return e.Err
}

// DependencyError wraps any failure from the vault, database or blob service
// that has no more specific classification.
type DependencyError struct {
	Service   string
	Operation string
	Err       error
}

func (e DependencyError) Error() string {
	msg := fmt.Sprintf("%s %s failed", e.Service, e.Operation)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e DependencyError) Unwrap() error {
	return e.Err
}

// Dependency wraps err as a DependencyError unless it is already one of the
// typed failures above, in which case it is returned unchanged.
func Dependency(service, operation string, err error) error {
	if err == nil {
		return nil
	}
	if IsTyped(err) {
		return err
	}
	return DependencyError{Service: service, Operation: operation, Err: err}
}

// IsTyped reports whether err (or something it wraps) belongs to the taxonomy.
func IsTyped(err error) bool {
	var (
		cfgErr      ConfigError
		notFound    NotFoundError
		conflict    ConflictError
		secretMiss  SecretNotFoundError
		secretEmpty SecretEmptyError
		dep         DependencyError
	)
	return errors.As(err, &cfgErr) ||
		errors.As(err, &notFound) ||
		errors.As(err, &conflict) ||
		errors.As(err, &secretMiss) ||
		errors.As(err, &secretEmpty) ||
		errors.As(err, &dep)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var c ConflictError
	return errors.As(err, &c)
}

// Suggestion returns a hint for an operator based on the failing service and error text.
func Suggestion(service string, err error) string {
	if err == nil {
		return ""
	}

	var cfgErr ConfigError
	if errors.As(err, &cfgErr) && cfgErr.Suggestion != "" {
		return cfgErr.Suggestion
	}

	errStr := strings.ToLower(err.Error())

	switch service {
	case "keyvault":
		switch {
		case strings.Contains(errStr, "forbidden") || strings.Contains(errStr, "403"):
			return "Grant the identity 'Get' permission on secrets (Key Vault Secrets User role)"
		case strings.Contains(errStr, "secretnotfound") || strings.Contains(errStr, "not found"):
			return "Verify the secret name exists in the Key Vault. Secret names are case-sensitive"
		case strings.Contains(errStr, "empty"):
			return "Set a non-empty value for the secret in the Key Vault"
		}
	case "database":
		switch {
		case strings.Contains(errStr, "access denied") || strings.Contains(errStr, "authentication"):
			return "Check the database user, or that the managed identity is mapped to a database principal"
		case strings.Contains(errStr, "doesn't exist") || strings.Contains(errStr, "does not exist"):
			return "Run 'userprofile migrate' to create the users table"
		case strings.Contains(errStr, "command denied") || strings.Contains(errStr, "permission denied"):
			return "Grant the database user CREATE, SELECT and INSERT on the schema"
		}
	case "blob":
		switch {
		case strings.Contains(errStr, "authorizationpermissionmismatch") || strings.Contains(errStr, "403"):
			return "Assign the identity the 'Storage Blob Data Contributor' role on the account"
		case strings.Contains(errStr, "containernotfound"):
			return "Create the container or fix STORAGE_CONTAINER_NAME"
		}
	case "identity":
		switch {
		case strings.Contains(errStr, "managed identity"):
			return "Check that Managed Identity is enabled and assigned appropriate roles"
		case strings.Contains(errStr, "login"):
			return "Try running 'az login' to authenticate with Azure CLI"
		}
	}

	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "The operation timed out. Check your network connection and try again"
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host") {
		return "Unable to connect. Check network access and the configured endpoint"
	}

	return ""
}
