package managedfn

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Status reports the outcome of the whole invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

const (
	// ManagedIdentityEnabled is the marker reported in every successful response.
	ManagedIdentityEnabled = "enabled"
	// SecretRetrieved is reported when the secret could be fetched.
	SecretRetrieved = "success"
	// StorageAccessible is reported when the containers could be listed.
	StorageAccessible = "accessible"
	// EmptySecret replaces the value of a secret which has none.
	EmptySecret = "empty"
	// FailureMessage is the message of the error payload.
	FailureMessage = "Function execution failed"

	// TimestampLayout is the ISO-8601 layout of the response timestamp.
	TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

	secretPreviewLength = 10
)

// ResponsePayload is the body returned when the function completes. The dependency fields are mutually exclusive
// per dependency: either the success fields or the status describing the failure are set.
type ResponsePayload struct {
	Message         string `json:"message"`
	Status          Status `json:"status"`
	Timestamp       string `json:"timestamp"`
	ManagedIdentity string `json:"managed_identity"`
	Environment     string `json:"environment"`
	FunctionAppName string `json:"function_app_name"`

	SecretRetrieved string `json:"secret_retrieved,omitempty"`
	SecretValue     string `json:"secret_value,omitempty"`
	KeyVaultStatus  string `json:"key_vault_status,omitempty"`

	StorageContainersCount *int   `json:"storage_containers_count,omitempty"`
	StorageStatus          string `json:"storage_status,omitempty"`
}

// MarshalZerologObject logs the payload, leaving the secret preview out.
func (p *ResponsePayload) MarshalZerologObject(e *zerolog.Event) {
	e.
		Str("status", string(p.Status)).
		Str("environment", p.Environment).
		Str("functionAppName", p.FunctionAppName)

	if p.SecretRetrieved != "" {
		e.Str("secretRetrieved", p.SecretRetrieved)
	} else {
		e.Str("keyVaultStatus", p.KeyVaultStatus)
	}

	if p.StorageContainersCount != nil {
		e.Int("storageContainersCount", *p.StorageContainersCount)
	}

	e.Str("storageStatus", p.StorageStatus)
}

// ErrorPayload is the body returned when the invocation failed.
type ErrorPayload struct {
	Message string `json:"message"`
	Error   string `json:"error"`
	Status  Status `json:"status"`
}

// NewErrorPayload returns the payload describing the given failure.
func NewErrorPayload(err error) ErrorPayload {
	return ErrorPayload{
		Message: FailureMessage,
		Error:   err.Error(),
		Status:  StatusError,
	}
}

// PreviewSecret returns the first characters of the value followed by an ellipsis, or EmptySecret when there is
// no value.
func PreviewSecret(value string) string {
	if value == "" {
		return EmptySecret
	}

	runes := []rune(value)
	if len(runes) > secretPreviewLength {
		runes = runes[:secretPreviewLength]
	}

	return string(runes) + "..."
}

// NotAccessible describes a dependency which could not be reached.
func NotAccessible(err error) string {
	return fmt.Sprintf("not accessible: %s", err)
}
