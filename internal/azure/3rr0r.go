package azure

import (
	"fmt"
)

// ServiceError is a failure reported by an Azure service.
type ServiceError struct {
	StatusCode int
	Code       string
	err        error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s (%d)", e.Code, e.StatusCode)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}
