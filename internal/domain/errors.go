package domain

import "fmt"

// ValidationError is returned for rejected job or endpoint input. Nothing is
// stored when it is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func NewValidation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports an unknown job or endpoint id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func NewNotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// TransportError wraps a failed send attempt against one endpoint.
type TransportError struct {
	EndpointID string
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("endpoint %s: %v", e.EndpointID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func NewTransportError(endpointID string, err error) error {
	return &TransportError{EndpointID: endpointID, Err: err}
}

// AlreadyRunningError is returned when a job loop is already active for the id.
type AlreadyRunningError struct {
	JobID string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("job %s is already running", e.JobID)
}
