package errors

import (
	sterrors "errors"
	"fmt"
)

// Buffer and message construction.
var (
	ErrAllocation       = sterrors.New("framepub: buffer allocation failed")
	ErrCapacityExceeded = sterrors.New("framepub: write exceeds buffer capacity")
	ErrReleased         = sterrors.New("framepub: buffer has been released")
)

// Endpoint boundary.
var (
	ErrEndpointInit      = sterrors.New("framepub: publish endpoint initialisation failed")
	ErrPublish           = sterrors.New("framepub: publish failed")
	ErrPublisherRequired = sterrors.New("framepub: publisher is required")
	ErrTopicRequired     = sterrors.New("framepub: topic is required")
	ErrMessageRequired   = sterrors.New("framepub: message is required")
)

// Executor lifecycle.
var (
	ErrTimerInit              = sterrors.New("framepub: timer initialisation failed")
	ErrTimerAlreadyRegistered = sterrors.New("framepub: executor already holds a timer")
	ErrNoTimer                = sterrors.New("framepub: executor has no timer registered")
	ErrExecutorRunning        = sterrors.New("framepub: executor is already running")
	ErrExecutorStopped        = sterrors.New("framepub: executor is stopped")
)

// Service bootstrap.
var (
	ErrConfigRequired = sterrors.New("framepub: config is required")
	ErrLoggerRequired = sterrors.New("framepub: logger is required")
	ErrNodeRequired   = sterrors.New("framepub: node is required")
)

// ConfigValidationError reports a configuration rejected by Validate.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "framepub: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError wraps err, returning nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}

// PublishError identifies the endpoint and tick of a failed publish. It
// matches both ErrPublish and the underlying transport error.
type PublishError struct {
	Topic string
	Tick  uint64
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("framepub: publish to %q failed on tick %d: %v", e.Topic, e.Tick, e.Err)
}

func (e *PublishError) Unwrap() []error {
	return []error{ErrPublish, e.Err}
}
