package errors

import "fmt"

// ErrCode represents an error code
type ErrCode string

const (
	ErrCodeSourceFailed   ErrCode = "SOURCE_FAILED"
	ErrCodeDeliveryFailed ErrCode = "DELIVERY_FAILED"
	ErrCodeNotifyFailed   ErrCode = "NOTIFY_FAILED"
	ErrCodeConfigInvalid  ErrCode = "CONFIG_INVALID"
)

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewSourceError creates a per-source collection error. These are
// recoverable: they mark one source as failed without aborting the run.
func NewSourceError(source, message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeSourceFailed,
		Message: fmt.Sprintf("%s: %s", source, message),
		Err:     err,
	}
}

// NewDeliveryError creates a report delivery error. Delivery errors are
// fatal for the run.
func NewDeliveryError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeDeliveryFailed,
		Message: message,
		Err:     err,
	}
}

// NewNotifyError creates a webhook notification error. These are logged
// and never escalated.
func NewNotifyError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeNotifyFailed,
		Message: message,
		Err:     err,
	}
}

// NewConfigError creates a configuration error for a specific field
func NewConfigError(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeConfigInvalid,
		Message: fmt.Sprintf("%s: %s", field, message),
	}
}

// IsSourceFailure checks if the error is a per-source collection error
func IsSourceFailure(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == ErrCodeSourceFailed
	}
	return false
}

// IsDeliveryFailure checks if the error is a report delivery error
func IsDeliveryFailure(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == ErrCodeDeliveryFailed
	}
	return false
}
