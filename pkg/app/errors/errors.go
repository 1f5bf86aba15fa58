// Package errors contains helper functions and types to work with errors
package errors

import (
	"errors"
)

// Category defines error category
type Category int

const (
	// CategoryNoError is used when a component reports success.
	CategoryNoError Category = iota
	// CategoryConfig Missing or invalid configuration, detected before the run starts.
	CategoryConfig
	// CategoryStartupTimeout A dependent worker or session was not ready within its bound.
	CategoryStartupTimeout
	// CategorySessionExpired The source platform session was lost mid-cycle.
	// The current run stops and a new login is required.
	CategorySessionExpired
	// CategoryChannel Navigation or extraction failed for a single channel.
	CategoryChannel
	// CategoryDelivery Sending to a single destination failed.
	CategoryDelivery
	// CategoryPersistence A state file was malformed or could not be written.
	CategoryPersistence
	// CategoryGeneralError The service failed in an unexpected way
	CategoryGeneralError
)

func (c Category) String() string {
	switch c {
	case CategoryNoError:
		return "CategoryNoError"
	case CategoryConfig:
		return "CategoryConfig"
	case CategoryStartupTimeout:
		return "CategoryStartupTimeout"
	case CategorySessionExpired:
		return "CategorySessionExpired"
	case CategoryChannel:
		return "CategoryChannel"
	case CategoryDelivery:
		return "CategoryDelivery"
	case CategoryPersistence:
		return "CategoryPersistence"
	default:
		return "CategoryGeneralError"
	}
}

// ServiceError represents service specific type that
// is used all over the services.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

// Error method to comply with error interface
func (err ServiceError) Error() string {
	if err.Err != nil {
		if err.Message != "" {
			return err.Message + ": " + err.Err.Error()
		}
		return err.Err.Error()
	}
	return err.Message
}

// Unwrap returns the underlying error
func (err ServiceError) Unwrap() error {
	return err.Err
}

// Is checks that provided error is a ServiceError with desired Category
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Category == cat {
		return true
	}
	return false
}

// CategoryOf returns the category of the outermost ServiceError in the chain,
// or CategoryGeneralError when there is none.
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryNoError
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Category
	}
	return CategoryGeneralError
}

// IsFatal reports whether err must terminate the process rather than be
// retried inside the steady-state loop.
func IsFatal(err error) bool {
	switch CategoryOf(err) {
	case CategoryConfig, CategoryStartupTimeout:
		return true
	default:
		return false
	}
}

func newError(cat Category, err error, message string) error {
	if err == nil {
		err = errors.New(message)
		message = ""
	}
	return &ServiceError{
		Category: cat,
		Message:  message,
		Err:      err,
	}
}

// ConfigError returns an error with category CategoryConfig
func ConfigError(err error, message string) error {
	return newError(CategoryConfig, err, message)
}

// StartupTimeoutError returns an error with category CategoryStartupTimeout
func StartupTimeoutError(err error, message string) error {
	return newError(CategoryStartupTimeout, err, message)
}

// SessionExpiredError returns an error with category CategorySessionExpired
func SessionExpiredError(err error, message string) error {
	return newError(CategorySessionExpired, err, message)
}

// ChannelError returns an error with category CategoryChannel.
// The message is human readable and ends up in admin notifications.
func ChannelError(err error, message string) error {
	return newError(CategoryChannel, err, message)
}

// DeliveryError returns an error with category CategoryDelivery
func DeliveryError(err error, message string) error {
	return newError(CategoryDelivery, err, message)
}

// PersistenceError returns an error with category CategoryPersistence
func PersistenceError(err error, message string) error {
	return newError(CategoryPersistence, err, message)
}

// GeneralError returns a general service error
func GeneralError(err error) error {
	if err == nil {
		err = errors.New("internal error")
	}
	return &ServiceError{
		Category: CategoryGeneralError,
		Err:      err,
	}
}
