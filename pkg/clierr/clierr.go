package clierr

import (
	"errors"

	"github.com/habedi/monitorctl/client"
)

// Type categorizes a CLI-facing error for consistent messaging & exit codes.
type Type string

const (
	Validation Type = "validation"
	NotFound   Type = "not_found"
	Session    Type = "session"
	Transport  Type = "transport"
	Business   Type = "business"
	Internal   Type = "internal"
)

// Error is a structured user-facing error.
type Error struct {
	Type    Type
	Message string
	Err     error // optional underlying error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

// New constructs a new CLI Error.
func New(t Type, msg string, err error) *Error { return &Error{Type: t, Message: msg, Err: err} }

// ExitCode maps the error type to a process exit status.
func (e *Error) ExitCode() int {
	switch e.Type {
	case Validation:
		return 2
	case Session:
		return 3
	case Transport:
		return 4
	case Business, NotFound:
		return 5
	default:
		return 1
	}
}

// FromAPI wraps an error returned by the API client, deriving the type and message from it.
func FromAPI(action string, err error) *Error {
	if err == nil {
		return nil
	}
	var cliErr *Error
	if errors.As(err, &cliErr) {
		return cliErr
	}
	var be *client.BusinessError
	var te *client.TransportError
	switch {
	case errors.Is(err, client.ErrSessionExpired):
		return New(Session, client.SessionExpiredMessage, err)
	case errors.As(err, &be):
		return New(Business, action+": "+be.Error(), err)
	case errors.As(err, &te):
		if te.Timeout() {
			return New(Transport, action+": request timed out", err)
		}
		return New(Transport, action+": "+te.Error(), err)
	default:
		return New(Internal, action+": "+err.Error(), err)
	}
}
