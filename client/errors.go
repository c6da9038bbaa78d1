package client

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// SessionExpiredMessage is the notice shown to the user when the session cannot be recovered.
const SessionExpiredMessage = "session expired, please log in again"

// ErrSessionExpired is matched by every error returned once the session is terminated.
var ErrSessionExpired = errors.New(SessionExpiredMessage)

var (
	// errAuthExpired marks a response classified as an authentication failure.
	// It never leaves the package.
	errAuthExpired    = errors.New("access token rejected")
	errNoRefreshToken = errors.New("no refresh token available")
	errReplayRejected = errors.New("refreshed access token was rejected")
	errLoggedOut      = errors.New("session was logged out during refresh")
	errNotEnvelope    = errors.New("response is not a JSON envelope")
)

// SessionExpiredError is returned to every caller whose request could not be recovered by a refresh.
type SessionExpiredError struct {
	Cause error
}

func (e *SessionExpiredError) Error() string {
	if e.Cause == nil {
		return SessionExpiredMessage
	}
	return fmt.Sprintf("%s: %v", SessionExpiredMessage, e.Cause)
}

func (e *SessionExpiredError) Unwrap() error { return e.Cause }

func (e *SessionExpiredError) Is(target error) bool { return target == ErrSessionExpired }

// BusinessError is an application-level failure reported through the envelope.
type BusinessError struct {
	Code int
	Msg  string
}

func (e *BusinessError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("request failed with code %d", e.Code)
	}
	return e.Msg
}

// TransportError covers network failures, timeouts and non-2xx responses without an envelope.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("%s %s: unexpected HTTP status %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the request failed because the transport deadline passed.
func (e *TransportError) Timeout() bool {
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}
