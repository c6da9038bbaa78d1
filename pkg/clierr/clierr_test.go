package clierr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/habedi/monitorctl/client"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *Error
		wantMsg string
	}{
		{
			name:    "simple error message",
			err:     New(Validation, "invalid input", nil),
			wantMsg: "invalid input",
		},
		{
			name:    "error with underlying error",
			err:     New(Transport, "request failed", errors.New("network timeout")),
			wantMsg: "request failed",
		},
		{
			name:    "empty message",
			err:     New(Internal, "", nil),
			wantMsg: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %v, want %v", got, tt.wantMsg)
			}
		})
	}
}

func TestError_UnwrapChain(t *testing.T) {
	wrappedErr := errors.New("wrapped: root cause")
	cliErr := New(Internal, "cli error", wrappedErr)

	if !errors.Is(cliErr, wrappedErr) {
		t.Error("errors.Is should find wrapped error")
	}
	if cliErr.Unwrap() != wrappedErr {
		t.Errorf("Unwrap() = %v, want %v", cliErr.Unwrap(), wrappedErr)
	}
	if New(Validation, "test", nil).Unwrap() != nil {
		t.Error("Unwrap() with nil underlying should be nil")
	}
}

func TestError_ExitCode(t *testing.T) {
	tests := []struct {
		typ  Type
		want int
	}{
		{Validation, 2},
		{Session, 3},
		{Transport, 4},
		{Business, 5},
		{NotFound, 5},
		{Internal, 1},
		{Type(""), 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			if got := New(tt.typ, "msg", nil).ExitCode(); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFromAPI(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType Type
		wantMsg  string
	}{
		{
			name:     "session expired",
			err:      &client.SessionExpiredError{Cause: errors.New("refresh failed")},
			wantType: Session,
			wantMsg:  client.SessionExpiredMessage,
		},
		{
			name:     "business error",
			err:      fmt.Errorf("wrapped: %w", &client.BusinessError{Code: 500, Msg: "username already exists"}),
			wantType: Business,
			wantMsg:  "add user: username already exists",
		},
		{
			name:     "transport timeout",
			err:      &client.TransportError{Method: "GET", URL: "http://x", Err: context.DeadlineExceeded},
			wantType: Transport,
			wantMsg:  "add user: request timed out",
		},
		{
			name:     "unknown error",
			err:      errors.New("boom"),
			wantType: Internal,
			wantMsg:  "add user: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromAPI("add user", tt.err)
			if got.Type != tt.wantType {
				t.Errorf("Type = %v, want %v", got.Type, tt.wantType)
			}
			if got.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", got.Message, tt.wantMsg)
			}
			if !errors.Is(got, tt.err) {
				t.Error("errors.Is should find the API error")
			}
		})
	}
}

func TestFromAPI_PassesThroughCLIErrorsAndNil(t *testing.T) {
	if FromAPI("x", nil) != nil {
		t.Error("FromAPI(nil) should be nil")
	}
	orig := New(Validation, "bad flag", nil)
	if got := FromAPI("x", fmt.Errorf("wrap: %w", orig)); got != orig {
		t.Errorf("FromAPI should return the wrapped CLI error, got %v", got)
	}
}
