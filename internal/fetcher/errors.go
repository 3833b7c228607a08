package fetcher

import (
	"fmt"
	"net/http"
)

// FetchError is an upstream request that failed in transport or returned a
// non-2xx status. StatusCode is zero for transport failures.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AuthenticationError means the Xtream auth endpoint could not be reached
// or answered with a non-2xx status.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: " + e.Err.Error()
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// InvalidCredentialsError means the panel answered but rejected the
// credentials (user_info.auth != 1).
type InvalidCredentialsError struct {
	Status  string
	Message string
}

func (e *InvalidCredentialsError) Error() string {
	msg := "invalid credentials"
	if e.Status != "" {
		msg += " (status " + e.Status + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}
