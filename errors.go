package talyn

import (
	"strings"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeNoToken          = "session_no_token"
	TextCodeTokenExpired     = "session_token_expired"
	TextCodeTokenMalformed   = "session_token_malformed"
	TextCodeAuthFailure      = "session_auth_failure"
	TextCodeRequestFailed    = "request_failed"
	TextCodeBadResponse      = "bad_response"
	TextCodeEmailNotVerified = "email_not_verified"
	TextCodeAlreadyAccepted  = "invitation_already_accepted"
)

// ErrNoToken is returned when storage holds no bearer token.
var ErrNoToken = errors.New("no bearer token in storage", errors.CategoryAuth).
	WithTextCode(TextCodeNoToken).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned when the stored token failed the local expiry check.
var ErrTokenExpired = errors.New("bearer token expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrTokenMalformed is returned when the stored token cannot be decoded.
var ErrTokenMalformed = errors.New("bearer token malformed", errors.CategoryBadInput).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeBadRequest)

// ErrSessionExpired is the error left on the session after a server-confirmed
// authentication failure forced a logout.
var ErrSessionExpired = errors.New("session expired, please sign in again", errors.CategoryAuth).
	WithTextCode(TextCodeAuthFailure).
	WithCode(errors.CodeUnauthorized)

// ErrBadResponse is returned when a success response is missing a field the
// client depends on (e.g. a login response without a token).
var ErrBadResponse = errors.New("unexpected response shape", errors.CategoryOperation).
	WithTextCode(TextCodeBadResponse).
	WithCode(errors.CodeInternal)

// authFailurePhrases mirror the backend's hard authentication-failure
// wording on 401 responses. A 401 whose message matches none of these is an
// authorization failure and must not clear the session.
var authFailurePhrases = []string{
	"no token provided",
	"invalid token",
	"token expired",
	"jwt expired",
	"jwt malformed",
	"invalid or expired token",
}

// IsAuthFailureMessage reports whether a 401 message denotes a hard
// authentication failure. Case-insensitive substring match, coupled to the
// server's exact wording until the backend grows a structured error code.
func IsAuthFailureMessage(message string) bool {
	if message == "" {
		return false
	}
	lowered := strings.ToLower(message)
	for _, phrase := range authFailurePhrases {
		if strings.Contains(lowered, phrase) {
			return true
		}
	}
	return false
}

// IsAlreadyAcceptedError will check for the idempotent invitation accept
func IsAlreadyAcceptedError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeAlreadyAccepted {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "already accepted")
}

// IsEmailNotVerifiedError will check for the sign-in error that should offer
// a resend-verification action.
func IsEmailNotVerifiedError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) && richErr.TextCode == TextCodeEmailNotVerified {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "email not verified")
}

// IsAuthenticationError reports whether err carries the auth failure text
// code, i.e. the session was cleared because of it.
func IsAuthenticationError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	return errors.As(err, &richErr) && richErr.TextCode == TextCodeAuthFailure
}
