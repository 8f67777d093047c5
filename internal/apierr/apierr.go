// Package apierr defines the typed errors raised by the auth core and the
// services around it. Each error carries enough detail to be rendered as an
// HTTP error payload without the caller knowing about HTTP.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for status mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindInvalidToken
	KindExpiredToken
	KindBadCredentials
	KindUnauthenticated
	KindAccountNotVerified
	KindDuplicateAccount
	KindForbidden
	KindNotFound
	KindUnsupported
)

// Code is the stable machine readable error code sent to clients.
type Code string

const (
	CodeDataStructureInvalid    Code = "DATA_STRUCTURE_INVALID"
	CodeEmailSendFailed         Code = "EMAIL_SEND_FAILED"
	CodeEmailUsernameTaken      Code = "EMAIL_USERNAME_TAKEN"
	CodeGeneralError            Code = "GENERAL_ERROR"
	CodeInternalServerError     Code = "INTERNAL_SERVER_ERROR"
	CodeParticipantsPresent     Code = "PARTICIPANTS_PRESENT"
	CodeResourceAccessDenied    Code = "RESOURCE_ACCESS_DENIED"
	CodeResourceNotFound        Code = "RESOURCE_NOT_FOUND"
	CodeTokenExpired            Code = "TOKEN_EXPIRED"
	CodeTokenInvalid            Code = "TOKEN_INVALID"
	CodeUnknownAccountState     Code = "UNKNOWN_ACCOUNT_STATE"
	CodeUnsupportedMediaType    Code = "UNSUPPORTED_MEDIA_TYPE"
	CodeUnsupportedOperation    Code = "UNSUPPORTED_OPERATION"
	CodeVerifiedAccountRequired Code = "VERIFIED_ACCOUNT_REQUIRED"
	CodeInvalidCredentials      Code = "INVALID_CREDENTIALS"
	CodeAuthenticationRequired  Code = "AUTHENTICATION_REQUIRED"
)

// Reason narrows a forbidden error.
type Reason string

const (
	ReasonNone                Reason = ""
	ReasonNoMembership        Reason = "no_membership"
	ReasonNotAdmin            Reason = "not_admin"
	ReasonParticipantsPresent Reason = "participants_present"
)

// Error is the structured error shared by services and handlers.
type Error struct {
	Kind    Kind
	Code    Code
	Reason  Reason
	Message string
	Debug   string
	// Fields holds per-field validation messages keyed by field name.
	Fields map[string][]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status maps the error kind to an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindInvalidInput, KindInvalidToken, KindExpiredToken, KindDuplicateAccount, KindUnsupported:
		return http.StatusBadRequest
	case KindBadCredentials, KindUnauthenticated:
		return http.StatusUnauthorized
	case KindAccountNotVerified, KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// As extracts an *Error from err.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	if apiErr, ok := As(err); ok {
		return apiErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	apiErr, ok := As(err)
	return ok && apiErr.Kind == kind
}

func InvalidInput(message string, fields map[string][]string) *Error {
	return &Error{Kind: KindInvalidInput, Code: CodeDataStructureInvalid, Message: message, Fields: fields}
}

func InvalidToken(message, debug string) *Error {
	return &Error{Kind: KindInvalidToken, Code: CodeTokenInvalid, Message: message, Debug: debug}
}

func ExpiredToken(message, debug string) *Error {
	return &Error{Kind: KindExpiredToken, Code: CodeTokenExpired, Message: message, Debug: debug}
}

func BadCredentials() *Error {
	return &Error{Kind: KindBadCredentials, Code: CodeInvalidCredentials, Message: "Invalid username or password"}
}

func Unauthenticated() *Error {
	return &Error{Kind: KindUnauthenticated, Code: CodeAuthenticationRequired, Message: "Authentication is required"}
}

func AccountNotVerified() *Error {
	return &Error{
		Kind:    KindAccountNotVerified,
		Code:    CodeVerifiedAccountRequired,
		Message: "Account is not verified",
		Fields:  map[string][]string{"accountState": {"User has not verified their account"}},
	}
}

func DuplicateAccount(message, debug string) *Error {
	return &Error{Kind: KindDuplicateAccount, Code: CodeEmailUsernameTaken, Message: message, Debug: debug}
}

func Forbidden(reason Reason, message string) *Error {
	code := CodeResourceAccessDenied
	if reason == ReasonParticipantsPresent {
		code = CodeParticipantsPresent
	}
	return &Error{
		Kind:    KindForbidden,
		Code:    code,
		Reason:  reason,
		Message: message,
		Fields:  map[string][]string{"permission": {message}},
	}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeResourceNotFound, Message: message}
}

func Unsupported(code Code, message string) *Error {
	return &Error{Kind: KindUnsupported, Code: code, Message: message}
}

// Internal wraps an unexpected failure. The code defaults to INTERNAL_SERVER_ERROR.
func Internal(code Code, message string, err error) *Error {
	if code == "" {
		code = CodeInternalServerError
	}
	return &Error{Kind: KindInternal, Code: code, Message: message, Err: err}
}
