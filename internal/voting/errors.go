package voting

import "errors"

// Kind classifies a failed operation.
type Kind string

const (
	KindNone                 Kind = ""
	KindValidation           Kind = "validation"
	KindAuth                 Kind = "auth"
	KindBiometricUnavailable Kind = "biometric_unavailable"
	KindBiometricRejected    Kind = "biometric_rejected"
	KindNetwork              Kind = "network"
	KindServerRejected       Kind = "server_rejected"
	KindPreconditionFailed   Kind = "precondition_failed"
	KindStoreUnavailable     Kind = "store_unavailable"
	KindUnknown              Kind = "unknown"
)

// Error is the failure returned by every Machine operation. Message is meant
// to be shown to the user as is.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinels below, so errors.Is(err, ErrPreconditionFailed)
// holds for any precondition failure.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrValidation           = &Error{Kind: KindValidation}
	ErrAuth                 = &Error{Kind: KindAuth}
	ErrBiometricUnavailable = &Error{Kind: KindBiometricUnavailable}
	ErrBiometricRejected    = &Error{Kind: KindBiometricRejected}
	ErrNetwork              = &Error{Kind: KindNetwork}
	ErrServerRejected       = &Error{Kind: KindServerRejected}
	ErrPreconditionFailed   = &Error{Kind: KindPreconditionFailed}
	ErrStoreUnavailable     = &Error{Kind: KindStoreUnavailable}
)

// KindOf returns the kind carried by err, KindNone for nil and KindUnknown
// for errors that did not come from this package.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// User-facing messages.
const (
	msgFillAllFields       = "Please fill in all fields"
	msgPasswordMismatch    = "Passwords do not match"
	msgNetwork             = "Network error occurred"
	msgRequestFailed       = "Could not send the request"
	msgLoginFailed         = "Login failed"
	msgRegistrationFailed  = "Registration failed"
	msgInvalidCredentials  = "Invalid credentials"
	msgSessionExpired      = "Your session has expired, please log in again"
	msgLoginRequired       = "Please log in first"
	msgSessionNotSaved     = "Could not save your session on this device"
	msgBiometricMissing    = "Biometric authentication is not available on this device"
	msgBiometricFailed     = "Biometric authentication failed"
	msgAlreadyRegistered   = "You are already registered as a voter"
	msgVoterRegFailed      = "Failed to register as voter"
	msgVoterTokenNotSaved  = "Could not save the voter credential on this device"
	msgRegisterFirst       = "Please register as a voter first"
	msgAlreadyVoted        = "You have already voted"
	msgChooseCandidate     = "Choose a candidate to vote for"
	msgVoteFailed          = "Failed to cast vote"
	msgStatusFailed        = "Failed to fetch voter status"
	msgCandidatesFailed    = "Failed to fetch candidates"
	msgLogoutStoreFailed   = "Logged out, but stored credentials could not be removed"
	msgMalformedAuthAnswer = "Unexpected response from server"
)
