// Package failure provides the classified error type returned by every SDK
// call and the translation from native status codes into it.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure so callers can react without parsing messages.
type Kind string

const (
	// KindIllegalState indicates an operation attempted outside the Active
	// lifecycle state. Raised locally, never by the engine.
	KindIllegalState Kind = "illegal_state"

	// KindInvalidArgument indicates malformed SDK parameters. Raised locally.
	KindInvalidArgument Kind = "invalid_argument"

	// KindEngine is a non-zero engine status without a more specific mapping.
	KindEngine Kind = "engine"

	// KindBadInput indicates the engine rejected the request content.
	KindBadInput Kind = "bad_input"

	// KindNotFound indicates a referenced record or entity does not exist.
	// Callers frequently treat it as an empty result.
	KindNotFound Kind = "not_found"

	// KindUnknownDataSource indicates a data source code not present in the
	// active configuration.
	KindUnknownDataSource Kind = "unknown_data_source"

	// KindConfiguration indicates an invalid or missing engine configuration.
	KindConfiguration Kind = "configuration"

	// KindRetryable indicates a transient engine condition.
	KindRetryable Kind = "retryable"

	// KindDatabaseConnectionLost indicates the engine lost its datastore
	// connection. Retryable.
	KindDatabaseConnectionLost Kind = "database_connection_lost"

	// KindRetryTimeoutExceeded indicates the engine gave up retrying. Retryable.
	KindRetryTimeoutExceeded Kind = "retry_timeout_exceeded"

	// KindDatabase indicates a datastore failure.
	KindDatabase Kind = "database"

	// KindLicense indicates a license problem.
	KindLicense Kind = "license"

	// KindNotInitialized indicates the native object was used before init.
	KindNotInitialized Kind = "not_initialized"

	// KindReplaceConflict indicates a compare-and-swap on the default
	// configuration lost a race.
	KindReplaceConflict Kind = "replace_conflict"

	// KindUnrecoverable indicates the engine is in a state that requires
	// the instance to be destroyed.
	KindUnrecoverable Kind = "unrecoverable"

	// KindInternal indicates a failure of the dispatch mechanism itself.
	KindInternal Kind = "internal"
)

// IsEngine reports whether kind originates from a native status code.
func (k Kind) IsEngine() bool {
	switch k {
	case KindIllegalState, KindInvalidArgument, KindInternal, "":
		return false
	}
	return true
}

// IsRetryable reports whether kind describes a transient condition.
func (k Kind) IsRetryable() bool {
	switch k {
	case KindRetryable, KindDatabaseConnectionLost, KindRetryTimeoutExceeded:
		return true
	}
	return false
}

// IsBadInput reports whether kind is bad input or one of its specializations.
func (k Kind) IsBadInput() bool {
	switch k {
	case KindBadInput, KindNotFound, KindUnknownDataSource:
		return true
	}
	return false
}

// Failure is the classified error returned across the SDK boundary.
// nolint:revive // Failure reads better than FailureError at call sites
type Failure struct {
	// Kind is the classification.
	Kind Kind `json:"kind"`

	// Code is the native error code, when one is known.
	Code *int64 `json:"code,omitempty"`

	// Message is the human-readable message.
	Message string `json:"message"`

	// Signature identifies the failing operation, e.g.
	// "Engine.AddRecord(dataSourceCode, recordID, recordDefinition, flags)".
	Signature string `json:"signature,omitempty"`

	// Parameters is the ordered snapshot of call arguments.
	Parameters *Parameters `json:"parameters,omitempty"`

	// Err is the underlying cause, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (f *Failure) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(f.Kind))
	if f.Code != nil {
		fmt.Fprintf(&b, " %d", *f.Code)
	}
	b.WriteString("] ")
	b.WriteString(f.Message)
	if f.Signature != "" {
		b.WriteString(" (operation=")
		b.WriteString(f.Signature)
		b.WriteString(")")
	}
	if f.Parameters != nil && f.Parameters.Len() > 0 {
		b.WriteString(" ")
		b.WriteString(f.Parameters.String())
	}
	if f.Err != nil {
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (f *Failure) Unwrap() error {
	return f.Err
}

// Is matches another *Failure by kind, and by code when the target has one.
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	if !ok {
		return false
	}
	if f.Kind != t.Kind {
		return false
	}
	if t.Code == nil {
		return true
	}
	return f.Code != nil && *f.Code == *t.Code
}

// ErrorCode returns the native code and whether one is present.
func (f *Failure) ErrorCode() (int64, bool) {
	if f.Code == nil {
		return 0, false
	}
	return *f.Code, true
}

// WithCode sets the native error code.
func (f *Failure) WithCode(code int64) *Failure {
	f.Code = &code
	return f
}

// WithSignature sets the operation signature.
func (f *Failure) WithSignature(signature string) *Failure {
	f.Signature = signature
	return f
}

// WithParameters attaches a parameter snapshot.
func (f *Failure) WithParameters(p *Parameters) *Failure {
	f.Parameters = p
	return f
}

// New creates a failure of the given kind.
func New(kind Kind, message string, err error) *Failure {
	return &Failure{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// IllegalState creates an illegal-state failure.
func IllegalState(message string) *Failure {
	return New(KindIllegalState, message, nil)
}

// InvalidArgument creates an invalid-argument failure.
func InvalidArgument(message string, err error) *Failure {
	return New(KindInvalidArgument, message, err)
}

// Internal creates an internal failure wrapping err.
func Internal(message string, err error) *Failure {
	return New(KindInternal, message, err)
}

// KindOf returns the kind of err, or "" when err is not a *Failure.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}

// IsIllegalState returns true if err is an illegal-state failure.
func IsIllegalState(err error) bool {
	return KindOf(err) == KindIllegalState
}

// IsInvalidArgument returns true if err is an invalid-argument failure.
func IsInvalidArgument(err error) bool {
	return KindOf(err) == KindInvalidArgument
}

// IsInternal returns true if err is an internal failure.
func IsInternal(err error) bool {
	return KindOf(err) == KindInternal
}

// IsEngine returns true if err came from a native status code.
func IsEngine(err error) bool {
	return KindOf(err).IsEngine()
}

// IsNotFound returns true if err is a not-found failure.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsUnknownDataSource returns true if err is an unknown-data-source failure.
func IsUnknownDataSource(err error) bool {
	return KindOf(err) == KindUnknownDataSource
}

// IsBadInput returns true if err is bad input, including not-found and
// unknown-data-source.
func IsBadInput(err error) bool {
	return KindOf(err).IsBadInput()
}

// IsRetryable returns true if the failed call may succeed when repeated.
func IsRetryable(err error) bool {
	return KindOf(err).IsRetryable()
}
