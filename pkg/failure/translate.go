package failure

import (
	"fmt"
	"strconv"
	"strings"
)

// ExceptionSource is the native last-error side channel.
type ExceptionSource interface {
	LastExceptionCode() int64
	LastException() string
	ClearLastException()
}

// Native error codes with a dedicated kind. Codes not listed fall back to
// the ranges in classify, then to KindEngine.
var codeKinds = map[int64]Kind{
	2:    KindBadInput,
	7:    KindBadInput,
	10:   KindRetryTimeoutExceeded,
	14:   KindConfiguration,
	19:   KindConfiguration,
	20:   KindConfiguration,
	21:   KindConfiguration,
	22:   KindBadInput,
	23:   KindBadInput,
	24:   KindBadInput,
	25:   KindBadInput,
	26:   KindBadInput,
	27:   KindNotFound,
	32:   KindNotFound,
	33:   KindNotFound,
	37:   KindNotFound,
	48:   KindNotInitialized,
	49:   KindNotInitialized,
	50:   KindNotInitialized,
	51:   KindBadInput,
	53:   KindNotInitialized,
	54:   KindRetryable,
	87:   KindBadInput,
	88:   KindBadInput,
	999:  KindLicense,
	1006: KindDatabaseConnectionLost,
	1007: KindDatabaseConnectionLost,
	2207: KindUnknownDataSource,
	2209: KindUnknownDataSource,
	7221: KindConfiguration,
	7245: KindReplaceConflict,
	9000: KindLicense,
}

func classify(code int64) Kind {
	if k, ok := codeKinds[code]; ok {
		return k
	}
	switch {
	case code >= 1000 && code < 1100:
		return KindDatabase
	case code >= 2000 && code < 3000:
		return KindBadInput
	case code >= 7200 && code < 7300:
		return KindConfiguration
	case code >= 9000 && code < 9100:
		return KindLicense
	case code >= 8000 && code < 8100:
		return KindUnrecoverable
	}
	return KindEngine
}

// KindForCode returns the kind a native error code maps to.
func KindForCode(code int64) Kind {
	return classify(code)
}

// ParseCode extracts a leading "NNNNE|" code from a native message. It
// returns the code, the remaining message and whether a code was found.
func ParseCode(message string) (int64, string, bool) {
	head, rest, ok := strings.Cut(message, "|")
	if !ok {
		return 0, message, false
	}
	head = strings.TrimSpace(head)
	head = strings.TrimRight(head, "EWIewi")
	if head == "" {
		return 0, message, false
	}
	code, err := strconv.ParseInt(head, 10, 64)
	if err != nil {
		return 0, message, false
	}
	return code, strings.TrimSpace(rest), true
}

// Translate converts a native status into an error. It returns nil when
// status is 0. A nativeCode of 0 is treated as unknown, in which case the
// code is recovered from the message prefix when present.
func Translate(status, nativeCode int64, nativeMessage, signature string, params *Parameters) error {
	if status == 0 {
		return nil
	}

	message := strings.TrimSpace(nativeMessage)
	code := nativeCode
	if code == 0 {
		if parsed, rest, ok := ParseCode(message); ok {
			code = parsed
			message = rest
		}
	} else if parsed, rest, ok := ParseCode(message); ok && parsed == code {
		message = rest
	}

	if message == "" {
		message = fmt.Sprintf("native call returned status %d", status)
	}

	f := &Failure{
		Kind:       KindEngine,
		Message:    message,
		Signature:  signature,
		Parameters: params,
	}
	if code != 0 {
		f.Kind = classify(code)
		f.WithCode(code)
	}
	return f
}

// FromNative reads and clears the native side channel, then translates.
// The side channel is only consulted for non-zero status.
func FromNative(status int64, src ExceptionSource, signature string, params *Parameters) error {
	if status == 0 {
		return nil
	}
	var (
		code    int64
		message string
	)
	if src != nil {
		code = src.LastExceptionCode()
		message = src.LastException()
		src.ClearLastException()
	}
	return Translate(status, code, message, signature, params)
}
