package failure

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

const (
	// RedactEnv toggles parameter redaction for the whole process. It is read
	// once, on first use.
	RedactEnv = "ERBRIDGE_REDACT_PARAMETERS"

	// Placeholder replaces redacted values.
	Placeholder = "<redacted>"
)

// Redactor replaces parameter values with Placeholder when enabled.
type Redactor struct {
	enabled bool
}

// NewRedactor returns a redactor with an explicit toggle.
func NewRedactor(enabled bool) Redactor {
	return Redactor{enabled: enabled}
}

// Enabled reports whether values are replaced.
func (r Redactor) Enabled() bool {
	return r.enabled
}

// Redact returns Placeholder when enabled, otherwise the textual form of v.
func (r Redactor) Redact(v any) string {
	if r.enabled {
		return Placeholder
	}
	return textOf(v)
}

var (
	processRedactor     Redactor
	processRedactorOnce sync.Once
)

// ProcessRedactor returns the redactor configured from RedactEnv.
func ProcessRedactor() Redactor {
	processRedactorOnce.Do(func() {
		processRedactor = NewRedactor(truthy(os.Getenv(RedactEnv)))
	})
	return processRedactor
}

// Redact applies the process-wide redaction toggle to v.
func Redact(v any) string {
	return ProcessRedactor().Redact(v)
}

func truthy(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	switch strings.ToLower(s) {
	case "yes", "y", "on", "enabled":
		return true
	}
	return false
}

func textOf(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case []byte:
		return string(val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
