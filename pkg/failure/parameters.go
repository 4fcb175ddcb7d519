package failure

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Parameter is one named call argument captured for diagnostics.
type Parameter struct {
	Name  string
	Value string
}

// Param captures a value verbatim using its textual form.
func Param(name string, value any) Parameter {
	return Parameter{Name: name, Value: textOf(value)}
}

// Redacted captures a value through the process-wide redaction toggle.
func Redacted(name string, value any) Parameter {
	return Parameter{Name: name, Value: Redact(value)}
}

// Parameters is an immutable, insertion-ordered name/value snapshot.
type Parameters struct {
	keys   []string
	values map[string]string
}

// NewParameters builds a snapshot from params in order. When a name repeats,
// the first occurrence keeps the bare name and later ones get "-1", "-2", ...
// appended, skipping any suffix already in use.
func NewParameters(params ...Parameter) *Parameters {
	p := &Parameters{
		keys:   make([]string, 0, len(params)),
		values: make(map[string]string, len(params)),
	}

	for _, param := range params {
		key := param.Name
		if _, exists := p.values[key]; exists {
			for i := 1; ; i++ {
				candidate := fmt.Sprintf("%s-%d", param.Name, i)
				if _, taken := p.values[candidate]; !taken {
					key = candidate
					break
				}
			}
		}
		p.keys = append(p.keys, key)
		p.values[key] = param.Value
	}

	return p
}

// Len returns the number of parameters.
func (p *Parameters) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// Keys returns the parameter names in insertion order.
func (p *Parameters) Keys() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Get returns the value for name.
func (p *Parameters) Get(name string) (string, bool) {
	if p == nil {
		return "", false
	}
	v, ok := p.values[name]
	return v, ok
}

// Each calls fn for each parameter in order.
func (p *Parameters) Each(fn func(name, value string)) {
	if p == nil {
		return
	}
	for _, k := range p.keys {
		fn(k, p.values[k])
	}
}

// String renders "{name=value, ...}".
func (p *Parameters) String() string {
	if p == nil {
		return "{}"
	}
	parts := make([]string, 0, len(p.keys))
	for _, k := range p.keys {
		parts = append(parts, k+"="+p.values[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// MarshalJSON encodes the parameters as a JSON object preserving order.
func (p *Parameters) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}
