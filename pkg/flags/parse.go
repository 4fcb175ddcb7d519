package flags

import (
	"fmt"
	"strconv"
	"strings"
)

// Parse turns an expression such as "ENTITY_DEFAULT_FLAGS | WITH_INFO" into a
// mask. Terms may be separated by "|", "," or whitespace and may be flag
// names, composite names, or decimal/hex literals.
func Parse(expr string) (uint64, error) {
	fields := strings.FieldsFunc(expr, func(r rune) bool {
		return r == '|' || r == ',' || r == ' ' || r == '\t'
	})

	var raw uint64
	for _, term := range fields {
		if f, ok := Lookup(term); ok {
			raw |= uint64(f)
			continue
		}
		v, err := strconv.ParseUint(term, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("unknown flag %q", term)
		}
		raw |= v
	}
	return raw, nil
}

// MustParse is like Parse but panics on error. Intended for constants in
// tests and examples.
func MustParse(expr string) uint64 {
	raw, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return raw
}
