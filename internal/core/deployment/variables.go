package deployment

import (
	"strings"
)

// =============================================================================
// Variable Interpolation
// =============================================================================

// Env is the layered variable source used for interpolation.
// Process wins over File, so shell exports override .env entries.
type Env struct {
	Process map[string]string
	File    map[string]string
}

// Lookup returns the value of name, process environment first.
func (e Env) Lookup(name string) (string, bool) {
	if v, ok := e.Process[name]; ok {
		return v, true
	}
	v, ok := e.File[name]
	return v, ok
}

// reference is one parsed ${...} occurrence.
type reference struct {
	name       string
	defaultVal string
	message    string
	hasDefault bool
	hasError   bool
	length     int // bytes consumed, including ${ and }
}

// Interpolate replaces ${NAME}, ${NAME:-default} and ${NAME:?message}
// references in value, scanning left to right.
//
// Behavior:
//   - NAME must match [A-Z0-9_]+; anything else is copied through untouched
//   - A set variable is replaced by its value, even when empty
//   - An unset variable with a default clause is replaced by the default, verbatim
//   - An unset variable with an error clause returns *MissingVariableError
//   - An unset variable with no clause is left in place and scanning stops
//   - Substituted text is never scanned again
//
// Examples:
//
//	Interpolate("${X}", Env{File: map[string]string{"X": "v"}})           // "v"
//	Interpolate("${X:-d}", Env{})                                          // "d"
//	Interpolate("a${X}b${Y:-y}c", Env{Process: map[string]string{"X": "1"}}) // "a1byc"
//	Interpolate("${X:?err}", Env{})                                        // error containing "err"
func Interpolate(value string, env Env) (string, error) {
	if !strings.Contains(value, "${") {
		return value, nil
	}

	var b strings.Builder
	rest := value
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}

		ref, ok := parseReference(rest[start:])
		if !ok {
			b.WriteString(rest[:start+1])
			rest = rest[start+1:]
			continue
		}

		b.WriteString(rest[:start])
		if v, found := env.Lookup(ref.name); found {
			b.WriteString(v)
		} else {
			switch {
			case ref.hasDefault:
				b.WriteString(ref.defaultVal)
			case ref.hasError:
				return "", &MissingVariableError{Name: ref.name, Message: ref.message}
			default:
				b.WriteString(rest[start:])
				return b.String(), nil
			}
		}
		rest = rest[start+ref.length:]
	}
}

// InterpolateAll resolves every entry of values, returning a new slice.
func InterpolateAll(values []string, env Env) ([]string, error) {
	if values == nil {
		return nil, nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		resolved, err := Interpolate(v, env)
		if err != nil {
			return nil, err
		}
		out[i] = resolved
	}
	return out, nil
}

// InterpolateMap resolves every value of values, returning a new map.
func InterpolateMap(values map[string]string, env Env) (map[string]string, error) {
	if values == nil {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		resolved, err := Interpolate(v, env)
		if err != nil {
			return nil, err
		}
		out[k] = resolved
	}
	return out, nil
}

// parseReference parses s, which starts with "${".
func parseReference(s string) (reference, bool) {
	i := 2
	for i < len(s) && isNameByte(s[i]) {
		i++
	}
	if i == 2 || i >= len(s) {
		return reference{}, false
	}

	ref := reference{name: s[2:i]}
	switch {
	case s[i] == '}':
		ref.length = i + 1
		return ref, true
	case strings.HasPrefix(s[i:], ":-"):
		ref.hasDefault = true
		i += 2
	case s[i] == '-':
		ref.hasDefault = true
		i++
	case strings.HasPrefix(s[i:], ":?"):
		ref.hasError = true
		i += 2
	default:
		return reference{}, false
	}

	end := strings.IndexByte(s[i:], '}')
	if end < 0 {
		return reference{}, false
	}
	if ref.hasDefault {
		ref.defaultVal = s[i : i+end]
	} else {
		ref.message = s[i : i+end]
	}
	ref.length = i + end + 1
	return ref, true
}

func isNameByte(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
}
