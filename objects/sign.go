package objects

import (
	"fmt"
	"strings"
)

// Sign is a structured identifier for any addressable symbol:
//
//	module_path::type_path.member[type_params](param_types)
//
// Each component is optional after its first divider. Signs are immutable
// once constructed; two signs are equal iff all component sequences are
// equal.
type Sign struct {
	module     []string
	types      []string
	member     string
	typeParams []string
	params     []string
	hasParams  bool
}

// ParseSign parses text into a Sign. A malformed signature is a loader
// error.
func ParseSign(text string) (Sign, error) {
	var sign Sign
	rest := text

	if i := strings.IndexByte(rest, '('); i >= 0 {
		if !strings.HasSuffix(rest, ")") {
			return sign, fmt.Errorf("malformed signature '%s': unterminated parameter list", text)
		}
		inner := rest[i+1 : len(rest)-1]
		rest = rest[:i]
		sign.hasParams = true
		if inner != "" {
			sign.params = splitTrim(inner)
		}
	}

	if i := strings.IndexByte(rest, '['); i >= 0 {
		if !strings.HasSuffix(rest, "]") {
			return sign, fmt.Errorf("malformed signature '%s': unterminated type parameter list", text)
		}
		inner := rest[i+1 : len(rest)-1]
		rest = rest[:i]
		if inner == "" {
			return sign, fmt.Errorf("malformed signature '%s': empty type parameter list", text)
		}
		sign.typeParams = splitTrim(inner)
	}

	if i := strings.Index(rest, "::"); i >= 0 {
		modulePart := rest[:i]
		rest = rest[i+2:]
		if modulePart != "" {
			sign.module = strings.Split(modulePart, ".")
		}
	}

	if rest == "" {
		return sign, fmt.Errorf("malformed signature '%s': missing member", text)
	}
	segments := strings.Split(rest, ".")
	sign.member = segments[len(segments)-1]
	if sign.member == "" {
		return sign, fmt.Errorf("malformed signature '%s': missing member", text)
	}
	for _, seg := range segments[:len(segments)-1] {
		if seg != "" {
			sign.types = append(sign.types, seg)
		}
	}
	return sign, nil
}

// MustParseSign parses text, panicking on malformed input. Reserved for
// signatures that are compile-time constants of the VM itself.
func MustParseSign(text string) Sign {
	sign, err := ParseSign(text)
	if err != nil {
		panic(err)
	}
	return sign
}

func splitTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// Module returns the dotted module path, empty when absent.
func (s Sign) Module() string {
	return strings.Join(s.module, ".")
}

// ModulePath returns the module path segments.
func (s Sign) ModulePath() []string {
	return s.module
}

// TypePath returns the type path segments.
func (s Sign) TypePath() []string {
	return s.types
}

// Member returns the member name, the last mandatory component.
func (s Sign) Member() string {
	return s.member
}

// TypeParams returns the declared type parameter names.
func (s Sign) TypeParams() []string {
	return s.typeParams
}

// Params returns the parameter type signatures; HasParams distinguishes
// `member` from `member()`.
func (s Sign) Params() []string {
	return s.params
}

func (s Sign) HasParams() bool {
	return s.hasParams
}

// Elements returns every name segment in order: module path, type path and
// member.
func (s Sign) Elements() []string {
	out := make([]string, 0, len(s.module)+len(s.types)+1)
	out = append(out, s.module...)
	out = append(out, s.types...)
	if s.member != "" {
		out = append(out, s.member)
	}
	return out
}

// Equal reports component-wise equality.
func (s Sign) Equal(other Sign) bool {
	return equalSeq(s.module, other.module) &&
		equalSeq(s.types, other.types) &&
		s.member == other.member &&
		equalSeq(s.typeParams, other.typeParams) &&
		s.hasParams == other.hasParams &&
		equalSeq(s.params, other.params)
}

func equalSeq(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// String reconstructs the canonical text form.
func (s Sign) String() string {
	var sb strings.Builder
	if len(s.module) > 0 {
		sb.WriteString(strings.Join(s.module, "."))
		sb.WriteString("::")
	}
	for _, t := range s.types {
		sb.WriteString(t)
		sb.WriteByte('.')
	}
	sb.WriteString(s.member)
	if len(s.typeParams) > 0 {
		sb.WriteByte('[')
		sb.WriteString(strings.Join(s.typeParams, ","))
		sb.WriteByte(']')
	}
	if s.hasParams {
		sb.WriteByte('(')
		sb.WriteString(strings.Join(s.params, ","))
		sb.WriteByte(')')
	}
	return sb.String()
}
