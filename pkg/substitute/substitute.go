// Package substitute implements the job spec's single variable
// substitution grammar, used at every substitution site in
// the interpreter: cmd/hit argv, env-mod values, chdir operands, and
// append_to_file targets.
package substitute

import (
	"strings"

	"github.com/thewtex/hashdist/pkg/jobspec"
)

// Substitute expands `$NAME` and `${NAME}` references against env.
// `\$` yields a literal `$`; `\\` yields a literal `\`; any other
// backslash sequence passes through unmodified. `$$` always fails, since
// no variable may be named `$`. An unbound reference fails with
// *jobspec.UnknownVariableError.
//
// Substitute is deterministic and preserves every byte of the input that
// isn't part of a reference or a recognized escape.
func Substitute(s string, env *jobspec.Env) (string, error) {
	var out strings.Builder
	i := 0
	n := len(s)
	for i < n {
		c := s[i]
		switch {
		case c == '\\':
			if i+1 < n {
				switch s[i+1] {
				case '$':
					out.WriteByte('$')
					i += 2
					continue
				case '\\':
					out.WriteByte('\\')
					i += 2
					continue
				}
			}
			out.WriteByte('\\')
			i++
		case c == '$':
			name, consumed, err := readReference(s[i:])
			if err != nil {
				return "", err
			}
			value, ok := env.Get(name)
			if !ok {
				return "", &jobspec.UnknownVariableError{Name: name}
			}
			out.WriteString(value)
			i += consumed
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String(), nil
}

// readReference parses a `$NAME` or `${NAME}` reference starting at s[0]
// == '$'. It returns the referenced name and the number of bytes consumed
// from s. `$$` is rejected unconditionally, matching the original's
// string.Template-derived rule that no variable may be named `$`.
func readReference(s string) (name string, consumed int, err error) {
	if len(s) >= 2 && s[1] == '$' {
		return "", 0, &jobspec.UnknownVariableError{Name: "$"}
	}
	if len(s) >= 2 && s[1] == '{' {
		end := strings.IndexByte(s[2:], '}')
		if end < 0 {
			return "", 0, &jobspec.UnknownVariableError{Name: s[2:]}
		}
		name = s[2 : 2+end]
		return name, 2 + end + 1, nil
	}
	j := 1
	for j < len(s) && isIdentByte(s[j], j == 1) {
		j++
	}
	if j == 1 {
		// bare `$` followed by a non-identifier byte: treat the empty
		// name as unknown, matching Template's behavior of requiring at
		// least one identifier character.
		return "", 0, &jobspec.UnknownVariableError{Name: ""}
	}
	return s[1:j], j, nil
}

func isIdentByte(c byte, first bool) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		return true
	case c >= '0' && c <= '9':
		return !first
	default:
		return false
	}
}
