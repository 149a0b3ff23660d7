package sqldb

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gandaldf/sqlfrag"
)

// flavor selects placeholder rendering and a few dialect-specific parsing
// behaviors.
type flavor uint8

const (
	flavorSQLite flavor = iota
	flavorMySQL
	flavorPostgres
)

func flavorOf(name string) flavor {
	switch name {
	case "mysql":
		return flavorMySQL
	case "postgres":
		return flavorPostgres
	}
	return flavorSQLite
}

// template is a statement whose $name placeholders were rewritten to the
// driver's native form. names lists the param bound to each native
// placeholder, in argument order.
type template struct {
	sql   string
	names []string
}

// args resolves the arguments of t from params.
func (t *template) args(params sqlfrag.Params) ([]any, error) {
	if len(t.names) == 0 {
		return nil, nil
	}
	out := make([]any, len(t.names))
	for i, name := range t.names {
		v, ok := params[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrParamMissing, name)
		}
		out[i] = v
	}
	return out, nil
}

// compile walks q and rewrites every $name placeholder outside strings,
// quoted identifiers, comments and (Postgres) dollar-quoted bodies. SQLite and MySQL get
// one ? per occurrence; Postgres gets $N, reusing N for a repeated name.
func compile(fl flavor, q string, config Config) (*template, error) {
	t := &template{}
	var buf strings.Builder
	buf.Grow(len(q) + 16)

	var seen map[string]int
	if fl == flavorPostgres {
		seen = make(map[string]int)
	}

	const (
		sText = iota
		sSQ   // '...'
		sDQ   // "..."
		sBT   // `...`
		sLC   // line comment -- or # (MySQL only)
		sBC   // block comment /* ... */
		sDQD  // $tag$ ... $tag$
	)
	state := sText
	var dqTag string

	for i := 0; i < len(q); {
		c := q[i]

		switch state {
		case sText:
			if c == '-' && i+1 < len(q) && q[i+1] == '-' {
				state = sLC
				buf.WriteString("--")
				i += 2
				continue
			}
			if c == '#' && fl == flavorMySQL {
				state = sLC
				buf.WriteByte('#')
				i++
				continue
			}
			if c == '/' && i+1 < len(q) && q[i+1] == '*' {
				state = sBC
				buf.WriteString("/*")
				i += 2
				continue
			}
			if c == '\'' {
				state = sSQ
				buf.WriteByte(c)
				i++
				continue
			}
			if c == '"' {
				state = sDQ
				buf.WriteByte(c)
				i++
				continue
			}
			if c == '`' && fl != flavorPostgres {
				state = sBT
				buf.WriteByte(c)
				i++
				continue
			}
			if c != '$' {
				buf.WriteByte(c)
				i++
				continue
			}
			if tag, ok := readDollarTag(q[i:]); ok && fl == flavorPostgres {
				state = sDQD
				dqTag = tag
				buf.WriteString(tag)
				i += len(tag)
				continue
			}

			k := i + 1
			for k < len(q) && isAlphaNumUnderscore(q[k]) {
				k++
			}
			name := q[i+1 : k]
			if name == "" {
				buf.WriteByte(c)
				i++
				continue
			}
			if config.MaxNameLen > 0 && len(name) > config.MaxNameLen {
				return nil, fmt.Errorf("%w: %q (%d > %d)", ErrParamNameTooLong, name, len(name), config.MaxNameLen)
			}

			if fl == flavorPostgres {
				n, ok := seen[name]
				if !ok {
					t.names = append(t.names, name)
					n = len(t.names)
					seen[name] = n
				}
				buf.WriteByte('$')
				buf.WriteString(strconv.Itoa(n))
			} else {
				t.names = append(t.names, name)
				buf.WriteByte('?')
			}
			if config.MaxParams > 0 && len(t.names) > config.MaxParams {
				return nil, fmt.Errorf("%w: requested=%d, limit=%d", ErrTooManyParams, len(t.names), config.MaxParams)
			}
			i = k

		case sSQ:
			if c == '\\' && fl == flavorMySQL {
				buf.WriteByte(c)
				i++
				if i < len(q) {
					buf.WriteByte(q[i])
					i++
				}
				continue
			}
			buf.WriteByte(c)
			i++
			if c == '\'' {
				if i < len(q) && q[i] == '\'' {
					buf.WriteByte(q[i])
					i++
				} else {
					state = sText
				}
			}

		case sDQ:
			buf.WriteByte(c)
			i++
			if c == '"' {
				if i < len(q) && q[i] == '"' {
					buf.WriteByte(q[i])
					i++
				} else {
					state = sText
				}
			}

		case sBT:
			buf.WriteByte(c)
			i++
			if c == '`' {
				if i < len(q) && q[i] == '`' {
					buf.WriteByte(q[i])
					i++
				} else {
					state = sText
				}
			}

		case sLC:
			buf.WriteByte(c)
			i++
			if c == '\n' || c == '\r' {
				state = sText
			}

		case sBC:
			buf.WriteByte(c)
			i++
			if c == '*' && i < len(q) && q[i] == '/' {
				buf.WriteByte('/')
				i++
				state = sText
			}

		case sDQD:
			p := strings.Index(q[i:], dqTag)
			if p < 0 {
				buf.WriteString(q[i:])
				i = len(q)
			} else {
				buf.WriteString(q[i : i+p])
				buf.WriteString(dqTag)
				i += p + len(dqTag)
				dqTag = ""
				state = sText
			}
		}
	}

	t.sql = buf.String()
	return t, nil
}

// isAlphaNumUnderscore reports whether b is [A-Za-z0-9_] .
func isAlphaNumUnderscore(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9') || b == '_'
}

// readDollarTag detects a dollar-quoted opening tag ("$tag$" or "$$") at the
// start of s.
func readDollarTag(s string) (string, bool) {
	if len(s) < 2 || s[0] != '$' {
		return "", false
	}
	j := 1
	for j < len(s) && isAlphaNumUnderscore(s[j]) {
		j++
	}
	if j < len(s) && s[j] == '$' {
		return s[:j+1], true
	}
	return "", false
}
