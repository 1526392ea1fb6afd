package manifest

import (
	"fmt"
	"sort"
	"strings"
)

// Encode renders entries as a single-line object: {"name":"digest",...}.
// Keys are sorted so identical manifests produce identical files.
func Encode(entries map[string]string) []byte {
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		writeString(&b, name)
		b.WriteByte(':')
		writeString(&b, entries[name])
	}
	b.WriteByte('}')
	return []byte(b.String())
}

func writeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
}

type parseState int

const (
	expectObject parseState = iota
	expectKeyOrEnd
	expectKey
	inKey
	expectColon
	expectValue
	inValue
	expectCommaOrEnd
	done
)

// Parse reads the restricted manifest grammar: one flat object whose keys and
// values are strings. Whitespace between tokens is ignored; inside strings only
// \" and \\ escapes are recognised.
func Parse(data []byte) (map[string]string, error) {
	entries := make(map[string]string)
	state := expectObject
	escaped := false
	var key, value strings.Builder

	// Bytes, not runes: names are raw file names and need not be valid UTF-8
	for pos := 0; pos < len(data); pos++ {
		c := data[pos]
		if state != inKey && state != inValue && isSpace(c) {
			continue
		}

		switch state {
		case expectObject:
			if c != '{' {
				return nil, syntaxError(pos, c, "'{'")
			}
			state = expectKeyOrEnd

		case expectKeyOrEnd, expectKey:
			switch {
			case c == '"':
				key.Reset()
				state = inKey
			case c == '}' && state == expectKeyOrEnd:
				state = done
			default:
				return nil, syntaxError(pos, c, "a quoted key")
			}

		case inKey, inValue:
			buf := &key
			if state == inValue {
				buf = &value
			}
			switch {
			case escaped:
				if c != '"' && c != '\\' {
					return nil, syntaxError(pos, c, `'"' or '\' after escape`)
				}
				buf.WriteByte(c)
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				if state == inKey {
					state = expectColon
				} else {
					entries[key.String()] = value.String()
					state = expectCommaOrEnd
				}
			default:
				buf.WriteByte(c)
			}

		case expectColon:
			if c != ':' {
				return nil, syntaxError(pos, c, "':'")
			}
			state = expectValue

		case expectValue:
			if c != '"' {
				return nil, syntaxError(pos, c, "a quoted value")
			}
			value.Reset()
			state = inValue

		case expectCommaOrEnd:
			switch c {
			case ',':
				state = expectKey
			case '}':
				state = done
			default:
				return nil, syntaxError(pos, c, "',' or '}'")
			}

		case done:
			return nil, syntaxError(pos, c, "end of input")
		}
	}

	if state != done {
		return nil, fmt.Errorf("manifest: unexpected end of input")
	}
	return entries, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func syntaxError(pos int, c byte, want string) error {
	return fmt.Errorf("manifest: unexpected %q at offset %d, expected %s", c, pos, want)
}
