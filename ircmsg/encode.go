package ircmsg

import (
	"fmt"
	"sort"
	"strings"
)

// Encode encodes the Message into a raw protocol message string.
//
// The resulting string will have a trailing CRLF.
//
// If encoding the message would exceed the allowed maximum length (more than
// MaxLineLength bytes), we truncate and return as much as we can and return
// ErrTruncated. This truncated message may still be usable.
//
// It does not enforce command specific semantics.
func (m Message) Encode() (string, error) {
	s := ""

	if len(m.Tags) > 0 {
		s += "@" + encodeTags(m.Tags) + " "
	}

	if len(m.Prefix) > 0 {
		s += ":" + m.Prefix + " "
	}

	s += m.Command

	if len(s)+2 > MaxLineLength {
		return "", fmt.Errorf("message with only tags/prefix/command is too long")
	}

	truncated := false

	// Both RFC 1459 and RFC 2812 limit us to 15 parameters.
	if len(m.Params) > 15 {
		return "", fmt.Errorf("too many parameters")
	}

	for i, param := range m.Params {
		// We need to prefix the parameter with a colon in a few cases:
		//
		// 1) When there is a space in the parameter
		//
		// 2) When the first character is a colon
		//
		// 3) When this is the last parameter and it is empty. We do this to ensure
		// it is visible.
		if idx := strings.IndexAny(param, " "); idx != -1 ||
			(param != "" && param[0] == ':') ||
			param == "" {
			param = ":" + param

			// This must be the last parameter. There can only be one <trailing>.
			if i+1 != len(m.Params) {
				return "", fmt.Errorf(
					"parameter problem: ':' or ' ' outside last parameter")
			}
		}

		// If we add the parameter as is, do we exceed the maximum length?
		if len(s)+1+len(param)+2 > MaxLineLength {
			// Either we can truncate the parameter and include a portion of it, or
			// the parameter is too short to include at all. If it is too short to
			// include, then don't add the space separator either.
			lengthUsed := len(s) + 1 + 2
			lengthAvailable := MaxLineLength - lengthUsed

			if lengthAvailable > 0 {
				s += " " + param[0:lengthAvailable]
			}

			truncated = true
			break
		}

		s += " " + param
	}

	s += "\r\n"

	if truncated {
		return s, ErrTruncated
	}

	return s, nil
}

// encodeTags renders a tag map in the IRCv3 wire form. Keys are sorted so
// encoding is deterministic (the spec does not require a particular tag
// order on the wire, only round-tripping of the set).
func encodeTags(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := tags[k]
		if v == "" {
			parts = append(parts, k)
			continue
		}
		parts = append(parts, k+"="+escapeTagValue(v))
	}

	return strings.Join(parts, ";")
}

// escapeTagValue applies the IRCv3 tag value escaping table:
// ';' -> \: , ' ' -> \s , '\' -> \\ , CR -> \r , LF -> \n.
func escapeTagValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ';':
			b.WriteString(`\:`)
		case ' ':
			b.WriteString(`\s`)
		case '\\':
			b.WriteString(`\\`)
		case '\r':
			b.WriteString(`\r`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(s[i])
		}
	}

	return b.String()
}
