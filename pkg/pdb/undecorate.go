package pdb

import (
	"strings"
)

const importPrefix = "__imp_"

// Undecorate returns the name-only form of a decorated public symbol name:
// the qualified name of an MSVC C++ symbol, or a stdcall/fastcall name
// without its argument-size suffix. Names it cannot decode are returned
// unchanged.
func Undecorate(name string) string {
	switch {
	case name == "":
		return ""
	case strings.HasPrefix(name, importPrefix) && len(name) > len(importPrefix):
		return importPrefix + Undecorate(name[len(importPrefix):])
	case name[0] == '?':
		if q := qualifiedName(name); q != "" {
			return q
		}
		return name
	case name[0] == '_' || name[0] == '@':
		if base, ok := stripArgSize(name[1:]); ok {
			return base
		}
	}
	return name
}

// stripArgSize removes a trailing "@<digits>". It reports false when the
// suffix is missing.
func stripArgSize(s string) (string, bool) {
	at := strings.LastIndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return s, false
	}
	for _, c := range s[at+1:] {
		if c < '0' || c > '9' {
			return s, false
		}
	}
	return s[:at], true
}

func qualifiedName(name string) string {
	u := &undecorator{input: name, pos: 1}
	return u.qualifiedName()
}

type undecorator struct {
	input string
	pos   int
	names []string // back-reference table
}

func (u *undecorator) peek() byte {
	if u.pos < len(u.input) {
		return u.input[u.pos]
	}
	return 0
}

// qualifiedName reads name fragments up to the "@@" terminator. Fragments are
// encoded innermost first.
func (u *undecorator) qualifiedName() string {
	var parts []string
	for u.pos < len(u.input) {
		c := u.input[u.pos]
		switch {
		case c == '@':
			u.pos++
			if u.peek() == '@' {
				u.pos++
				return joinReversed(parts)
			}
			if len(parts) > 0 && u.pos < len(u.input) && !isFragmentStart(u.peek()) {
				// a single '@' after the last fragment closes the name
				return joinReversed(parts)
			}
		case c >= '0' && c <= '9':
			u.pos++
			if idx := int(c - '0'); idx < len(u.names) {
				parts = append(parts, u.names[idx])
			}
		case c == '?':
			u.pos++
			if u.peek() == '$' {
				u.pos++
				parts = append(parts, u.template())
				continue
			}
			if s := u.special(); s != "" {
				parts = append(parts, s)
			}
		default:
			s := u.fragment()
			if s == "" {
				return joinReversed(parts)
			}
			if len(u.names) < 10 {
				u.names = append(u.names, s)
			}
			parts = append(parts, s)
		}
	}
	return joinReversed(parts)
}

func isFragmentStart(c byte) bool {
	return c == '?' || c == '_' || (c >= '0' && c <= '9') ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func (u *undecorator) fragment() string {
	start := u.pos
	for u.pos < len(u.input) && u.input[u.pos] != '@' && u.input[u.pos] != '?' {
		u.pos++
	}
	return u.input[start:u.pos]
}

// template reads "?$name@args@" and keeps only the template name. The
// argument list is skipped.
func (u *undecorator) template() string {
	name := u.fragment()
	if u.peek() == '@' {
		u.pos++
	}
	u.skipTemplateArgs()
	if len(u.names) < 10 {
		u.names = append(u.names, name)
	}
	return name
}

func (u *undecorator) skipTemplateArgs() {
	for u.pos < len(u.input) {
		c := u.input[u.pos]
		u.pos++
		switch c {
		case '@':
			return
		case 'V', 'U', 'T':
			u.className()
		case 'W':
			u.pos++ // enum base type
			u.className()
		case '_':
			u.pos++
		case '?':
			if u.peek() == '$' {
				u.pos++
				u.fragment()
				if u.peek() == '@' {
					u.pos++
				}
				u.skipTemplateArgs()
			}
		case '$':
			// $0 and $1 carry an encoded constant or symbol
			if u.peek() == '0' || u.peek() == '1' {
				u.pos++
				u.encodedNumber()
			}
		}
	}
}

// className skips a qualified class name used as a template argument.
func (u *undecorator) className() {
	saved := u.names
	u.names = nil
	u.qualifiedName()
	u.names = saved
}

func (u *undecorator) encodedNumber() {
	if c := u.peek(); c == '?' {
		u.pos++
	}
	if c := u.peek(); c >= '0' && c <= '9' {
		u.pos++
		return
	}
	for u.pos < len(u.input) && u.input[u.pos] != '@' {
		u.pos++
	}
	u.pos++
}

// special decodes a "?x" operator code. Constructors and destructors take
// the name of the enclosing class, which follows the code.
func (u *undecorator) special() string {
	if u.pos >= len(u.input) {
		return ""
	}
	c := u.input[u.pos]
	u.pos++

	switch c {
	case '0', '1':
		cls := u.peekFragment()
		if c == '1' {
			return "~" + cls
		}
		return cls
	case '_':
		if u.pos >= len(u.input) {
			return ""
		}
		c2 := u.input[u.pos]
		u.pos++
		if s, ok := extendedOperators[c2]; ok {
			return s
		}
		return ""
	}
	if s, ok := operators[c]; ok {
		return s
	}
	return ""
}

// peekFragment returns the next name fragment without consuming it.
func (u *undecorator) peekFragment() string {
	end := u.pos
	for end < len(u.input) && u.input[end] != '@' && u.input[end] != '?' {
		end++
	}
	return u.input[u.pos:end]
}

var operators = map[byte]string{
	'2': "operator new",
	'3': "operator delete",
	'4': "operator=",
	'5': "operator>>",
	'6': "operator<<",
	'7': "operator!",
	'8': "operator==",
	'9': "operator!=",
	'A': "operator[]",
	'B': "operator cast",
	'C': "operator->",
	'D': "operator*",
	'E': "operator++",
	'F': "operator--",
	'G': "operator-",
	'H': "operator+",
	'I': "operator&",
	'J': "operator->*",
	'K': "operator/",
	'L': "operator%",
	'M': "operator<",
	'N': "operator<=",
	'O': "operator>",
	'P': "operator>=",
	'Q': "operator,",
	'R': "operator()",
	'S': "operator~",
	'T': "operator^",
	'U': "operator|",
	'V': "operator&&",
	'W': "operator||",
	'X': "operator*=",
	'Y': "operator+=",
	'Z': "operator-=",
}

var extendedOperators = map[byte]string{
	'0': "operator/=",
	'1': "operator%=",
	'2': "operator>>=",
	'3': "operator<<=",
	'4': "operator&=",
	'5': "operator|=",
	'6': "operator^=",
	'7': "`vftable'",
	'8': "`vbtable'",
	'E': "`dynamic initializer'",
	'F': "`dynamic atexit destructor'",
	'U': "operator new[]",
	'V': "operator delete[]",
}

func joinReversed(parts []string) string {
	var b strings.Builder
	for i := len(parts) - 1; i >= 0; i-- {
		b.WriteString(parts[i])
		if i > 0 {
			b.WriteString("::")
		}
	}
	return b.String()
}
