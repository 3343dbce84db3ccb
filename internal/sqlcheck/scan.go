package sqlcheck

import "strings"

type scanMode int

const (
	modeAny scanMode = iota
	modeSingleToken
)

// scan walks fragment left to right and calls visit for every identifier.
// It follows the shape of sqlite3GetToken: identifiers, quoted identifiers
// ("x", `x`, [x]), string literals ('x'), line and block comments. Any
// other byte is skipped. Parentheses outside quotes and comments must
// balance, so a fragment can never close the group it is embedded in.
// Structural failures return before visit is called for later tokens.
func scan(fragment string, mode scanMode, visit func(token string) error) error {
	pos := 0
	depth := 0
	n := len(fragment)
	for pos < n {
		ch := fragment[pos]
		switch {
		case isIdentStart(ch):
			start := pos
			pos++
			for pos < n && isIdentPart(fragment[pos]) {
				pos++
			}
			if err := visit(fragment[start:pos]); err != nil {
				return err
			}

		case ch == '\'' || ch == '"' || ch == '`':
			end, ok := closingQuote(fragment, pos+1, ch)
			if !ok {
				return &InvalidInputError{Reason: "Unterminated quote", Fragment: fragment}
			}
			body := fragment[pos+1 : end]
			pos = end + 1
			if ch == '\'' {
				// A string literal is data, never a column name.
				if mode == modeSingleToken {
					return &InvalidInputError{Reason: "Non-token detected", Fragment: fragment}
				}
				continue
			}
			q := string(ch)
			if err := visit(strings.ReplaceAll(body, q+q, q)); err != nil {
				return err
			}

		case ch == '[':
			end := strings.IndexByte(fragment[pos+1:], ']')
			if end < 0 {
				return &InvalidInputError{Reason: "Unterminated quote", Fragment: fragment}
			}
			token := fragment[pos+1 : pos+1+end]
			pos += end + 2
			if err := visit(token); err != nil {
				return err
			}

		case ch == '-' && peek(fragment, pos+1) == '-':
			end := strings.IndexByte(fragment[pos+2:], '\n')
			if end < 0 {
				// A fragment may not end inside a line comment.
				return &InvalidInputError{Reason: "Unterminated comment", Fragment: fragment}
			}
			pos += end + 3

		case ch == '/' && peek(fragment, pos+1) == '*':
			end := strings.Index(fragment[pos+2:], "*/")
			if end < 0 {
				return &InvalidInputError{Reason: "Unterminated comment", Fragment: fragment}
			}
			pos += end + 4

		case ch == ';':
			return &InvalidInputError{Reason: "Semicolon is not allowed", Fragment: fragment}

		case ch == '(':
			depth++
			pos++

		case ch == ')':
			depth--
			if depth < 0 {
				return &InvalidInputError{Reason: "Unbalanced parentheses", Fragment: fragment}
			}
			pos++

		default:
			pos++
		}
	}
	if depth != 0 {
		return &InvalidInputError{Reason: "Unbalanced parentheses", Fragment: fragment}
	}
	return nil
}

// closingQuote returns the index of the quote closing a token that opened
// just before from. A doubled quote is an escaped quote, not a terminator.
func closingQuote(s string, from int, q byte) (int, bool) {
	for {
		i := strings.IndexByte(s[from:], q)
		if i < 0 {
			return 0, false
		}
		at := from + i
		if peek(s, at+1) != q {
			return at, true
		}
		from = at + 2
		if from > len(s) {
			return 0, false
		}
	}
}

func peek(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return 0
}

func isIdentStart(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || ch >= '0' && ch <= '9'
}
