/*-------------------------------------------------------------------------
 *
 * NLSQL Agent
 *
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package sqlguard

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenIdent tokenKind = iota // bare identifier or keyword
	tokenQuotedIdent            // "name", `name`, or [name]
	tokenString                 // 'literal'
	tokenNumber
	tokenOperator // any punctuation, one rune per token except multi-char ops
	tokenSemicolon
)

type token struct {
	kind tokenKind
	text string // unquoted text for identifiers, raw text otherwise
}

// upper returns the token text uppercased, for keyword comparison.
func (t token) upper() string {
	return strings.ToUpper(t.text)
}

// tokenize splits a cleaned statement candidate into tokens. It understands
// just enough SQL lexical structure to count statements and pick out
// identifiers: quoted identifiers in double quotes, backticks, or brackets,
// single-quoted string literals with '' escapes, numbers, and punctuation.
func tokenize(input string) ([]token, error) {
	var tokens []token
	runes := []rune(input)
	i := 0

	for i < len(runes) {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++

		case r == ';':
			tokens = append(tokens, token{kind: tokenSemicolon, text: ";"})
			i++

		case r == '\'':
			text, next, err := scanQuoted(runes, i, '\'', true)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenString, text: text})
			i = next

		case r == '"':
			text, next, err := scanQuoted(runes, i, '"', false)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenQuotedIdent, text: text})
			i = next

		case r == '`':
			text, next, err := scanQuoted(runes, i, '`', false)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{kind: tokenQuotedIdent, text: text})
			i = next

		case r == '[':
			end := -1
			for j := i + 1; j < len(runes); j++ {
				if runes[j] == ']' {
					end = j
					break
				}
			}
			if end == -1 {
				return nil, fmt.Errorf("unterminated bracketed identifier")
			}
			tokens = append(tokens, token{kind: tokenQuotedIdent, text: string(runes[i+1 : end])})
			i = end + 1

		case unicode.IsDigit(r):
			j := i
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.' ||
				runes[j] == 'e' || runes[j] == 'E' ||
				((runes[j] == '+' || runes[j] == '-') && j > i && (runes[j-1] == 'e' || runes[j-1] == 'E'))) {
				j++
			}
			tokens = append(tokens, token{kind: tokenNumber, text: string(runes[i:j])})
			i = j

		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_' || runes[j] == '$') {
				j++
			}
			tokens = append(tokens, token{kind: tokenIdent, text: string(runes[i:j])})
			i = j

		default:
			// Multi-character comparison operators kept together so they
			// never look like identifiers downstream.
			if i+1 < len(runes) {
				pair := string(runes[i : i+2])
				switch pair {
				case "<=", ">=", "<>", "!=", "||":
					tokens = append(tokens, token{kind: tokenOperator, text: pair})
					i += 2
					continue
				}
			}
			tokens = append(tokens, token{kind: tokenOperator, text: string(r)})
			i++
		}
	}

	return tokens, nil
}

// scanQuoted reads a quoted region starting at runes[start] (the opening
// quote). When doubling is true, a doubled quote is an escape rather than a
// terminator, per SQL string literal rules.
func scanQuoted(runes []rune, start int, quote rune, doubling bool) (string, int, error) {
	var sb strings.Builder
	i := start + 1
	for i < len(runes) {
		if runes[i] == quote {
			if doubling && i+1 < len(runes) && runes[i+1] == quote {
				sb.WriteRune(quote)
				i += 2
				continue
			}
			return sb.String(), i + 1, nil
		}
		sb.WriteRune(runes[i])
		i++
	}
	return "", 0, fmt.Errorf("unterminated quote starting at offset %d", start)
}
