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

	"nlsql-agent/internal/schema"
)

// Verbs that modify data or schema, or otherwise escape read-only execution.
// Anything on this list is rejected unconditionally; this is a hard safety
// boundary, not a heuristic.
var forbiddenVerbs = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true,
	"ALTER": true, "CREATE": true, "TRUNCATE": true, "REPLACE": true,
	"MERGE": true, "GRANT": true, "REVOKE": true, "PRAGMA": true,
	"ATTACH": true, "DETACH": true, "VACUUM": true, "REINDEX": true,
	"BEGIN": true, "COMMIT": true, "ROLLBACK": true, "SET": true,
	"COPY": true, "CALL": true, "EXECUTE": true, "EXPLAIN": true,
	"ANALYZE": true, "DO": true, "LOCK": true, "COMMENT": true,
}

// sqlKeywords are non-identifier words that may appear in a SELECT statement.
// The identifier validator skips these.
var sqlKeywords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "GROUP": true, "BY": true,
	"HAVING": true, "ORDER": true, "LIMIT": true, "OFFSET": true, "AS": true,
	"ON": true, "JOIN": true, "INNER": true, "LEFT": true, "RIGHT": true,
	"FULL": true, "OUTER": true, "CROSS": true, "NATURAL": true,
	"USING": true, "AND": true, "OR": true, "NOT": true, "IN": true,
	"IS": true, "NULL": true, "LIKE": true, "ILIKE": true, "GLOB": true,
	"REGEXP": true, "BETWEEN": true, "ESCAPE": true, "CASE": true,
	"WHEN": true, "THEN": true, "ELSE": true, "END": true,
	"DISTINCT": true, "ALL": true, "UNION": true, "EXCEPT": true,
	"INTERSECT": true, "EXISTS": true, "ASC": true, "DESC": true,
	"WITH": true, "RECURSIVE": true, "OVER": true, "PARTITION": true,
	"ROWS": true, "RANGE": true, "PRECEDING": true, "FOLLOWING": true,
	"UNBOUNDED": true, "CURRENT": true, "ROW": true, "CAST": true,
	"COLLATE": true, "VALUES": true, "TRUE": true, "FALSE": true,
	"NULLS": true, "FIRST": true, "LAST": true, "FILTER": true,
	"INTERVAL": true, "EXTRACT": true, "SIMILAR": true, "TO": true,
	"ANY": true, "SOME": true, "LATERAL": true, "TABLESAMPLE": true,
	"FETCH": true, "NEXT": true, "ONLY": true, "TIES": true,
}

// Extract parses raw model output and returns either a validated read-only
// statement or a rejection. The accepted statement carries no trailing
// semicolon and may be executed without further injection sanitization;
// resource limits still apply at execution time.
func Extract(raw string, d *schema.Descriptor) Result {
	candidate := clean(raw)
	if candidate == "" {
		return rejected(ReasonUnparseable, "no SQL statement found in model output")
	}

	tokens, err := tokenize(candidate)
	if err != nil {
		return rejected(ReasonUnparseable, err.Error())
	}
	if len(tokens) == 0 {
		return rejected(ReasonUnparseable, "no SQL statement found in model output")
	}

	// Exactly one statement: a semicolon is only acceptable as a trailer.
	// Chained statements are rejected before the verb is even inspected.
	seenStatement := false
	for i, tok := range tokens {
		if tok.kind == tokenSemicolon {
			for j := i + 1; j < len(tokens); j++ {
				if tokens[j].kind != tokenSemicolon {
					return rejected(ReasonNotSingleStatement,
						"model output contains more than one statement")
				}
			}
			tokens = tokens[:i]
			break
		}
		seenStatement = true
	}
	if !seenStatement || len(tokens) == 0 {
		return rejected(ReasonUnparseable, "no SQL statement found in model output")
	}

	// Leading verb must be in the read-only allow-list.
	first := tokens[0]
	if first.kind != tokenIdent {
		return rejected(ReasonUnparseable, fmt.Sprintf("statement starts with %q", first.text))
	}
	switch verb := first.upper(); {
	case verb == "SELECT":
		// allowed
	case verb == "WITH":
		// WITH is only read-only when every branch is; a data-modifying
		// keyword anywhere inside the CTE chain disqualifies it.
		sawSelect := false
		for _, tok := range tokens[1:] {
			if tok.kind != tokenIdent {
				continue
			}
			u := tok.upper()
			if forbiddenVerbs[u] {
				return rejected(ReasonForbiddenVerb,
					fmt.Sprintf("statement contains forbidden keyword %s", u))
			}
			if u == "SELECT" {
				sawSelect = true
			}
		}
		if !sawSelect {
			return rejected(ReasonUnparseable, "WITH clause without a SELECT")
		}
	default:
		// Everything that is not SELECT or WITH is forbidden, including
		// verbs this package has never heard of (SHOW, DESCRIBE, vendor
		// extensions). Only SELECT is known to be read-only.
		return rejected(ReasonForbiddenVerb, fmt.Sprintf("statement verb %s is not allowed", verb))
	}

	if d != nil {
		if res, ok := checkIdentifiers(tokens, d); !ok {
			return res
		}
	}

	return accepted(renderStatement(candidate))
}

// renderStatement strips statement trailers from the cleaned candidate.
func renderStatement(candidate string) string {
	return strings.TrimSpace(strings.TrimRight(candidate, "; "))
}

// checkIdentifiers verifies that every table and column reference resolves
// against the schema descriptor. Aliases introduced by the statement itself
// (AS clauses, FROM-list aliases, CTE names) are tracked so they do not
// trigger false rejections; everything else must exist in the schema.
func checkIdentifiers(tokens []token, d *schema.Descriptor) (Result, bool) {
	aliases := collectAliases(tokens)

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if !isIdentLike(tok) {
			continue
		}
		if tok.kind == tokenIdent && sqlKeywords[tok.upper()] {
			continue
		}
		// Function call: name immediately followed by an open paren.
		if i+1 < len(tokens) && tokens[i+1].kind == tokenOperator && tokens[i+1].text == "(" {
			continue
		}
		// Right side of a qualified reference; validated with its left side.
		if i > 0 && tokens[i-1].kind == tokenOperator && tokens[i-1].text == "." {
			continue
		}

		name := strings.ToLower(tok.text)

		// Qualified reference: left.right
		if i+2 < len(tokens) && tokens[i+1].kind == tokenOperator && tokens[i+1].text == "." {
			right := tokens[i+2]
			boundTable, isAlias := aliases[name]

			switch {
			case d.HasTable(name):
				if right.kind == tokenOperator && right.text == "*" {
					continue
				}
				if !isIdentLike(right) || !d.TableHasColumn(name, right.text) {
					return rejected(ReasonUnknownIdentifier,
						fmt.Sprintf("column %q does not exist in table %q", right.text, tok.text)), false
				}
			case isAlias && boundTable != "":
				if right.kind == tokenOperator && right.text == "*" {
					continue
				}
				if !isIdentLike(right) || !d.TableHasColumn(boundTable, right.text) {
					return rejected(ReasonUnknownIdentifier,
						fmt.Sprintf("column %q does not exist in table %q", right.text, boundTable)), false
				}
			case isAlias:
				// Alias over a subquery or CTE; its columns are not in the
				// descriptor, so the reference is taken on trust.
			default:
				return rejected(ReasonUnknownIdentifier,
					fmt.Sprintf("unknown table or alias %q", tok.text)), false
			}
			continue
		}

		if _, ok := aliases[name]; ok {
			continue
		}
		if d.HasTable(name) || d.HasColumn(name) {
			continue
		}
		return rejected(ReasonUnknownIdentifier,
			fmt.Sprintf("identifier %q does not exist in the schema", tok.text)), false
	}

	return Result{}, true
}

// collectAliases gathers names the statement defines for itself: CTE names,
// table aliases in FROM/JOIN clauses, column aliases after AS, and subquery
// aliases following a closing paren. The returned map is keyed by the
// lowercased alias; the value is the lowercased table it binds to, or empty
// when the alias does not name a concrete table.
func collectAliases(tokens []token) map[string]string {
	aliases := make(map[string]string)

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if tok.kind != tokenIdent && tok.kind != tokenOperator {
			continue
		}

		switch {
		case tok.kind == tokenIdent && tok.upper() == "WITH":
			// WITH [RECURSIVE] name [(cols)] AS ( ... ) [, name2 ...]
			collectCTENames(tokens, i+1, aliases)

		case tok.kind == tokenIdent && (tok.upper() == "FROM" || tok.upper() == "JOIN"):
			collectFromAliases(tokens, i+1, aliases)

		case tok.kind == tokenIdent && tok.upper() == "AS":
			if i+1 < len(tokens) && isIdentLike(tokens[i+1]) && !isKeywordToken(tokens[i+1]) {
				alias := strings.ToLower(tokens[i+1].text)
				if _, exists := aliases[alias]; !exists {
					aliases[alias] = ""
				}
			}

		case tok.kind == tokenOperator && tok.text == ")":
			// ") alias" gives a bare subquery alias.
			if i+1 < len(tokens) && isIdentLike(tokens[i+1]) && !isKeywordToken(tokens[i+1]) {
				aliases[strings.ToLower(tokens[i+1].text)] = ""
			}
		}
	}

	return aliases
}

// collectCTENames walks "name AS (...), name2 AS (...)" after WITH.
func collectCTENames(tokens []token, i int, aliases map[string]string) {
	if i < len(tokens) && tokens[i].kind == tokenIdent && tokens[i].upper() == "RECURSIVE" {
		i++
	}
	for i < len(tokens) {
		if !isIdentLike(tokens[i]) || isKeywordToken(tokens[i]) {
			return
		}
		aliases[strings.ToLower(tokens[i].text)] = ""
		i++

		// Optional column list: (a, b, c) — these become known names too.
		if i < len(tokens) && tokens[i].text == "(" {
			depth := 1
			i++
			for i < len(tokens) && depth > 0 {
				if tokens[i].text == "(" {
					depth++
				} else if tokens[i].text == ")" {
					depth--
				} else if isIdentLike(tokens[i]) {
					aliases[strings.ToLower(tokens[i].text)] = ""
				}
				i++
			}
		}

		if i >= len(tokens) || tokens[i].kind != tokenIdent || tokens[i].upper() != "AS" {
			return
		}
		i++
		if i >= len(tokens) || tokens[i].text != "(" {
			return
		}

		// Skip the CTE body to the matching close paren.
		depth := 1
		i++
		for i < len(tokens) && depth > 0 {
			if tokens[i].text == "(" {
				depth++
			} else if tokens[i].text == ")" {
				depth--
			}
			i++
		}

		if i < len(tokens) && tokens[i].text == "," {
			i++
			continue
		}
		return
	}
}

// collectFromAliases walks comma-separated table references after FROM or
// JOIN, registering "table alias" and "table AS alias" bindings.
func collectFromAliases(tokens []token, i int, aliases map[string]string) {
	for i < len(tokens) {
		if !isIdentLike(tokens[i]) || isKeywordToken(tokens[i]) {
			return
		}
		tableName := strings.ToLower(tokens[i].text)
		i++

		// Qualified table name: schema.table — the alias binds to the table.
		if i+1 < len(tokens) && tokens[i].text == "." && isIdentLike(tokens[i+1]) {
			tableName = strings.ToLower(tokens[i+1].text)
			i += 2
		}

		if i < len(tokens) && tokens[i].kind == tokenIdent && tokens[i].upper() == "AS" {
			i++
		}
		if i < len(tokens) && isIdentLike(tokens[i]) && !isKeywordToken(tokens[i]) {
			aliases[strings.ToLower(tokens[i].text)] = tableName
			i++
		}

		if i < len(tokens) && tokens[i].text == "," {
			i++
			continue
		}
		return
	}
}

func isIdentLike(t token) bool {
	return t.kind == tokenIdent || t.kind == tokenQuotedIdent
}

func isKeywordToken(t token) bool {
	return t.kind == tokenIdent && (sqlKeywords[t.upper()] || forbiddenVerbs[t.upper()])
}
