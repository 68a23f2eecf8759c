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
	"strings"
)

// statementStarters are the keywords that mark the beginning of a SQL
// statement in model output. Forbidden verbs are included on purpose: the
// cleaner's job is to isolate whatever statement the model produced, and the
// validator's job is to reject it.
var statementStarters = []string{
	"SELECT", "WITH", "INSERT", "UPDATE", "DELETE", "CREATE", "ALTER",
	"DROP", "TRUNCATE", "REPLACE", "MERGE", "GRANT", "REVOKE", "EXPLAIN",
	"ANALYZE", "PRAGMA", "ATTACH", "DETACH", "VACUUM", "BEGIN", "COMMIT",
	"ROLLBACK", "SET", "COPY", "CALL", "SHOW", "DESCRIBE", "EXECUTE",
}

// prose prefixes that mark the end of the SQL and the start of explanatory
// text appended by the model.
var proseMarkers = []string{
	"THIS ", "THE ", "WILL ", "RETURNS ", "NOTE:", "EXPLANATION:",
	"HERE ", "IN THIS ", "ABOVE ",
}

// clean strips markdown fences, comments, and surrounding commentary from
// raw model output and returns the statement candidate. Unlike a simple
// first-statement scan, semicolons are preserved so that chained statements
// survive into tokenization and get rejected there rather than silently
// truncated. Comment stripping and whitespace normalization track single
// quotes so string literal contents pass through byte for byte.
func clean(raw string) string {
	input := strings.TrimSpace(raw)

	// Prefer the first fenced code block when one is present; models often
	// wrap the statement in ```sql fences with prose around them.
	if block, ok := firstFencedBlock(input); ok {
		input = block
	}

	input = stripBlockComments(input)
	input = stripLineComments(input)

	lines := strings.Split(input, "\n")
	var sqlLines []string
	foundSQL := false

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		upper := strings.ToUpper(line)
		isStart := false
		for _, kw := range statementStarters {
			// Whole-word match only, so prose like "Showing the results"
			// or "Setting up" never reads as a statement start.
			if upper == kw || strings.HasPrefix(upper, kw+" ") ||
				strings.HasPrefix(upper, kw+"(") || strings.HasPrefix(upper, kw+";") {
				isStart = true
				break
			}
		}

		if isStart {
			foundSQL = true
		}
		if !foundSQL {
			continue
		}

		// Once SQL has started, a prose line terminates it.
		if !isStart {
			stop := false
			for _, marker := range proseMarkers {
				if strings.HasPrefix(upper, marker) {
					stop = true
					break
				}
			}
			if stop {
				break
			}
		}

		sqlLines = append(sqlLines, line)
	}

	result := strings.Join(sqlLines, " ")
	result = strings.TrimSuffix(strings.TrimSpace(result), "```")

	return strings.TrimSpace(collapseWhitespace(result))
}

// firstFencedBlock returns the contents of the first ``` fenced block, with
// an optional language tag on the opening fence stripped.
func firstFencedBlock(input string) (string, bool) {
	start := strings.Index(input, "```")
	if start == -1 {
		return "", false
	}
	rest := input[start+3:]

	// Drop the language tag (e.g. "sql") up to the first newline.
	if nl := strings.Index(rest, "\n"); nl != -1 {
		tag := strings.TrimSpace(rest[:nl])
		if len(tag) <= 10 && !strings.ContainsAny(tag, " \t;") {
			rest = rest[nl+1:]
		}
	}

	end := strings.Index(rest, "```")
	if end == -1 {
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}

// stripBlockComments removes /* ... */ comments outside string literals. An
// unterminated comment is left in place so the tokenizer can flag it.
func stripBlockComments(input string) string {
	var sb strings.Builder
	inQuote := false

	for i := 0; i < len(input); i++ {
		c := input[i]

		if inQuote {
			sb.WriteByte(c)
			if c == '\'' {
				// '' is an escaped quote, not a terminator
				if i+1 < len(input) && input[i+1] == '\'' {
					sb.WriteByte(input[i+1])
					i++
					continue
				}
				inQuote = false
			}
			continue
		}

		if c == '\'' {
			inQuote = true
			sb.WriteByte(c)
			continue
		}

		if c == '/' && i+1 < len(input) && input[i+1] == '*' {
			end := strings.Index(input[i+2:], "*/")
			if end == -1 {
				sb.WriteString(input[i:])
				break
			}
			sb.WriteByte(' ')
			i += 2 + end + 1
			continue
		}

		sb.WriteByte(c)
	}

	return sb.String()
}

// stripLineComments removes -- comments outside string literals, from the
// marker to the end of its line. Quote state carries across lines because a
// literal may span them.
func stripLineComments(input string) string {
	var sb strings.Builder
	inQuote := false

	for i := 0; i < len(input); i++ {
		c := input[i]

		if inQuote {
			sb.WriteByte(c)
			if c == '\'' {
				if i+1 < len(input) && input[i+1] == '\'' {
					sb.WriteByte(input[i+1])
					i++
					continue
				}
				inQuote = false
			}
			continue
		}

		if c == '\'' {
			inQuote = true
			sb.WriteByte(c)
			continue
		}

		if c == '-' && i+1 < len(input) && input[i+1] == '-' {
			nl := strings.IndexByte(input[i:], '\n')
			if nl == -1 {
				break
			}
			i += nl - 1
			continue
		}

		sb.WriteByte(c)
	}

	return sb.String()
}

// collapseWhitespace reduces whitespace runs to single spaces outside string
// literals, so identical queries compare equal regardless of the model's
// formatting while literal contents stay untouched.
func collapseWhitespace(input string) string {
	var sb strings.Builder
	inQuote := false
	pendingSpace := false

	for i := 0; i < len(input); i++ {
		c := input[i]

		if inQuote {
			sb.WriteByte(c)
			if c == '\'' {
				if i+1 < len(input) && input[i+1] == '\'' {
					sb.WriteByte(input[i+1])
					i++
					continue
				}
				inQuote = false
			}
			continue
		}

		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			pendingSpace = true
			continue
		}

		if pendingSpace && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		pendingSpace = false

		if c == '\'' {
			inQuote = true
		}
		sb.WriteByte(c)
	}

	return sb.String()
}
