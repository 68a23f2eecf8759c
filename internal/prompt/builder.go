/*-------------------------------------------------------------------------
 *
 * NLSQL Agent
 *
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package prompt assembles the model prompt from the user question and the
// schema snapshot. Build is pure: the same question, schema, and hint
// always produce the same prompt, which keeps model behavior reproducible
// and the function trivially testable.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"nlsql-agent/internal/schema"
)

// ErrInvalidInput is returned when the question is empty or whitespace
var ErrInvalidInput = errors.New("question must not be empty")

// ErrNoSchema is returned when no schema snapshot is available
var ErrNoSchema = errors.New("schema snapshot is empty")

// dialectName maps a driver name to the wording used in the prompt
func dialectName(driver string) string {
	switch driver {
	case "sqlite":
		return "SQLite"
	case "postgres":
		return "PostgreSQL"
	default:
		return "SQL"
	}
}

// dialectGuidance returns dialect-specific instructions. Models trained
// mostly on MySQL need explicit steering away from MySQL date functions
// when the target is SQLite.
func dialectGuidance(driver string) string {
	switch driver {
	case "sqlite":
		return `7. Use SQLite date functions: strftime('%Y', column) for year extraction, date('now') for the current date, datetime('now', 'localtime') for the current timestamp. Never use YEAR(), CURDATE(), or NOW().`
	case "postgres":
		return `7. Use PostgreSQL syntax, including EXTRACT() for date parts and NOW() for the current timestamp.`
	default:
		return `7. Use standard SQL syntax.`
	}
}

// Build assembles the prompt for one translation request. priorErrorHint
// carries the failure description from a previous attempt when the user
// explicitly resubmits the same question; it is empty on first attempts.
func Build(question string, d *schema.Descriptor, driver, priorErrorHint string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrInvalidInput
	}
	if d == nil || len(d.Tables) == 0 {
		return "", ErrNoSchema
	}

	dialect := dialectName(driver)

	var sb strings.Builder
	fmt.Fprintf(&sb, "You are a %s expert. Given the following database schema and a natural language question, generate a single SQL query that answers the question.\n\n", dialect)

	sb.WriteString("Database Schema:\n")
	sb.WriteString(schema.Overview(d))
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "Natural Language Question: %s\n\n", question)

	sb.WriteString("Requirements:\n")
	sb.WriteString("1. Generate ONLY the SQL query, no explanations or markdown formatting\n")
	sb.WriteString("2. Generate exactly one SELECT statement; never modify data\n")
	sb.WriteString("3. Use only the tables and columns listed in the schema above\n")
	sb.WriteString("4. Use appropriate JOINs when the question spans tables, following the listed relationships\n")
	sb.WriteString("5. Include WHERE, GROUP BY, and ORDER BY clauses as needed\n")
	sb.WriteString("6. Use meaningful column aliases for computed values\n")
	sb.WriteString(dialectGuidance(driver))
	sb.WriteString("\n")
	sb.WriteString("8. Do NOT include a semicolon at the end\n")
	sb.WriteString("9. Return ONLY the SQL query text, nothing else\n")

	if priorErrorHint != "" {
		fmt.Fprintf(&sb, "\nA previous attempt at this question failed: %s\nGenerate a corrected query that avoids this problem.\n", priorErrorHint)
	}

	sb.WriteString("\nSQL Query:")
	return sb.String(), nil
}
