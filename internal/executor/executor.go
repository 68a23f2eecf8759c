/*-------------------------------------------------------------------------
 *
 * NLSQL Agent
 *
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package executor runs validated statements against the target database
// under a timeout and a row cap. Every statement that reaches this package
// has already passed extraction and validation, but the executor still
// refuses anything that does not read like a query.
package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"nlsql-agent/internal/logging"
)

// Category classifies an execution failure for user-facing reporting
type Category string

const (
	CategoryTimeout    Category = "timeout"
	CategorySyntax     Category = "syntax_error"
	CategoryPermission Category = "permission_denied"
	CategoryOther      Category = "other"
)

// ExecError is an execution failure with its classification
type ExecError struct {
	Category Category
	Message  string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("query execution failed (%s): %s", e.Category, e.Message)
}

// CategoryOf returns the category for err, or CategoryOther when err is
// not an ExecError.
func CategoryOf(err error) Category {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return execErr.Category
	}
	return CategoryOther
}

// Limits bounds a single query execution
type Limits struct {
	MaxRows int
	Timeout time.Duration
}

// Outcome holds the materialized result of a successful execution.
// Truncated reports that more rows existed beyond MaxRows; the rows that
// were fetched are still returned.
type Outcome struct {
	Columns   []string
	Rows      [][]interface{}
	Truncated bool
	Duration  time.Duration
}

// RowCount returns the number of fetched rows
func (o *Outcome) RowCount() int {
	return len(o.Rows)
}

// Executor runs statements against one database. Limits may be swapped at
// runtime by a configuration reload; each Run uses the limits in effect
// when it starts.
type Executor struct {
	db *sql.DB

	mu     sync.RWMutex
	limits Limits
}

// New creates an executor. Zero limit fields fall back to safe defaults.
func New(db *sql.DB, limits Limits) *Executor {
	e := &Executor{db: db}
	e.SetLimits(limits)
	return e
}

// SetLimits replaces the execution limits. Zero fields fall back to safe
// defaults. In-flight queries keep the limits they started with.
func (e *Executor) SetLimits(limits Limits) {
	if limits.MaxRows <= 0 {
		limits.MaxRows = 500
	}
	if limits.Timeout <= 0 {
		limits.Timeout = 15 * time.Second
	}
	e.mu.Lock()
	e.limits = limits
	e.mu.Unlock()
}

// Limits returns the limits currently in effect
func (e *Executor) Limits() Limits {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.limits
}

// Run executes one validated statement. On failure the returned error is
// always an *ExecError; no partial results accompany an error.
func (e *Executor) Run(ctx context.Context, statement string) (*Outcome, error) {
	if err := checkReadOnly(statement); err != nil {
		return nil, err
	}

	limits := e.Limits()
	ctx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, statement)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, classify(ctx, err)
	}

	outcome := &Outcome{Columns: columns}
	for rows.Next() {
		if len(outcome.Rows) >= limits.MaxRows {
			// More rows exist beyond the cap; stop fetching and flag it
			outcome.Truncated = true
			break
		}

		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, classify(ctx, err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		outcome.Rows = append(outcome.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(ctx, err)
	}

	outcome.Duration = time.Since(start)
	logging.Debug("query executed",
		"row_count", outcome.RowCount(),
		"truncated", outcome.Truncated,
		"duration", outcome.Duration.String())
	return outcome, nil
}

// checkReadOnly rejects statements that do not start with a query verb.
// Validation upstream already guarantees this; the executor keeps its own
// check so it stays safe if called directly.
func checkReadOnly(statement string) *ExecError {
	trimmed := strings.TrimSpace(statement)
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "SELECT") || strings.HasPrefix(upper, "WITH") {
		return nil
	}
	return &ExecError{
		Category: CategoryPermission,
		Message:  "only SELECT statements may be executed",
	}
}

// classify maps a database error to an execution category. Driver error
// texts differ between sqlite and postgres, so classification leans on
// context state first and message heuristics second.
func classify(ctx context.Context, err error) *ExecError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ExecError{Category: CategoryTimeout, Message: "query exceeded the execution timeout and was cancelled"}
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return &ExecError{Category: CategoryOther, Message: "query was cancelled"}
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "syntax error") || strings.Contains(lower, "parse error"):
		return &ExecError{Category: CategorySyntax, Message: msg}
	case strings.Contains(lower, "readonly") ||
		strings.Contains(lower, "read-only") ||
		strings.Contains(lower, "permission denied") ||
		strings.Contains(lower, "attempt to write"):
		return &ExecError{Category: CategoryPermission, Message: msg}
	default:
		return &ExecError{Category: CategoryOther, Message: msg}
	}
}
