/*-------------------------------------------------------------------------
 *
 * NLSQL Agent
 *
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package display turns pipeline outcomes into presentable payloads: a
// table, an optional chart suggestion, and a user-facing message. Every
// failure path gets its own message so the user can tell a blocked
// statement from a database error from a model outage.
package display

import (
	"fmt"

	"nlsql-agent/internal/executor"
	"nlsql-agent/internal/llm"
	"nlsql-agent/internal/sqlguard"
)

// Payload is the final result of one question, ready for rendering by the
// HTTP API or the interactive client
type Payload struct {
	Question  string          `json:"question"`
	SQL       string          `json:"sql,omitempty"`
	Columns   []string        `json:"columns,omitempty"`
	Rows      [][]interface{} `json:"rows,omitempty"`
	RowCount  int             `json:"row_count"`
	Truncated bool            `json:"truncated,omitempty"`
	Chart     *Chart          `json:"chart,omitempty"`
	Message   string          `json:"message"`
	Error     *ErrorInfo      `json:"error,omitempty"`
}

// ErrorInfo describes why a question produced no rows
type ErrorInfo struct {
	Stage string `json:"stage"` // "input", "validation", "execution", or "model"
	Code  string `json:"code"`
	Hint  string `json:"hint,omitempty"`
}

// Succeeded reports whether the payload carries a result rather than an error
func (p *Payload) Succeeded() bool {
	return p.Error == nil
}

// Result builds the payload for a successful execution
func Result(question, statement string, outcome *executor.Outcome) *Payload {
	p := &Payload{
		Question:  question,
		SQL:       statement,
		Columns:   outcome.Columns,
		Rows:      outcome.Rows,
		RowCount:  outcome.RowCount(),
		Truncated: outcome.Truncated,
	}

	switch {
	case outcome.RowCount() == 0:
		p.Message = "The query ran successfully but returned no rows."
	case outcome.Truncated:
		p.Message = fmt.Sprintf("Showing the first %d rows; the full result was larger.", outcome.RowCount())
	case outcome.RowCount() == 1:
		p.Message = "1 row returned."
	default:
		p.Message = fmt.Sprintf("%d rows returned.", outcome.RowCount())
	}

	p.Chart = SuggestChart(question, outcome.Columns, outcome.Rows)
	return p
}

// Rejection builds the payload for a statement blocked by validation. The
// rejected statement is echoed so the user can see what was blocked.
func Rejection(question string, res sqlguard.Result) *Payload {
	var message string
	switch res.Reason {
	case sqlguard.ReasonNotSingleStatement:
		message = "The model produced more than one SQL statement; only a single SELECT can be executed."
	case sqlguard.ReasonForbiddenVerb:
		message = "The generated SQL contains a data-modifying or administrative command and was blocked."
	case sqlguard.ReasonUnknownIdentifier:
		message = "The generated SQL references tables or columns that do not exist in this database."
	case sqlguard.ReasonUnparseable:
		message = "No usable SQL statement could be extracted from the model response."
	default:
		message = "The generated SQL was rejected."
	}

	return &Payload{
		Question: question,
		SQL:      res.Statement,
		Message:  message,
		Error: &ErrorInfo{
			Stage: "validation",
			Code:  string(res.Reason),
			Hint:  res.Detail,
		},
	}
}

// ExecutionError builds the payload for a query that the database refused
// or that ran out of time
func ExecutionError(question, statement string, err error) *Payload {
	category := executor.CategoryOf(err)

	var message string
	switch category {
	case executor.CategoryTimeout:
		message = "The query took too long and was cancelled. Try narrowing the question."
	case executor.CategorySyntax:
		message = "The database rejected the generated SQL as invalid."
	case executor.CategoryPermission:
		message = "The query attempted something this read-only connection does not allow."
	default:
		message = "The query failed to execute."
	}

	return &Payload{
		Question: question,
		SQL:      statement,
		Message:  message,
		Error: &ErrorInfo{
			Stage: "execution",
			Code:  string(category),
			Hint:  err.Error(),
		},
	}
}

// ModelError builds the payload for a failed model request
func ModelError(question string, err error) *Payload {
	kind := llm.KindOf(err)

	var message string
	switch kind {
	case llm.KindTimeout:
		message = "The model service did not respond in time. Try again in a moment."
	case llm.KindAuth:
		message = "The model service rejected the request; check the configured API key."
	case llm.KindNetwork:
		message = "The model service could not be reached."
	default:
		message = "The model returned an unusable response."
	}

	return &Payload{
		Question: question,
		Message:  message,
		Error: &ErrorInfo{
			Stage: "model",
			Code:  string(kind),
			Hint:  err.Error(),
		},
	}
}

// InputError builds the payload for an invalid question
func InputError(question string, err error) *Payload {
	return &Payload{
		Question: question,
		Message:  "Please enter a question about the data.",
		Error: &ErrorInfo{
			Stage: "input",
			Code:  "invalid_input",
			Hint:  err.Error(),
		},
	}
}

// ErrorHint returns a short description of the failure suitable for
// feeding back into the prompt when the user resubmits the question.
// Empty for successful payloads.
func (p *Payload) ErrorHint() string {
	if p.Error == nil {
		return ""
	}
	if p.Error.Hint != "" {
		return fmt.Sprintf("%s (%s)", p.Error.Hint, p.Error.Code)
	}
	return p.Message
}
