/*-------------------------------------------------------------------------
 *
 * NLSQL Agent
 *
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package sqlguard turns raw model output into a single validated read-only
// SQL statement. Model output is treated exactly like untrusted user input:
// nothing reaches the executor unless it survives extraction, statement
// counting, verb filtering, and identifier validation against the schema.
package sqlguard

// Reason identifies why a candidate statement was rejected.
type Reason string

const (
	// ReasonNotSingleStatement means the text contained more than one SQL
	// statement. Statement chaining is rejected outright.
	ReasonNotSingleStatement Reason = "not_single_statement"
	// ReasonForbiddenVerb means the statement is not in the read-only
	// allow-list (SELECT, including WITH ... SELECT).
	ReasonForbiddenVerb Reason = "forbidden_verb"
	// ReasonUnknownIdentifier means the statement references a table or
	// column that does not exist in the schema descriptor.
	ReasonUnknownIdentifier Reason = "unknown_identifier"
	// ReasonUnparseable means no SQL statement could be isolated from the
	// text at all.
	ReasonUnparseable Reason = "unparseable"
)

// Result is the outcome of extraction: either a validated statement or a
// rejection with a machine-distinguishable reason. Never both.
type Result struct {
	Statement string `json:"statement,omitempty"`
	Rejected  bool   `json:"rejected"`
	Reason    Reason `json:"reason,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

func accepted(statement string) Result {
	return Result{Statement: statement}
}

func rejected(reason Reason, detail string) Result {
	return Result{Rejected: true, Reason: reason, Detail: detail}
}
