/*-------------------------------------------------------------------------
 *
 * NLSQL Agent
 *
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package pipeline drives one question through prompt construction, model
// generation, validation, and guarded execution. Each request is a single
// pass: a failed attempt is reported, never retried behind the user's
// back. The caller decides whether to resubmit, and a resubmission may
// carry the prior failure as a hint for the model.
package pipeline

import (
	"context"

	"nlsql-agent/internal/display"
	"nlsql-agent/internal/executor"
	"nlsql-agent/internal/logging"
	"nlsql-agent/internal/prompt"
	"nlsql-agent/internal/schema"
	"nlsql-agent/internal/sqlguard"
)

// State names a stage of request processing
type State string

const (
	StateReceived       State = "received"
	StatePrompting      State = "prompting"
	StateAwaitingModel  State = "awaiting_model"
	StateValidating     State = "validating"
	StateRejected       State = "rejected"
	StateExecuting      State = "executing"
	StateExecutionError State = "execution_error"
	StateRows           State = "rows"
	StateDisplayed      State = "displayed"
)

// ModelGateway produces a completion for a prompt
type ModelGateway interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// QueryRunner executes a validated statement under limits
type QueryRunner interface {
	Run(ctx context.Context, statement string) (*executor.Outcome, error)
}

// SchemaSource provides the current schema snapshot
type SchemaSource interface {
	Current() *schema.Descriptor
}

// Request is one question from the user. PriorErrorHint is set only when
// the user explicitly resubmits after a failure; the pipeline itself never
// fills it in.
type Request struct {
	Question       string
	PriorErrorHint string
}

// Answer is the outcome of one request. Trace records the states the
// request passed through, always ending in StateDisplayed.
type Answer struct {
	Payload *display.Payload
	Trace   []State
}

// Final returns the last state before display
func (a *Answer) Final() State {
	if len(a.Trace) < 2 {
		return StateDisplayed
	}
	return a.Trace[len(a.Trace)-2]
}

// Pipeline wires the stages together for one target database
type Pipeline struct {
	gateway ModelGateway
	runner  QueryRunner
	schemas SchemaSource
	driver  string
}

// New creates a pipeline. driver selects dialect handling ("sqlite" or
// "postgres").
func New(gateway ModelGateway, runner QueryRunner, schemas SchemaSource, driver string) *Pipeline {
	return &Pipeline{
		gateway: gateway,
		runner:  runner,
		schemas: schemas,
		driver:  driver,
	}
}

// Ask processes one question end to end and always returns a displayable
// answer; failures surface as error payloads, not Go errors.
func (p *Pipeline) Ask(ctx context.Context, req Request) *Answer {
	a := &Answer{}
	a.enter(StateReceived, req.Question)

	// Prompting
	a.enter(StatePrompting, req.Question)
	d := p.schemas.Current()
	builtPrompt, err := prompt.Build(req.Question, d, p.driver, req.PriorErrorHint)
	if err != nil {
		a.Payload = display.InputError(req.Question, err)
		return a.display(req.Question)
	}

	// Model generation
	a.enter(StateAwaitingModel, req.Question)
	completion, err := p.gateway.Generate(ctx, builtPrompt)
	if err != nil {
		a.Payload = display.ModelError(req.Question, err)
		return a.display(req.Question)
	}

	// Validation
	a.enter(StateValidating, req.Question)
	res := sqlguard.Extract(completion, d)
	if res.Rejected {
		a.enter(StateRejected, req.Question)
		logging.Info("statement rejected",
			"reason", string(res.Reason),
			"detail", res.Detail)
		a.Payload = display.Rejection(req.Question, res)
		return a.display(req.Question)
	}

	statement := sqlguard.NormalizeDialect(res.Statement, p.driver)

	// Execution
	a.enter(StateExecuting, req.Question)
	outcome, err := p.runner.Run(ctx, statement)
	if err != nil {
		a.enter(StateExecutionError, req.Question)
		logging.Warn("query execution failed",
			"category", string(executor.CategoryOf(err)),
			"error", err.Error())
		a.Payload = display.ExecutionError(req.Question, statement, err)
		return a.display(req.Question)
	}

	a.enter(StateRows, req.Question)
	a.Payload = display.Result(req.Question, statement, outcome)
	return a.display(req.Question)
}

func (a *Answer) enter(s State, question string) {
	a.Trace = append(a.Trace, s)
	logging.Debug("pipeline state", "state", string(s), "question", question)
}

func (a *Answer) display(question string) *Answer {
	a.enter(StateDisplayed, question)
	return a
}
