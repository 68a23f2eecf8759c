/*-------------------------------------------------------------------------
 *
 * NLSQL Agent
 *
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

package chat

import (
	"context"
	"errors"
	"testing"

	"nlsql-agent/internal/display"
	"nlsql-agent/internal/pipeline"
	"nlsql-agent/internal/schema"
)

type fakeAsker struct {
	requests []pipeline.Request
	payloads []*display.Payload
}

func (f *fakeAsker) Ask(_ context.Context, req pipeline.Request) *pipeline.Answer {
	f.requests = append(f.requests, req)
	payload := f.payloads[0]
	if len(f.payloads) > 1 {
		f.payloads = f.payloads[1:]
	}
	return &pipeline.Answer{Payload: payload}
}

type fakeRefresher struct {
	d     *schema.Descriptor
	err   error
	calls int
}

func (f *fakeRefresher) Refresh(_ context.Context) (*schema.Descriptor, error) {
	f.calls++
	return f.d, f.err
}

func newTestClient(asker Asker, refresher SchemaRefresher) *Client {
	return NewClient(NewUI(true, false), asker, refresher, "sqlite:test.db", "")
}

func failedPayload(question, hint string) *display.Payload {
	return &display.Payload{
		Question: question,
		Message:  "The generated SQL references tables or columns that do not exist in this database.",
		Error: &display.ErrorInfo{
			Stage: "validation",
			Code:  "unknown_identifier",
			Hint:  hint,
		},
	}
}

func TestHandleCommandHelpAndQuit(t *testing.T) {
	c := newTestClient(&fakeAsker{}, &fakeRefresher{})

	handled, quit := c.handleCommand(context.Background(), "help")
	if !handled || quit {
		t.Error("help should be handled without quitting")
	}

	for _, cmd := range []string{"quit", "exit", "QUIT"} {
		handled, quit = c.handleCommand(context.Background(), cmd)
		if !handled || !quit {
			t.Errorf("%q should request exit", cmd)
		}
	}

	handled, _ = c.handleCommand(context.Background(), "how many orders are there")
	if handled {
		t.Error("a question must not be treated as a command")
	}
}

func TestHandleCommandRefresh(t *testing.T) {
	refresher := &fakeRefresher{d: &schema.Descriptor{
		Tables: []schema.TableInfo{{Name: "orders"}},
	}}
	c := newTestClient(&fakeAsker{}, refresher)

	handled, quit := c.handleCommand(context.Background(), "refresh")
	if !handled || quit {
		t.Error("refresh should be handled without quitting")
	}
	if refresher.calls != 1 {
		t.Errorf("expected one refresh call, got %d", refresher.calls)
	}

	refresher.err = errors.New("introspection failed")
	handled, _ = c.handleCommand(context.Background(), "refresh")
	if !handled {
		t.Error("failed refresh is still a handled command")
	}
}

func TestRetryCarriesErrorHint(t *testing.T) {
	asker := &fakeAsker{payloads: []*display.Payload{
		failedPayload("top salaries", "unknown column salary"),
	}}
	c := newTestClient(asker, &fakeRefresher{})

	// First attempt fails and records the retry state
	c.ask(context.Background(), pipeline.Request{Question: "top salaries"})
	if c.lastFailedQuestion != "top salaries" {
		t.Fatalf("failed question not recorded: %q", c.lastFailedQuestion)
	}

	handled, _ := c.handleCommand(context.Background(), "retry")
	if !handled {
		t.Fatal("retry should be a command")
	}

	if len(asker.requests) != 2 {
		t.Fatalf("expected two pipeline calls, got %d", len(asker.requests))
	}
	second := asker.requests[1]
	if second.Question != "top salaries" {
		t.Errorf("retry should resubmit the same question: %q", second.Question)
	}
	if second.PriorErrorHint == "" {
		t.Error("retry must carry the prior error hint")
	}
	// First attempt never carries a hint
	if asker.requests[0].PriorErrorHint != "" {
		t.Error("first attempt must not carry a hint")
	}
}

func TestRetryWithNothingToRetry(t *testing.T) {
	asker := &fakeAsker{payloads: []*display.Payload{{Question: "q", Message: "1 row returned."}}}
	c := newTestClient(asker, &fakeRefresher{})

	handled, _ := c.handleCommand(context.Background(), "retry")
	if !handled {
		t.Fatal("retry should be a command")
	}
	if len(asker.requests) != 0 {
		t.Error("retry with no failure must not call the pipeline")
	}
}

func TestSuccessClearsRetryState(t *testing.T) {
	asker := &fakeAsker{payloads: []*display.Payload{
		failedPayload("top salaries", "unknown column salary"),
		{Question: "top amounts", Message: "3 rows returned."},
	}}
	c := newTestClient(asker, &fakeRefresher{})

	c.ask(context.Background(), pipeline.Request{Question: "top salaries"})
	c.ask(context.Background(), pipeline.Request{Question: "top amounts"})

	if c.lastFailedQuestion != "" {
		t.Error("a successful answer should clear the retry state")
	}
}
