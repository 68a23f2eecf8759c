/*-------------------------------------------------------------------------
 *
 * NLSQL Agent
 *
 * This software is released under The PostgreSQL License
 *
 *-------------------------------------------------------------------------
 */

// Package chat provides the interactive terminal client. Questions typed
// at the prompt run through the same pipeline as the HTTP API; a handful
// of commands cover schema refresh and explicit resubmission.
package chat

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"nlsql-agent/internal/pipeline"
	"nlsql-agent/internal/schema"
)

// Asker processes one question end to end
type Asker interface {
	Ask(ctx context.Context, req pipeline.Request) *pipeline.Answer
}

// SchemaRefresher re-introspects the target database on demand
type SchemaRefresher interface {
	Refresh(ctx context.Context) (*schema.Descriptor, error)
}

// Client is the interactive terminal client
type Client struct {
	ui          *UI
	asker       Asker
	refresher   SchemaRefresher
	target      string
	historyFile string

	// State for the retry command: the last question that failed and
	// what went wrong with it
	lastFailedQuestion string
	lastErrorHint      string
}

// NewClient creates an interactive client. target is a loggable
// description of the connected database shown in the welcome banner.
func NewClient(ui *UI, asker Asker, refresher SchemaRefresher, target, historyFile string) *Client {
	return &Client{
		ui:          ui,
		asker:       asker,
		refresher:   refresher,
		target:      target,
		historyFile: historyFile,
	}
}

// Run starts the interactive loop and blocks until the user exits or ctx
// is cancelled
func (c *Client) Run(ctx context.Context) error {
	c.ui.PrintWelcome(c.target)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            c.ui.GetPrompt(),
		HistoryFile:       c.historyFile,
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	// Closing readline unblocks Readline() when the context ends
	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF || ctx.Err() != nil {
				fmt.Println()
				c.ui.PrintSystemMessage("Goodbye!")
				return nil
			}
			return fmt.Errorf("readline error: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		handled, quit := c.handleCommand(ctx, input)
		if quit {
			c.ui.PrintSystemMessage("Goodbye!")
			return nil
		}
		if handled {
			continue
		}

		c.ask(ctx, pipeline.Request{Question: input})
	}
}

// handleCommand runs built-in commands. handled reports that the input was
// a command; quit requests loop exit.
func (c *Client) handleCommand(ctx context.Context, input string) (handled, quit bool) {
	switch strings.ToLower(input) {
	case "help":
		c.ui.PrintHelp()
		return true, false

	case "quit", "exit":
		return true, true

	case "refresh":
		d, err := c.refresher.Refresh(ctx)
		if err != nil {
			c.ui.PrintError(fmt.Sprintf("schema refresh failed: %v", err))
			return true, false
		}
		c.ui.PrintSystemMessage(fmt.Sprintf("Schema reloaded: %d tables.", len(d.Tables)))
		return true, false

	case "retry":
		if c.lastFailedQuestion == "" {
			c.ui.PrintSystemMessage("Nothing to retry.")
			return true, false
		}
		c.ui.PrintSystemMessage("Retrying: " + c.lastFailedQuestion)
		c.ask(ctx, pipeline.Request{
			Question:       c.lastFailedQuestion,
			PriorErrorHint: c.lastErrorHint,
		})
		return true, false
	}
	return false, false
}

// ask runs one question and records failure state for retry
func (c *Client) ask(ctx context.Context, req pipeline.Request) {
	answer := c.asker.Ask(ctx, req)
	c.ui.PrintPayload(answer.Payload)

	if answer.Payload.Succeeded() {
		c.lastFailedQuestion = ""
		c.lastErrorHint = ""
		return
	}
	c.lastFailedQuestion = req.Question
	c.lastErrorHint = answer.Payload.ErrorHint()
}
