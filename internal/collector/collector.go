// Package collector turns a short interactive conversation into the
// project's requirement list.
package collector

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/mark3labs/agitegen/internal/chat"
	"github.com/mark3labs/agitegen/internal/console"
	"github.com/mark3labs/agitegen/internal/logger"
	"github.com/mark3labs/agitegen/internal/requirements"
)

// Conversation scaffolding sent to the planning model.
const (
	SystemPrompt = "Ask clarifying questions. User will type DONE when finished."
	Opener       = "Describe your app in one sentence."
	FinalPrompt  = "Now output YAML list under key `requirements` where each item is {symbol: <short identifier that will appear in the code>, description: <text>}. Output only the YAML."
	Sentinel     = "done"
)

// Collector runs the requirement conversation.
type Collector struct {
	llm   chat.Completer
	model string
	in    *bufio.Scanner
	out   *console.Console
}

// New returns a Collector reading user turns from in.
func New(llm chat.Completer, model string, in io.Reader, out *console.Console) *Collector {
	if out == nil {
		out = console.Default
	}
	return &Collector{llm: llm, model: model, in: bufio.NewScanner(in), out: out}
}

// Collect chats until the user types DONE (any case) or input ends, then
// asks the model for the structured list. An unparseable final reply
// yields an empty list rather than an error; request failures are errors.
func (c *Collector) Collect(ctx context.Context) ([]requirements.Requirement, error) {
	history := []chat.Message{
		{Role: chat.RoleSystem, Content: SystemPrompt},
		{Role: chat.RoleAssistant, Content: Opener},
	}
	c.out.Markdown(Opener)

	for {
		fmt.Fprint(c.out.Out(), "🙋 ")
		if !c.in.Scan() {
			fmt.Fprintln(c.out.Out())
			break
		}
		line := strings.TrimSpace(c.in.Text())
		history = append(history, chat.Message{Role: chat.RoleUser, Content: line})
		if strings.EqualFold(line, Sentinel) {
			break
		}

		reply, err := c.llm.Complete(ctx, c.model, history)
		if err != nil {
			return nil, fmt.Errorf("requirement chat: %w", err)
		}
		c.out.Markdown(reply)
		history = append(history, chat.Message{Role: chat.RoleAssistant, Content: reply})
	}
	if err := c.in.Err(); err != nil {
		logger.Warn("collector: reading input: %v", err)
	}

	final := append(history, chat.Message{Role: chat.RoleUser, Content: FinalPrompt})
	reply, err := c.llm.Complete(ctx, c.model, final)
	if err != nil {
		return nil, fmt.Errorf("requesting requirement list: %w", err)
	}
	c.out.Markdown(reply)

	reqs, err := requirements.Parse(reply)
	if err != nil {
		logger.Warn("collector: could not parse requirement list: %v", err)
		c.out.Warn("Could not parse the requirement list; continuing with none")
		return []requirements.Requirement{}, nil
	}
	return reqs, nil
}
