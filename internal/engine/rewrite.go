package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
)

// rewritePrompt instructs the model to produce a standalone question. It
// must resolve pronouns and references against the conversation without
// answering anything itself.
const rewritePrompt = `Given a conversation and a follow-up question, rewrite the follow-up ` +
	`into a standalone question that can be understood without the conversation. ` +
	`Resolve pronouns and references to earlier turns. Preserve the user's intent ` +
	`exactly. Do NOT answer the question. Respond with the rewritten question and ` +
	`nothing else.`

// rewrite turns a follow-up question into a standalone query. With no
// history there is nothing to resolve and the question passes through
// unchanged.
func (c *chain) rewrite(ctx context.Context, question string, history []*schema.Message) (string, error) {
	if len(history) == 0 {
		return question, nil
	}

	msgs := make([]*schema.Message, 0, len(history)+2)
	msgs = append(msgs, schema.SystemMessage(rewritePrompt))
	msgs = append(msgs, history...)
	msgs = append(msgs, schema.UserMessage(question))

	out, err := c.chatModel.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("engine: rewriting query: %w: %w", ErrGeneration, err)
	}

	rewritten := strings.TrimSpace(out.Content)
	if rewritten == "" {
		// A model returning nothing is useless for retrieval; fall back to
		// the literal question.
		return question, nil
	}
	return rewritten, nil
}
