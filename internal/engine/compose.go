package engine

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/quilldocs/docqa-go/internal/budget"
	"github.com/quilldocs/docqa-go/internal/rag"
)

// answerPrompt constrains the model to the retrieved passages. When the
// passages don't cover the question the model must say so rather than
// improvise from training data.
const answerPrompt = `You are a document question-answering assistant. Answer the user's ` +
	`question using ONLY the context passages below. If the context does not ` +
	`contain the information needed to answer, say so explicitly. Do not use ` +
	`outside knowledge and do not fabricate details.

Context:
%s`

// buildPrompt assembles the full message sequence for answer generation:
// grounding system prompt with the passage context, as much conversation
// history as the token budget allows, then the question.
func buildPrompt(question string, history []*schema.Message, passages []rag.Document) []*schema.Message {
	system := schema.SystemMessage(fmt.Sprintf(answerPrompt, contextBlock(passages)))
	user := schema.UserMessage(question)

	trimmed := budget.TrimHistory(
		[]*schema.Message{system, user},
		history,
		budget.DefaultMaxContextTokens,
	)

	msgs := make([]*schema.Message, 0, len(trimmed)+2)
	msgs = append(msgs, system)
	msgs = append(msgs, trimmed...)
	msgs = append(msgs, user)
	return msgs
}

// contextBlock concatenates passage texts with visible separators so the
// model can tell passages apart.
func contextBlock(passages []rag.Document) string {
	if len(passages) == 0 {
		return "(no relevant passages found)"
	}
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Content
	}
	return strings.Join(texts, "\n\n---\n\n")
}
