package engine

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/quilldocs/docqa-go/internal/rag"
)

// chain is an immutable snapshot of the question-answering pipeline built
// against one version of the index. Rebuilds swap a fresh chain in
// atomically; readers never see a half-built one.
type chain struct {
	// retriever fetches the most relevant passages for a query.
	retriever rag.Retriever

	// chatModel rewrites follow-up questions and generates answers.
	chatModel model.BaseChatModel

	// topK is the number of passages retrieved per question.
	topK int
}

// run executes the retrieval half of the pipeline: rewrite the question
// against the conversation, then fetch the passages the answer will be
// grounded in.
func (c *chain) run(ctx context.Context, question string, history []*schema.Message) (string, []rag.Document, error) {
	rewritten, err := c.rewrite(ctx, question, history)
	if err != nil {
		return "", nil, err
	}

	docs, err := c.retriever.Retrieve(ctx, rewritten, c.topK)
	if err != nil {
		return "", nil, fmt.Errorf("engine: retrieving passages: %w", err)
	}

	return rewritten, docs, nil
}
