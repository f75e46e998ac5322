package server

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// LLMPinger probes an LLM backend by sending a minimal single-token generate
// request. It satisfies the Pinger interface and is used by GET /api/ready.
type LLMPinger struct {
	// model is the chat model to probe.
	model model.BaseChatModel
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewLLMPinger constructs an LLMPinger for the given model and backend name.
func NewLLMPinger(m model.BaseChatModel, name string) *LLMPinger {
	return &LLMPinger{model: m, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping sends a single-token generate request to the backend. Consumes tokens,
// so keep readiness polling intervals reasonable.
func (p *LLMPinger) Ping(ctx context.Context) error {
	msgs := []*schema.Message{
		schema.UserMessage("ping"),
	}
	resp, err := p.model.Generate(ctx, msgs)
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}

// storePinger wraps any vector store that exposes its own reachability probe.
type storePinger interface {
	Ping(ctx context.Context) error
}

// VectorStorePinger probes the vector store backing the knowledge base.
// It satisfies the Pinger interface and is used by GET /api/ready.
type VectorStorePinger struct {
	store storePinger
	name  string
}

// NewVectorStorePinger constructs a VectorStorePinger for the given store and
// dependency name (e.g. "qdrant").
func NewVectorStorePinger(store storePinger, name string) *VectorStorePinger {
	return &VectorStorePinger{store: store, name: name}
}

// Name returns the dependency label used in readiness responses.
func (p *VectorStorePinger) Name() string { return p.name }

// Ping delegates to the store's own health probe.
func (p *VectorStorePinger) Ping(ctx context.Context) error {
	return p.store.Ping(ctx)
}
