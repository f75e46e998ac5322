package engine

import "errors"

var (
	// ErrNoKnowledgeBase is returned by Ask when no documents have been
	// ingested and no persisted index exists. Match with errors.Is.
	ErrNoKnowledgeBase = errors.New("engine: no documents have been ingested")

	// ErrInvalidQuery is returned for an empty question or a history turn
	// with an unknown role. Match with errors.Is.
	ErrInvalidQuery = errors.New("engine: invalid query")

	// ErrGeneration marks failures of the chat model during rewriting or
	// answer generation. Match with errors.Is.
	ErrGeneration = errors.New("engine: generation failed")
)
