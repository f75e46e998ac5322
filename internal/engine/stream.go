package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// EventType discriminates streaming events.
type EventType string

const (
	// EventSource carries the attributed sources, emitted exactly once
	// before the first answer fragment.
	EventSource EventType = "source"
	// EventAnswer carries one answer text fragment. Concatenating all
	// answer fragments in order reconstructs the full answer.
	EventAnswer EventType = "answer"
	// EventError carries a failure. It is always the last event.
	EventError EventType = "error"
)

// Event is one element of an answer stream.
type Event struct {
	// Type discriminates the payload fields below.
	Type EventType

	// Content is the text fragment for answer events.
	Content string

	// Sources is set on the source event.
	Sources []Source

	// Err is set on error events.
	Err error
}

// AskStream answers a question like Ask but streams the result. The returned
// channel yields one source event (after retrieval, before any answer text),
// then answer fragments in order, and closes when the model finishes. Any
// stage failure after the stream starts is delivered as a final error event.
// Validation and knowledge-base errors are returned directly.
//
// Cancelling ctx stops consumption and closes the underlying model stream.
func (e *Engine) AskStream(ctx context.Context, question string, history []ChatTurn) (<-chan Event, error) {
	question, hist, c, err := e.prepare(ctx, question, history)
	if err != nil {
		return nil, err
	}

	events := make(chan Event)
	go func() {
		defer close(events)

		rewritten, docs, err := c.run(ctx, question, hist)
		if err != nil {
			emit(ctx, events, Event{Type: EventError, Err: err})
			return
		}

		if !emit(ctx, events, Event{Type: EventSource, Sources: attributeSources(docs)}) {
			return
		}

		sr, err := c.chatModel.Stream(ctx, buildPrompt(rewritten, hist, docs))
		if err != nil {
			emit(ctx, events, Event{Type: EventError, Err: fmt.Errorf("engine: starting answer stream: %w: %w", ErrGeneration, err)})
			return
		}
		defer sr.Close()

		for {
			msg, err := sr.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				emit(ctx, events, Event{Type: EventError, Err: fmt.Errorf("engine: answer stream: %w: %w", ErrGeneration, err)})
				return
			}
			if msg == nil || msg.Content == "" {
				continue
			}
			if !emit(ctx, events, Event{Type: EventAnswer, Content: msg.Content}) {
				return
			}
		}
	}()

	return events, nil
}

// emit sends ev unless the caller has gone away. Returns false when the
// context is done and the stream should stop.
func emit(ctx context.Context, ch chan<- Event, ev Event) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
