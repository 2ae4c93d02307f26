package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// ChannelTransport carries commands over an in-process buffered channel
// with a map of one-shot completion slots keyed by command id. Used when
// gateway and engine run in one binary, and in tests.
type ChannelTransport struct {
	commands chan Command

	mu      sync.Mutex
	pending map[string]chan Response
}

// NewChannelTransport creates a transport with the given queue depth.
func NewChannelTransport(depth int) *ChannelTransport {
	return &ChannelTransport{
		commands: make(chan Command, depth),
		pending:  make(map[string]chan Response),
	}
}

// Enqueue registers a completion slot and submits the command.
func (t *ChannelTransport) Enqueue(ctx context.Context, cmd Command) (<-chan Response, error) {
	slot := make(chan Response, 1)
	t.mu.Lock()
	t.pending[cmd.ID] = slot
	t.mu.Unlock()

	select {
	case t.commands <- cmd:
		return slot, nil
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, cmd.ID)
		t.mu.Unlock()
		return nil, fmt.Errorf("queue: enqueue %s: %w", cmd.Endpoint, ctx.Err())
	}
}

// Next blocks until a command arrives.
func (t *ChannelTransport) Next(ctx context.Context) (Command, error) {
	select {
	case cmd := <-t.commands:
		return cmd, nil
	case <-ctx.Done():
		return Command{}, ctx.Err()
	}
}

// Respond completes the slot registered for id. A missing slot means the
// caller gave up; the response is dropped.
func (t *ChannelTransport) Respond(_ context.Context, id string, resp Response) error {
	t.mu.Lock()
	slot, ok := t.pending[id]
	delete(t.pending, id)
	t.mu.Unlock()

	if !ok {
		slog.Warn("response for unknown command id dropped", "id", id)
		return nil
	}
	slot <- resp
	return nil
}
