// Package journal records executed fills for audit and analysis. Fills
// are handed off through a buffered channel and written by a worker
// goroutine, so the sequencer never performs blocking I/O while it holds
// the right to mutate state. The journal is an append-only side record;
// engine state is never restored from it.
package journal

import (
	"context"
	"log/slog"
	"sync"

	"github.com/omarkets/exchange-engine/internal/engine"
)

// Sink persists fills. Implementations include PostgreSQL and in-memory
// (for testing and single-node runs).
type Sink interface {
	// InsertFill appends an immutable fill record.
	InsertFill(ctx context.Context, fill engine.Fill) error

	// FillsBySymbol returns all recorded fills for one symbol.
	FillsBySymbol(ctx context.Context, symbol string) ([]engine.Fill, error)
}

// Writer decouples fill recording from the sequencer. Record never
// blocks; fills are dropped with a warning when the buffer is full.
type Writer struct {
	sink  Sink
	fills chan engine.Fill
}

// NewWriter creates a writer over sink with the given buffer depth.
// Run must be started in a goroutine before fills arrive.
func NewWriter(sink Sink, depth int) *Writer {
	return &Writer{
		sink:  sink,
		fills: make(chan engine.Fill, depth),
	}
}

// Record implements the engine's FillRecorder hook.
func (w *Writer) Record(fill engine.Fill) {
	select {
	case w.fills <- fill:
	default:
		slog.Warn("fill journal buffer full, dropping record", "fill", fill.ID)
	}
}

// Run drains the fill buffer into the sink until ctx is cancelled.
func (w *Writer) Run(ctx context.Context) {
	for {
		select {
		case fill := <-w.fills:
			if err := w.sink.InsertFill(ctx, fill); err != nil {
				slog.Error("fill journal write failed", "fill", fill.ID, "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// MemorySink implements Sink with an in-memory slice. Used for testing
// and single-node runs without PostgreSQL.
type MemorySink struct {
	mu    sync.RWMutex
	fills []engine.Fill
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) InsertFill(_ context.Context, fill engine.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fills = append(s.fills, fill)
	return nil
}

func (s *MemorySink) FillsBySymbol(_ context.Context, symbol string) ([]engine.Fill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []engine.Fill
	for _, f := range s.fills {
		if f.Symbol == symbol {
			out = append(out, f)
		}
	}
	return out, nil
}

// All returns every recorded fill in insertion order.
func (s *MemorySink) All() []engine.Fill {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]engine.Fill(nil), s.fills...)
}
