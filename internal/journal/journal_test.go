package journal_test

import (
	"context"
	"testing"
	"time"

	"github.com/omarkets/exchange-engine/internal/engine"
	"github.com/omarkets/exchange-engine/internal/journal"
	"github.com/omarkets/exchange-engine/internal/model"
)

func fill(id, symbol string) engine.Fill {
	return engine.Fill{
		ID:        id,
		Symbol:    symbol,
		Outcome:   model.OutcomeYes,
		Price:     500,
		Quantity:  10,
		TakerID:   "alice",
		MakerID:   "bob",
		MakerKind: model.KindExit,
		Timestamp: time.Now().UTC(),
	}
}

func TestMemorySink(t *testing.T) {
	s := journal.NewMemorySink()
	ctx := context.Background()

	for _, f := range []engine.Fill{fill("f1", "A"), fill("f2", "B"), fill("f3", "A")} {
		if err := s.InsertFill(ctx, f); err != nil {
			t.Fatalf("InsertFill: %v", err)
		}
	}

	got, err := s.FillsBySymbol(ctx, "A")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "f1" || got[1].ID != "f3" {
		t.Fatalf("FillsBySymbol(A): %+v", got)
	}
	if all := s.All(); len(all) != 3 {
		t.Fatalf("All: %d fills, want 3", len(all))
	}
}

func TestWriter_DrainsIntoSink(t *testing.T) {
	s := journal.NewMemorySink()
	w := journal.NewWriter(s, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Record(fill("f1", "A"))
	w.Record(fill("f2", "A"))

	deadline := time.After(2 * time.Second)
	for len(s.All()) < 2 {
		select {
		case <-deadline:
			t.Fatalf("writer drained %d fills, want 2", len(s.All()))
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWriter_RecordNeverBlocks(t *testing.T) {
	// No Run goroutine and a single-slot buffer: the second record must
	// drop rather than block the caller.
	w := journal.NewWriter(journal.NewMemorySink(), 1)

	done := make(chan struct{})
	go func() {
		w.Record(fill("f1", "A"))
		w.Record(fill("f2", "A"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full buffer")
	}
}
