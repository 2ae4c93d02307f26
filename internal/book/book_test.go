package book_test

import (
	"errors"
	"testing"

	"github.com/omarkets/exchange-engine/internal/book"
	"github.com/omarkets/exchange-engine/internal/model"
)

func order(user, id string, qty int64, kind model.OrderKind) *book.Order {
	return &book.Order{UserID: user, ID: id, Quantity: qty, Kind: kind}
}

func TestStore_CreateAndGet(t *testing.T) {
	s := book.NewStore()
	if err := s.Create("BTC_USDT_10_Oct"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create("BTC_USDT_10_Oct"); !errors.Is(err, book.ErrSymbolExists) {
		t.Fatalf("duplicate create err = %v, want ErrSymbolExists", err)
	}
	if _, err := s.Get("UNKNOWN"); !errors.Is(err, book.ErrSymbolNotFound) {
		t.Fatalf("get unknown err = %v, want ErrSymbolNotFound", err)
	}
	if !s.Exists("BTC_USDT_10_Oct") || s.Len() != 1 {
		t.Fatal("Exists/Len out of step with Create")
	}
}

func TestSide_InsertAndLevel(t *testing.T) {
	s := make(book.Side)
	s.Insert(500, order("alice", "o1", 10, model.KindBid))
	s.Insert(500, order("bob", "o2", 5, model.KindExit))

	lv := s.Level(500)
	if lv == nil {
		t.Fatal("level 500 missing")
	}
	if lv.Total != 15 {
		t.Fatalf("total = %d, want 15", lv.Total)
	}
	// FIFO: first inserted stays first.
	if lv.Orders[0].ID != "o1" || lv.Orders[1].ID != "o2" {
		t.Fatal("time priority broken")
	}
	if s.Level(550) != nil {
		t.Fatal("phantom level")
	}
}

func TestLevel_Reduce(t *testing.T) {
	s := make(book.Side)
	o := order("alice", "o1", 10, model.KindBid)
	s.Insert(500, o)

	lv := s.Level(500)
	lv.Reduce(o, 4)
	if o.Quantity != 6 || lv.Total != 6 {
		t.Fatalf("after partial reduce: qty=%d total=%d", o.Quantity, lv.Total)
	}

	lv.Reduce(o, 6)
	if len(lv.Orders) != 0 || lv.Total != 0 {
		t.Fatal("fully reduced order must leave the level")
	}
	s.Prune(lv)
	if s.Level(500) != nil {
		t.Fatal("empty level must be pruned")
	}
}

func TestLevel_AvailableTo(t *testing.T) {
	s := make(book.Side)
	s.Insert(500, order("alice", "o1", 10, model.KindBid))
	s.Insert(500, order("bob", "o2", 5, model.KindBid))

	lv := s.Level(500)
	if got := lv.AvailableTo("alice"); got != 5 {
		t.Errorf("AvailableTo(alice) = %d, want 5", got)
	}
	if got := lv.AvailableTo("carol"); got != 15 {
		t.Errorf("AvailableTo(carol) = %d, want 15", got)
	}
}

func TestLevel_BidQuantityTo(t *testing.T) {
	s := make(book.Side)
	s.Insert(500, order("alice", "o1", 10, model.KindBid))
	s.Insert(500, order("bob", "o2", 7, model.KindExit))
	s.Insert(500, order("carol", "o3", 3, model.KindBid))

	lv := s.Level(500)
	if got := lv.BidQuantityTo("dave"); got != 13 {
		t.Errorf("BidQuantityTo(dave) = %d, want 13 (exits excluded)", got)
	}
	if got := lv.BidQuantityTo("alice"); got != 3 {
		t.Errorf("BidQuantityTo(alice) = %d, want 3 (own bid excluded)", got)
	}
}

func TestSide_LevelsAtOrBelow(t *testing.T) {
	s := make(book.Side)
	s.Insert(300, order("alice", "o1", 1, model.KindExit))
	s.Insert(150, order("bob", "o2", 2, model.KindExit))
	s.Insert(450, order("carol", "o3", 3, model.KindExit))
	s.Insert(500, order("dave", "o4", 4, model.KindExit))

	levels := s.LevelsAtOrBelow(450, "")
	if len(levels) != 3 {
		t.Fatalf("matched %d levels, want 3", len(levels))
	}
	// Cheapest first.
	if levels[0].Price != 150 || levels[1].Price != 300 || levels[2].Price != 450 {
		t.Fatalf("wrong order: %d %d %d", levels[0].Price, levels[1].Price, levels[2].Price)
	}

	// A level holding only the taker's own orders is invisible.
	if got := s.LevelsAtOrBelow(450, "bob"); len(got) != 2 {
		t.Fatalf("self-match exclusion: matched %d levels, want 2", len(got))
	}
}

func TestBook_SidesAreIndependent(t *testing.T) {
	s := book.NewStore()
	if err := s.Create("SYM"); err != nil {
		t.Fatal(err)
	}
	b, _ := s.Get("SYM")
	b.Side(model.OutcomeYes).Insert(500, order("alice", "o1", 10, model.KindExit))

	if b.Side(model.OutcomeNo).Level(500) != nil {
		t.Fatal("order leaked onto the opposite side")
	}
}

func TestSnapshot(t *testing.T) {
	s := book.NewStore()
	if err := s.Create("SYM"); err != nil {
		t.Fatal(err)
	}
	b, _ := s.Get("SYM")
	b.Side(model.OutcomeNo).Insert(250, order("alice", "o1", 10, model.KindBid))

	snap, err := s.Snapshot("SYM")
	if err != nil {
		t.Fatal(err)
	}
	lv, ok := snap.No["2.5"]
	if !ok {
		t.Fatalf("snapshot missing level 2.5: %+v", snap.No)
	}
	if lv.Total != 10 || len(lv.Orders) != 1 {
		t.Fatalf("level snapshot: %+v", lv)
	}
	o := lv.Orders[0]
	if o.UserID != "alice" || o.Quantity != 10 || o.Kind != model.KindBid {
		t.Fatalf("order snapshot: %+v", o)
	}
	if len(snap.Yes) != 0 {
		t.Fatal("yes side must be empty")
	}

	all := s.SnapshotAll()
	if _, ok := all["SYM"]; !ok || len(all) != 1 {
		t.Fatalf("SnapshotAll: %v", all)
	}
}
