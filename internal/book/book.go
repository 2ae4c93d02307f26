// Package book implements the per-symbol complementary order-book store:
// two price-indexed tables of resting orders per symbol, one per outcome,
// with time priority preserved inside each price level.
//
// A level is deleted the instant its total reaches zero, so an existing
// level always carries resting quantity.
package book

import (
	"errors"
	"fmt"
	"sort"

	"github.com/omarkets/exchange-engine/internal/model"
)

var (
	ErrSymbolExists   = errors.New("book: symbol already exists")
	ErrSymbolNotFound = errors.New("book: symbol not found")
)

// Order is one unit of resting interest. Quantity is the remaining,
// unfilled amount.
type Order struct {
	UserID   string
	ID       string
	Quantity int64
	Kind     model.OrderKind
}

// Level is all resting interest at one price, FIFO by insertion.
type Level struct {
	Price  model.Price
	Total  int64
	Orders []*Order
}

// append adds an order at the back of the time-priority queue.
func (lv *Level) append(o *Order) {
	lv.Orders = append(lv.Orders, o)
	lv.Total += o.Quantity
}

// Reduce shrinks an order's remaining quantity, dropping it from the
// level once fully consumed.
func (lv *Level) Reduce(o *Order, qty int64) {
	o.Quantity -= qty
	lv.Total -= qty
	if o.Quantity == 0 {
		lv.remove(o)
	}
}

func (lv *Level) remove(o *Order) {
	for i, cur := range lv.Orders {
		if cur == o {
			lv.Orders = append(lv.Orders[:i], lv.Orders[i+1:]...)
			return
		}
	}
}

// AvailableTo sums the remaining quantity visible to taker: everything at
// this level except the taker's own orders. Self-match prevention.
func (lv *Level) AvailableTo(taker string) int64 {
	var total int64
	for _, o := range lv.Orders {
		if o.UserID != taker {
			total += o.Quantity
		}
	}
	return total
}

// BidQuantityTo sums the remaining quantity of Bid-kind orders visible to
// taker. Only Bids qualify for complementary sell matching.
func (lv *Level) BidQuantityTo(taker string) int64 {
	var total int64
	for _, o := range lv.Orders {
		if o.Kind == model.KindBid && o.UserID != taker {
			total += o.Quantity
		}
	}
	return total
}

// Side is one outcome's price-indexed table of levels.
type Side map[model.Price]*Level

// Insert places an order at price, creating the level on first use.
func (s Side) Insert(price model.Price, o *Order) {
	lv, ok := s[price]
	if !ok {
		lv = &Level{Price: price}
		s[price] = lv
	}
	lv.append(o)
}

// Level returns the level resting at exactly price, or nil. Exact-price
// lookup for complementary matching.
func (s Side) Level(price model.Price) *Level {
	return s[price]
}

// Prune deletes the level if its total has reached zero.
func (s Side) Prune(lv *Level) {
	if lv.Total == 0 {
		delete(s, lv.Price)
	}
}

// LevelsAtOrBelow returns the levels priced at or below ceiling that hold
// quantity visible to taker, ascending by price.
func (s Side) LevelsAtOrBelow(ceiling model.Price, taker string) []*Level {
	var matched []*Level
	for price, lv := range s {
		if price <= ceiling && lv.AvailableTo(taker) > 0 {
			matched = append(matched, lv)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Price < matched[j].Price
	})
	return matched
}

// Levels returns every level ascending by price.
func (s Side) Levels() []*Level {
	out := make([]*Level, 0, len(s))
	for _, lv := range s {
		out = append(out, lv)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Price < out[j].Price
	})
	return out
}

// Book is one symbol's pair of complementary sides.
type Book struct {
	yes Side
	no  Side
}

func newBook() *Book {
	return &Book{yes: make(Side), no: make(Side)}
}

// Side returns the table for one outcome.
func (b *Book) Side(outcome model.Outcome) Side {
	if outcome == model.OutcomeYes {
		return b.yes
	}
	return b.no
}

// Snapshot renders the book for external consumers, prices in major units.
func (b *Book) Snapshot() model.BookSnapshot {
	return model.BookSnapshot{
		Yes: snapshotSide(b.yes),
		No:  snapshotSide(b.no),
	}
}

func snapshotSide(s Side) model.SideSnapshot {
	out := make(model.SideSnapshot, len(s))
	for price, lv := range s {
		orders := make([]model.OrderSnapshot, 0, len(lv.Orders))
		for _, o := range lv.Orders {
			orders = append(orders, model.OrderSnapshot{
				UserID:   o.UserID,
				ID:       o.ID,
				Quantity: o.Quantity,
				Kind:     o.Kind,
			})
		}
		out[price.Major().String()] = model.LevelSnapshot{Total: lv.Total, Orders: orders}
	}
	return out
}

// Store is the symbol → book table. Markets are created by the admin
// create-symbol path and never deleted; unknown symbols are a NotFound,
// never auto-created.
type Store struct {
	books map[string]*Book
}

// NewStore creates an empty book store.
func NewStore() *Store {
	return &Store{books: make(map[string]*Book)}
}

// Create registers a new symbol with an empty book.
func (s *Store) Create(symbol string) error {
	if _, ok := s.books[symbol]; ok {
		return fmt.Errorf("%w: %s", ErrSymbolExists, symbol)
	}
	s.books[symbol] = newBook()
	return nil
}

// Get returns the book for symbol.
func (s *Store) Get(symbol string) (*Book, error) {
	b, ok := s.books[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotFound, symbol)
	}
	return b, nil
}

// Exists reports whether the symbol is listed.
func (s *Store) Exists(symbol string) bool {
	_, ok := s.books[symbol]
	return ok
}

// Len returns the number of listed symbols.
func (s *Store) Len() int {
	return len(s.books)
}

// Reset drops every book. Operational/test hook only.
func (s *Store) Reset() {
	s.books = make(map[string]*Book)
}

// Snapshot renders one symbol's book.
func (s *Store) Snapshot(symbol string) (model.BookSnapshot, error) {
	b, err := s.Get(symbol)
	if err != nil {
		return model.BookSnapshot{}, err
	}
	return b.Snapshot(), nil
}

// SnapshotAll renders every listed book keyed by symbol.
func (s *Store) SnapshotAll() map[string]model.BookSnapshot {
	out := make(map[string]model.BookSnapshot, len(s.books))
	for symbol, b := range s.books {
		out[symbol] = b.Snapshot()
	}
	return out
}
