// Package engine implements the exchange core: minting, order matching,
// cancellation, and the admin/view operations. Nothing in this package is
// safe for concurrent use; the sequencer runs every mutating command to
// completion before the next.
package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/omarkets/exchange-engine/internal/book"
	"github.com/omarkets/exchange-engine/internal/ledger"
	"github.com/omarkets/exchange-engine/internal/metrics"
	"github.com/omarkets/exchange-engine/internal/model"
)

// Result is the structured outcome of one command: business rejections
// travel as data, never as errors across the command boundary.
type Result struct {
	StatusCode int `json:"statusCode"`
	Data       any `json:"data"`
}

// BookPublisher receives the book state after every level mutation.
// Implementations must never block the caller.
type BookPublisher interface {
	PublishBook(symbol string, snap model.BookSnapshot)
}

// FillRecorder receives executed fills for the async journal.
// Implementations must never block the caller.
type FillRecorder interface {
	Record(fill Fill)
}

// Fill is one executed match between a taker and a resting order.
type Fill struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Outcome   model.Outcome   `json:"outcome"`
	Price     model.Price     `json:"price"`
	Quantity  int64           `json:"quantity"`
	TakerID   string          `json:"takerId"`
	MakerID   string          `json:"makerId"`
	MakerKind model.OrderKind `json:"makerKind"`
	Minted    bool            `json:"minted"`
	Timestamp time.Time       `json:"timestamp"`
}

// Engine owns the exchange state. Created at process start, cleared only
// by an explicit reset command.
type Engine struct {
	ledger   *ledger.Ledger
	books    *book.Store
	pub      BookPublisher
	recorder FillRecorder
}

// New creates an engine with empty state. pub and recorder may be nil.
func New(pub BookPublisher, recorder FillRecorder) *Engine {
	return &Engine{
		ledger:   ledger.New(),
		books:    book.NewStore(),
		pub:      pub,
		recorder: recorder,
	}
}

// mustLedger guards the lock-pairing invariant: a reserve is consumed by
// exactly one release, settle, or burn. A failure here is a programming
// defect; the panic is recovered by the sequencer into a 500 response.
func mustLedger(err error) {
	if err != nil {
		panic(err)
	}
}

func (e *Engine) publishBook(symbol string, b *book.Book) {
	if e.pub != nil {
		e.pub.PublishBook(symbol, b.Snapshot())
	}
}

func (e *Engine) recordFill(f Fill) {
	if e.recorder != nil {
		e.recorder.Record(f)
	}
	metrics.FillsTotal.WithLabelValues(string(f.Outcome)).Inc()
	metrics.FillVolume.WithLabelValues(f.Symbol).Add(float64(f.Quantity))
}

// --- Result helpers ---

func ok(data any) Result      { return Result{StatusCode: 200, Data: data} }
func created(data any) Result { return Result{StatusCode: 201, Data: data} }

func errorResult(code int, format string, args ...any) Result {
	return Result{StatusCode: code, Data: map[string]string{"error": fmt.Sprintf(format, args...)}}
}

func messageResult(code int, format string, args ...any) Result {
	return Result{StatusCode: code, Data: map[string]string{"message": fmt.Sprintf(format, args...)}}
}

// invalidQuantity rejects zero, negative, and oversized quantities. The
// upper bound keeps quantity×price inside int64 for every valid price.
func invalidQuantity() Result {
	return errorResult(400, "quantity must be a positive integer no larger than %d", model.MaxOrderQuantity)
}

func unknownUser(userID string) Result {
	return errorResult(400, "User with user Id %s does not exist", userID)
}

func unknownSymbol(symbol string) Result {
	return errorResult(400, "Stock with stockSymbol %s does not exist", symbol)
}

// --- Admin operations ---

// CreateAccount registers a user with zero balances.
func (e *Engine) CreateAccount(userID string) Result {
	if err := e.ledger.CreateAccount(userID); err != nil {
		return errorResult(409, "User with user Id %s already exists", userID)
	}
	slog.Info("account created", "user", userID)
	return created(map[string]string{"message": fmt.Sprintf("User %s created", userID)})
}

// CreateSymbol lists a new market with an empty book.
func (e *Engine) CreateSymbol(symbol string) Result {
	if err := e.books.Create(symbol); err != nil {
		return errorResult(409, "Stock with stockSymbol %s already exists", symbol)
	}
	metrics.ActiveSymbols.Set(float64(e.books.Len()))
	slog.Info("symbol created", "symbol", symbol)
	return created(map[string]string{"message": fmt.Sprintf("Symbol %s created", symbol)})
}

// TopUp credits available money. amount is in minor units.
func (e *Engine) TopUp(userID string, amount int64) Result {
	if !e.ledger.Exists(userID) {
		return errorResult(400, "User with ID %s does not exist", userID)
	}
	mustLedger(e.ledger.Deposit(userID, amount))
	slog.Info("onramp", "user", userID, "amount", amount)
	return messageResult(200, "Onramped %s with amount %s", userID, model.MinorToMajor(amount))
}

// Reset clears all state. Operational/test hook only.
func (e *Engine) Reset() Result {
	e.ledger.Reset()
	e.books.Reset()
	metrics.ActiveSymbols.Set(0)
	slog.Info("state reset")
	return ok(map[string]string{"message": "Reset successful"})
}

// --- Minting ---

// MintResponse is returned from a successful mint.
type MintResponse struct {
	Message string `json:"message"`
	Balance int64  `json:"balance"`
}

// Mint locks quantity×price of the minter's money as collateral and
// credits quantity tokens to both outcomes of the symbol. This is the
// only path besides a buy-vs-Bid match that creates tokens, and it always
// creates both sides together.
func (e *Engine) Mint(userID, symbol string, quantity int64, price model.Price) Result {
	if !model.ValidQuantity(quantity) {
		return invalidQuantity()
	}
	if !e.ledger.Exists(userID) {
		return errorResult(404, "User with user Id %s does not exist", userID)
	}
	if !e.books.Exists(symbol) {
		return errorResult(404, "Stock with stockSymbol %s does not exist", symbol)
	}

	cost := quantity * int64(price)
	if err := e.ledger.DebitAvailable(userID, cost); err != nil {
		// Business rejection, not a fault: 200 with a message and no
		// state change.
		return messageResult(200, "Insufficient INR balance")
	}
	mustLedger(e.ledger.CreditStock(userID, symbol, model.OutcomeYes, quantity))
	mustLedger(e.ledger.CreditStock(userID, symbol, model.OutcomeNo, quantity))

	balance, err := e.ledger.BalanceOf(userID)
	mustLedger(err)

	slog.Info("minted", "user", userID, "symbol", symbol, "qty", quantity, "cost", cost)
	return ok(MintResponse{
		Message: fmt.Sprintf("Minted %d 'yes' and 'no' tokens for user %s", quantity, userID),
		Balance: balance.Balance,
	})
}

// --- Matching ---

// Buy crosses a buy for (symbol, outcome) against resting liquidity at or
// below the limit price, resting any remainder as a synthetic Bid on the
// complementary side at the complement price.
func (e *Engine) Buy(userID, symbol string, outcome model.Outcome, quantity int64, price model.Price) Result {
	if !model.ValidQuantity(quantity) {
		return invalidQuantity()
	}
	if !e.ledger.Exists(userID) {
		return unknownUser(userID)
	}
	b, err := e.books.Get(symbol)
	if err != nil {
		return unknownSymbol(symbol)
	}

	required := quantity * int64(price)
	if err := e.ledger.Reserve(userID, required); err != nil {
		return Result{StatusCode: 400, Data: map[string]string{"message": "Insufficient INR balance"}}
	}

	side := b.Side(outcome)
	levels := side.LevelsAtOrBelow(price, userID)

	// No crossing liquidity: the whole order rests as a Bid.
	if len(levels) == 0 {
		e.restBid(b, symbol, userID, outcome, price, quantity)
		e.publishBook(symbol, b)
		return messageResult(200, "Bid Submitted")
	}

	remaining := quantity
	var spent int64
	for _, lv := range levels {
		spent += e.fillBuyLevel(b, symbol, userID, outcome, lv, &remaining)
		side.Prune(lv)
		e.publishBook(symbol, b)
		if remaining == 0 {
			break
		}
	}

	var rested int64
	if remaining > 0 {
		rested = remaining * int64(price)
		e.restBid(b, symbol, userID, outcome, price, remaining)
		e.publishBook(symbol, b)
	}

	// Fills below the limit price cost less than was reserved.
	if surplus := required - spent - rested; surplus > 0 {
		mustLedger(e.ledger.Release(userID, surplus))
	}

	if remaining == 0 {
		return messageResult(200, "Buy order placed and trade executed")
	}
	return messageResult(200, "Buy order partially filled and rest are initiated")
}

// fillBuyLevel fills the taker FIFO against one level and returns the
// amount settled out of the taker's reservation.
func (e *Engine) fillBuyLevel(b *book.Book, symbol, takerID string, outcome model.Outcome, lv *book.Level, remaining *int64) int64 {
	var spent int64
	orders := append([]*book.Order(nil), lv.Orders...)
	for _, o := range orders {
		if *remaining == 0 {
			break
		}
		if o.UserID == takerID {
			continue
		}
		filled := min(*remaining, o.Quantity)
		cost := filled * int64(lv.Price)

		minted := o.Kind == model.KindBid
		if minted {
			// Two opposing buyers at complementary prices: both locks
			// burn as collateral and a fresh pair is minted.
			mustLedger(e.ledger.BurnLocked(takerID, cost))
			mustLedger(e.ledger.BurnLocked(o.UserID, filled*int64(lv.Price.Complement())))
			mustLedger(e.ledger.CreditStock(o.UserID, symbol, outcome.Opposite(), filled))
		} else {
			// Genuine exit: tokens transfer from the maker's lock, money
			// settles from the taker's reservation.
			mustLedger(e.ledger.Settle(takerID, o.UserID, cost))
			mustLedger(e.ledger.ConsumeLockedStock(o.UserID, symbol, outcome, filled))
		}
		mustLedger(e.ledger.CreditStock(takerID, symbol, outcome, filled))

		spent += cost
		lv.Reduce(o, filled)
		*remaining -= filled

		e.recordFill(Fill{
			ID:        uuid.New().String(),
			Symbol:    symbol,
			Outcome:   outcome,
			Price:     lv.Price,
			Quantity:  filled,
			TakerID:   takerID,
			MakerID:   o.UserID,
			MakerKind: o.Kind,
			Minted:    minted,
			Timestamp: time.Now().UTC(),
		})
	}
	return spent
}

// restBid parks an unmatched buy on the complementary side at the
// complement price. The taker's money stays locked until the Bid fills
// or is cancelled.
func (e *Engine) restBid(b *book.Book, symbol, userID string, outcome model.Outcome, price model.Price, quantity int64) {
	b.Side(outcome.Opposite()).Insert(price.Complement(), &book.Order{
		UserID:   userID,
		ID:       uuid.New().String(),
		Quantity: quantity,
		Kind:     model.KindBid,
	})
	metrics.OrdersRested.WithLabelValues(string(model.KindBid)).Inc()
	slog.Info("bid rested", "user", userID, "symbol", symbol, "outcome", outcome,
		"price", price.Major().String(), "qty", quantity)
}

// Sell crosses a sell of owned tokens against Bid-kind interest resting
// at exactly the complement price on the complementary side, then rests
// any remainder as a genuine Exit order. Unlike Buy there is no range
// match here.
func (e *Engine) Sell(userID, symbol string, outcome model.Outcome, quantity int64, price model.Price) Result {
	if !model.ValidQuantity(quantity) {
		return invalidQuantity()
	}
	if !e.ledger.Exists(userID) {
		return unknownUser(userID)
	}
	b, err := e.books.Get(symbol)
	if err != nil {
		return unknownSymbol(symbol)
	}
	if !e.ledger.HoldsSymbol(userID, symbol) {
		return Result{StatusCode: 400, Data: map[string]string{"message": fmt.Sprintf("You do not own any stock of %s", symbol)}}
	}
	if e.ledger.AvailableStock(userID, symbol, outcome) < quantity {
		return Result{StatusCode: 400, Data: map[string]string{"message": "Insufficient stock balance"}}
	}

	opp := b.Side(outcome.Opposite())
	lv := opp.Level(price.Complement())

	var available int64
	if lv != nil {
		available = lv.BidQuantityTo(userID)
	}
	if available == 0 {
		e.restExit(b, symbol, userID, outcome, price, quantity)
		e.publishBook(symbol, b)
		return messageResult(200, "Sell order placed for %d '%s' options at price %s.",
			quantity, outcome, price.Major())
	}

	remaining := quantity
	orders := append([]*book.Order(nil), lv.Orders...)
	for _, o := range orders {
		if remaining == 0 {
			break
		}
		if o.Kind != model.KindBid || o.UserID == userID {
			continue
		}
		filled := min(remaining, o.Quantity)
		proceeds := filled * int64(price)

		// The Bid owner reserved filled×price when their buy rested;
		// the tokens go to them, the lock pays the seller.
		mustLedger(e.ledger.ConsumeAvailableStock(userID, symbol, outcome, filled))
		mustLedger(e.ledger.Settle(o.UserID, userID, proceeds))
		mustLedger(e.ledger.CreditStock(o.UserID, symbol, outcome, filled))

		lv.Reduce(o, filled)
		remaining -= filled

		e.recordFill(Fill{
			ID:        uuid.New().String(),
			Symbol:    symbol,
			Outcome:   outcome,
			Price:     price,
			Quantity:  filled,
			TakerID:   userID,
			MakerID:   o.UserID,
			MakerKind: model.KindBid,
			Timestamp: time.Now().UTC(),
		})
	}
	opp.Prune(lv)
	e.publishBook(symbol, b)

	if remaining > 0 {
		e.restExit(b, symbol, userID, outcome, price, remaining)
		e.publishBook(symbol, b)
		return messageResult(200, "Sell order partially filled and rest are initiated")
	}
	return messageResult(200, "Sell order filled completely")
}

// restExit locks the seller's tokens and parks a genuine sell on the
// order's own side.
func (e *Engine) restExit(b *book.Book, symbol, userID string, outcome model.Outcome, price model.Price, quantity int64) {
	mustLedger(e.ledger.LockStock(userID, symbol, outcome, quantity))
	b.Side(outcome).Insert(price, &book.Order{
		UserID:   userID,
		ID:       uuid.New().String(),
		Quantity: quantity,
		Kind:     model.KindExit,
	})
	metrics.OrdersRested.WithLabelValues(string(model.KindExit)).Inc()
	slog.Info("exit rested", "user", userID, "symbol", symbol, "outcome", outcome,
		"price", price.Major().String(), "qty", quantity)
}

// --- Cancellation ---

// CancelResponse reports what a cancellation removed and refunded.
// RefundedInr is in major units.
type CancelResponse struct {
	Message        string          `json:"message"`
	CancelledCount int             `json:"cancelledCount"`
	RefundedInr    decimal.Decimal `json:"refundedInr"`
	RefundedStock  int64           `json:"refundedStock"`
}

// Cancel removes all of the user's resting interest for (symbol, outcome)
// across both physical locations, Exit orders on the outcome's own side
// and Bids on the complementary side, and reverses their locks. A no-op
// unless at least one order is found.
func (e *Engine) Cancel(userID, symbol string, outcome model.Outcome) Result {
	if !e.ledger.Exists(userID) {
		return unknownUser(userID)
	}
	b, err := e.books.Get(symbol)
	if err != nil {
		return unknownSymbol(symbol)
	}

	var (
		cancelled     int
		refundedMinor int64
		refundedStock int64
	)

	// Exit orders rest on the outcome's own side; refund locked stock.
	for _, lv := range b.Side(outcome).Levels() {
		for _, o := range userOrders(lv, userID, model.KindExit) {
			mustLedger(e.ledger.UnlockStock(userID, symbol, outcome, o.Quantity))
			refundedStock += o.Quantity
			lv.Reduce(o, o.Quantity)
			cancelled++
		}
		b.Side(outcome).Prune(lv)
	}

	// Bids for this outcome rest on the complementary side at the
	// complement price; recover the original limit price to size the
	// money refund.
	for _, lv := range b.Side(outcome.Opposite()).Levels() {
		originalPrice := lv.Price.Complement()
		for _, o := range userOrders(lv, userID, model.KindBid) {
			refund := o.Quantity * int64(originalPrice)
			mustLedger(e.ledger.Release(userID, refund))
			refundedMinor += refund
			lv.Reduce(o, o.Quantity)
			cancelled++
		}
		b.Side(outcome.Opposite()).Prune(lv)
	}

	if cancelled == 0 {
		return messageResult(404, "No pending orders found for %s on %s", outcome, symbol)
	}

	e.publishBook(symbol, b)
	metrics.OrdersCancelled.Add(float64(cancelled))
	slog.Info("orders cancelled", "user", userID, "symbol", symbol, "outcome", outcome,
		"count", cancelled, "refunded_money", refundedMinor, "refunded_stock", refundedStock)

	return ok(CancelResponse{
		Message:        fmt.Sprintf("Cancelled %d order(s)", cancelled),
		CancelledCount: cancelled,
		RefundedInr:    model.MinorToMajor(refundedMinor),
		RefundedStock:  refundedStock,
	})
}

// userOrders snapshots the user's orders of one kind at a level, so the
// caller can mutate the level while iterating.
func userOrders(lv *book.Level, userID string, kind model.OrderKind) []*book.Order {
	var out []*book.Order
	for _, o := range lv.Orders {
		if o.UserID == userID && o.Kind == kind {
			out = append(out, o)
		}
	}
	return out
}

// --- Views ---

// Balances returns every user's money balance.
func (e *Engine) Balances() Result {
	return ok(e.ledger.Balances())
}

// BalanceOf returns one user's available balance in minor units.
func (e *Engine) BalanceOf(userID string) Result {
	bal, err := e.ledger.BalanceOf(userID)
	if err != nil {
		return errorResult(400, "User with ID %s does not exist", userID)
	}
	return ok(bal.Balance)
}

// Positions returns every user's holdings.
func (e *Engine) Positions() Result {
	return ok(e.ledger.Positions())
}

// PositionsOf returns one user's holdings across all symbols.
func (e *Engine) PositionsOf(userID string) Result {
	positions, err := e.ledger.PositionsOf(userID)
	if err != nil {
		return errorResult(400, "User with Id %s does not exist", userID)
	}
	if len(positions) == 0 {
		return messageResult(200, "No stocks for user with userId %s", userID)
	}
	return ok(positions)
}

// OrderBook returns every symbol's book.
func (e *Engine) OrderBook() Result {
	return ok(e.books.SnapshotAll())
}

// OrderBookOf returns one symbol's book.
func (e *Engine) OrderBookOf(symbol string) Result {
	snap, err := e.books.Snapshot(symbol)
	if err != nil {
		return errorResult(404, "Stock with stockSymbol %s does not exist", symbol)
	}
	return ok(snap)
}
