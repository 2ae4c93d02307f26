// Package gateway provides the HTTP surface of the exchange. Handlers
// validate request shape, translate routes into command envelopes, and
// await the correlated response from the sequencer. No business rule
// lives here; an enqueued command is already well-formed.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/omarkets/exchange-engine/internal/model"
	"github.com/omarkets/exchange-engine/internal/queue"
)

// DefaultAwaitTimeout bounds how long a handler waits for the engine. A
// missing response is reported as a gateway timeout, never treated as an
// authoritative answer.
const DefaultAwaitTimeout = 5 * time.Second

// Gateway translates HTTP traffic into sequenced commands.
type Gateway struct {
	q       queue.Enqueuer
	timeout time.Duration
}

// New creates a gateway over the given transport. timeout ≤ 0 selects
// DefaultAwaitTimeout.
func New(q queue.Enqueuer, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = DefaultAwaitTimeout
	}
	return &Gateway{q: q, timeout: timeout}
}

// Router returns the exchange route table.
func (g *Gateway) Router() chi.Router {
	r := chi.NewRouter()

	r.Post("/user/create/{userId}", g.CreateAccount)
	r.Post("/symbol/create/{stockSymbol}", g.CreateSymbol)
	r.Post("/trade/mint", g.Mint)
	r.Post("/onramp/inr", g.TopUp)

	r.Get("/balances/inr", g.Balances)
	r.Get("/balances/inr/{userId}", g.BalanceByUser)
	r.Get("/balances/stock", g.Positions)
	r.Get("/balances/stock/{userId}", g.PositionsByUser)

	r.Get("/orderbook", g.OrderBook)
	r.Get("/orderbook/{stockSymbol}", g.OrderBookBySymbol)

	r.Post("/order/buy", g.Buy)
	r.Post("/order/sell", g.Sell)
	r.Post("/order/cancel", g.Cancel)

	r.Post("/reset", g.Reset)

	return r
}

// --- Request types (wire shapes from the original service) ---

// OrderRequest is the JSON body for buy, sell, and cancel. Quantity and
// price are ignored by cancel.
type OrderRequest struct {
	UserID      string          `json:"userId"`
	StockSymbol string          `json:"stockSymbol"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	StockType   string          `json:"stockType"`
}

// MintRequest is the JSON body for POST /trade/mint.
type MintRequest struct {
	UserID      string          `json:"userId"`
	StockSymbol string          `json:"stockSymbol"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// OnRampRequest is the JSON body for POST /onramp/inr. Amount is in
// major units.
type OnRampRequest struct {
	UserID string          `json:"userId"`
	Amount decimal.Decimal `json:"amount"`
}

// --- Handlers ---

// CreateAccount handles POST /user/create/{userId}.
func (g *Gateway) CreateAccount(w http.ResponseWriter, r *http.Request) {
	g.dispatch(w, r, queue.Command{
		Endpoint: queue.EndpointCreateAccount,
		Request:  queue.Request{Params: queue.Params{UserID: chi.URLParam(r, "userId")}},
	})
}

// CreateSymbol handles POST /symbol/create/{stockSymbol}.
func (g *Gateway) CreateSymbol(w http.ResponseWriter, r *http.Request) {
	g.dispatch(w, r, queue.Command{
		Endpoint: queue.EndpointCreateSymbol,
		Request:  queue.Request{Params: queue.Params{StockSymbol: chi.URLParam(r, "stockSymbol")}},
	})
}

// Mint handles POST /trade/mint.
func (g *Gateway) Mint(w http.ResponseWriter, r *http.Request) {
	var req MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.StockSymbol == "" || !model.ValidQuantity(req.Quantity) || req.Price.IsZero() {
		writeError(w, "userId, stockSymbol, quantity and price are required", http.StatusBadRequest)
		return
	}
	if _, err := model.ParsePrice(req.Price); err != nil {
		writeError(w, "price must be a multiple of 0.5 between 0.5 and 10", http.StatusBadRequest)
		return
	}
	g.dispatch(w, r, queue.Command{
		Endpoint: queue.EndpointMint,
		Request: queue.Request{Body: queue.Body{
			UserID:      req.UserID,
			StockSymbol: req.StockSymbol,
			Quantity:    req.Quantity,
			Price:       req.Price,
		}},
	})
}

// TopUp handles POST /onramp/inr.
func (g *Gateway) TopUp(w http.ResponseWriter, r *http.Request) {
	var req OnRampRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.Amount.Sign() <= 0 {
		writeError(w, "userId and a positive amount are required", http.StatusBadRequest)
		return
	}
	if _, err := model.MajorToMinor(req.Amount); err != nil {
		writeError(w, "amount has more precision than minor units allow", http.StatusBadRequest)
		return
	}
	g.dispatch(w, r, queue.Command{
		Endpoint: queue.EndpointTopUp,
		Request:  queue.Request{Body: queue.Body{UserID: req.UserID, Amount: req.Amount}},
	})
}

// Buy handles POST /order/buy.
func (g *Gateway) Buy(w http.ResponseWriter, r *http.Request) {
	g.order(w, r, queue.EndpointBuy)
}

// Sell handles POST /order/sell.
func (g *Gateway) Sell(w http.ResponseWriter, r *http.Request) {
	g.order(w, r, queue.EndpointSell)
}

func (g *Gateway) order(w http.ResponseWriter, r *http.Request, endpoint string) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.StockSymbol == "" || !model.Outcome(req.StockType).Valid() {
		writeError(w, "userId, stockSymbol, quantity, price and stockType are required", http.StatusBadRequest)
		return
	}
	if !model.ValidQuantity(req.Quantity) {
		writeError(w, "quantity must be a positive integer", http.StatusBadRequest)
		return
	}
	if _, err := model.ParsePrice(req.Price); err != nil {
		writeError(w, "price must be a multiple of 0.5 between 0.5 and 10", http.StatusBadRequest)
		return
	}
	g.dispatch(w, r, queue.Command{
		Endpoint: endpoint,
		Request: queue.Request{Body: queue.Body{
			UserID:      req.UserID,
			StockSymbol: req.StockSymbol,
			Quantity:    req.Quantity,
			Price:       req.Price,
			StockType:   req.StockType,
		}},
	})
}

// Cancel handles POST /order/cancel.
func (g *Gateway) Cancel(w http.ResponseWriter, r *http.Request) {
	var req OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.StockSymbol == "" || !model.Outcome(req.StockType).Valid() {
		writeError(w, "userId, stockSymbol and stockType are required", http.StatusBadRequest)
		return
	}
	g.dispatch(w, r, queue.Command{
		Endpoint: queue.EndpointCancel,
		Request: queue.Request{Body: queue.Body{
			UserID:      req.UserID,
			StockSymbol: req.StockSymbol,
			StockType:   req.StockType,
		}},
	})
}

// Balances handles GET /balances/inr.
func (g *Gateway) Balances(w http.ResponseWriter, r *http.Request) {
	g.dispatch(w, r, queue.Command{Endpoint: queue.EndpointBalances})
}

// BalanceByUser handles GET /balances/inr/{userId}.
func (g *Gateway) BalanceByUser(w http.ResponseWriter, r *http.Request) {
	g.dispatch(w, r, queue.Command{
		Endpoint: queue.EndpointBalanceByUser,
		Request:  queue.Request{Params: queue.Params{UserID: chi.URLParam(r, "userId")}},
	})
}

// Positions handles GET /balances/stock.
func (g *Gateway) Positions(w http.ResponseWriter, r *http.Request) {
	g.dispatch(w, r, queue.Command{Endpoint: queue.EndpointPositions})
}

// PositionsByUser handles GET /balances/stock/{userId}.
func (g *Gateway) PositionsByUser(w http.ResponseWriter, r *http.Request) {
	g.dispatch(w, r, queue.Command{
		Endpoint: queue.EndpointPositionsUser,
		Request:  queue.Request{Params: queue.Params{UserID: chi.URLParam(r, "userId")}},
	})
}

// OrderBook handles GET /orderbook.
func (g *Gateway) OrderBook(w http.ResponseWriter, r *http.Request) {
	g.dispatch(w, r, queue.Command{Endpoint: queue.EndpointOrderBook})
}

// OrderBookBySymbol handles GET /orderbook/{stockSymbol}.
func (g *Gateway) OrderBookBySymbol(w http.ResponseWriter, r *http.Request) {
	g.dispatch(w, r, queue.Command{
		Endpoint: queue.EndpointOrderBookOfSym,
		Request:  queue.Request{Params: queue.Params{StockSymbol: chi.URLParam(r, "stockSymbol")}},
	})
}

// Reset handles POST /reset.
func (g *Gateway) Reset(w http.ResponseWriter, r *http.Request) {
	g.dispatch(w, r, queue.Command{Endpoint: queue.EndpointReset})
}

// dispatch enqueues the command and relays its correlated response.
func (g *Gateway) dispatch(w http.ResponseWriter, r *http.Request, cmd queue.Command) {
	cmd.ID = uuid.New().String()

	ctx, cancel := context.WithTimeout(r.Context(), g.timeout)
	defer cancel()

	slot, err := g.q.Enqueue(ctx, cmd)
	if err != nil {
		slog.Error("command enqueue failed", "endpoint", cmd.Endpoint, "err", err)
		writeError(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}

	select {
	case resp := <-slot:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(resp.StatusCode)
		json.NewEncoder(w).Encode(resp.Data)
	case <-ctx.Done():
		slog.Error("engine response timed out", "endpoint", cmd.Endpoint, "id", cmd.ID)
		writeError(w, "engine did not respond in time", http.StatusGatewayTimeout)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
