// Package sequencer is the concurrency boundary of the exchange: one
// goroutine draws commands from an ordered stream and runs each to
// completion against the engine before dequeuing the next, which stands
// in for fine-grained locking on the shared tables.
//
// Every command yields exactly one correlated response. A panicking
// handler is recovered into a 500 so the loop keeps serving.
package sequencer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/omarkets/exchange-engine/internal/engine"
	"github.com/omarkets/exchange-engine/internal/metrics"
	"github.com/omarkets/exchange-engine/internal/model"
	"github.com/omarkets/exchange-engine/internal/queue"
)

// Sequencer is the sole owner and consumer of the engine's mutable state.
type Sequencer struct {
	engine    *engine.Engine
	source    queue.Source
	responder queue.Responder
}

// New creates a sequencer over the given transport ends.
func New(eng *engine.Engine, source queue.Source, responder queue.Responder) *Sequencer {
	return &Sequencer{engine: eng, source: source, responder: responder}
}

// Run consumes commands until ctx is cancelled. A dequeued command is
// not cancellable; it runs to completion or reports a definite outcome.
func (s *Sequencer) Run(ctx context.Context) error {
	slog.Info("sequencer started")
	for {
		cmd, err := s.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("sequencer stopped")
				return ctx.Err()
			}
			slog.Error("command dequeue failed", "err", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		resp := s.handle(cmd)
		if err := s.responder.Respond(ctx, cmd.ID, resp); err != nil {
			slog.Error("response delivery failed", "id", cmd.ID, "err", err)
		}
	}
}

// handle dispatches one command, converting any handler fault into a 500
// response instead of letting it escape.
func (s *Sequencer) handle(cmd queue.Command) (resp queue.Response) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler fault", "endpoint", cmd.Endpoint, "id", cmd.ID, "err", r)
			resp = queue.Response{StatusCode: 500, Data: map[string]string{"error": "Internal server error"}}
		}
		metrics.CommandsTotal.WithLabelValues(cmd.Endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		metrics.CommandDuration.WithLabelValues(cmd.Endpoint).Observe(time.Since(start).Seconds())
	}()

	result := s.dispatch(cmd)
	return queue.Response{StatusCode: result.StatusCode, Data: result.Data}
}

func (s *Sequencer) dispatch(cmd queue.Command) engine.Result {
	body := cmd.Request.Body
	params := cmd.Request.Params

	switch cmd.Endpoint {
	case queue.EndpointCreateAccount:
		if params.UserID == "" {
			return invalidInput("userId is required")
		}
		return s.engine.CreateAccount(params.UserID)

	case queue.EndpointCreateSymbol:
		if params.StockSymbol == "" {
			return invalidInput("stockSymbol is required")
		}
		return s.engine.CreateSymbol(params.StockSymbol)

	case queue.EndpointMint:
		if body.UserID == "" || body.StockSymbol == "" {
			return invalidInput("userId, stockSymbol, quantity and price are required")
		}
		if !model.ValidQuantity(body.Quantity) {
			return invalidInput("quantity must be a positive integer")
		}
		price, err := model.ParsePrice(body.Price)
		if err != nil {
			return invalidInput("price must be a multiple of 0.5 between 0.5 and 10")
		}
		return s.engine.Mint(body.UserID, body.StockSymbol, body.Quantity, price)

	case queue.EndpointTopUp:
		if body.UserID == "" {
			return invalidInput("userId and amount are required")
		}
		amount, err := model.MajorToMinor(body.Amount)
		if err != nil {
			return invalidInput("amount must be a positive number")
		}
		return s.engine.TopUp(body.UserID, amount)

	case queue.EndpointBuy, queue.EndpointSell:
		outcome := model.Outcome(body.StockType)
		if body.UserID == "" || body.StockSymbol == "" || !outcome.Valid() {
			return invalidInput("userId, stockSymbol, quantity, price and stockType are required")
		}
		if !model.ValidQuantity(body.Quantity) {
			return invalidInput("quantity must be a positive integer")
		}
		price, err := model.ParsePrice(body.Price)
		if err != nil {
			return invalidInput("price must be a multiple of 0.5 between 0.5 and 10")
		}
		if cmd.Endpoint == queue.EndpointBuy {
			return s.engine.Buy(body.UserID, body.StockSymbol, outcome, body.Quantity, price)
		}
		return s.engine.Sell(body.UserID, body.StockSymbol, outcome, body.Quantity, price)

	case queue.EndpointCancel:
		outcome := model.Outcome(body.StockType)
		if body.UserID == "" || body.StockSymbol == "" || !outcome.Valid() {
			return invalidInput("userId, stockSymbol and stockType are required")
		}
		return s.engine.Cancel(body.UserID, body.StockSymbol, outcome)

	case queue.EndpointBalances:
		return s.engine.Balances()

	case queue.EndpointBalanceByUser:
		return s.engine.BalanceOf(params.UserID)

	case queue.EndpointPositions:
		return s.engine.Positions()

	case queue.EndpointPositionsUser:
		return s.engine.PositionsOf(params.UserID)

	case queue.EndpointOrderBook:
		return s.engine.OrderBook()

	case queue.EndpointOrderBookOfSym:
		return s.engine.OrderBookOf(params.StockSymbol)

	case queue.EndpointReset:
		return s.engine.Reset()

	default:
		return engine.Result{
			StatusCode: 404,
			Data:       map[string]string{"error": fmt.Sprintf("Unknown endpoint %s", cmd.Endpoint)},
		}
	}
}

func invalidInput(msg string) engine.Result {
	return engine.Result{StatusCode: 400, Data: map[string]string{"error": msg}}
}
