// Package queue defines the command envelope and the transports that
// carry commands from the gateway to the sequencer and exactly one
// correlated response back per command id.
//
// Two transports exist: an in-process channel transport (single binary,
// tests) and a Redis transport (list queue + pub/sub responses) matching
// the original gateway↔engine deployment.
package queue

import (
	"context"

	"github.com/shopspring/decimal"
)

// Endpoint names carried in the command envelope. They mirror the
// original service's route table.
const (
	EndpointCreateAccount  = "/user/create/:userId"
	EndpointCreateSymbol   = "/symbol/create/:stockSymbol"
	EndpointMint           = "/trade/mint"
	EndpointTopUp          = "/onramp/inr"
	EndpointBalances       = "/balances/inr"
	EndpointBalanceByUser  = "/balances/inr/:userId"
	EndpointPositions      = "/balances/stock"
	EndpointPositionsUser  = "/balances/stock/:userId"
	EndpointOrderBook      = "/orderbook"
	EndpointOrderBookOfSym = "/orderbook/:stockSymbol"
	EndpointBuy            = "/order/buy"
	EndpointSell           = "/order/sell"
	EndpointCancel         = "/order/cancel"
	EndpointReset          = "/reset"
)

// Body carries the request payload. Amounts and prices travel as decimals
// in major units; the sequencer converts to minor units on dispatch.
type Body struct {
	UserID      string          `json:"userId,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	StockSymbol string          `json:"stockSymbol,omitempty"`
	Quantity    int64           `json:"quantity,omitempty"`
	Price       decimal.Decimal `json:"price"`
	StockType   string          `json:"stockType,omitempty"`
}

// Params carries path parameters.
type Params struct {
	UserID      string `json:"userId,omitempty"`
	StockSymbol string `json:"stockSymbol,omitempty"`
}

// Request is the body+params pair inside the envelope.
type Request struct {
	Body   Body   `json:"body"`
	Params Params `json:"params"`
}

// Command is the envelope drawn from the ordered stream. Field names
// match the original wire format.
type Command struct {
	ID       string  `json:"_id"`
	Endpoint string  `json:"endpoint"`
	Request  Request `json:"req"`
}

// Response is the single correlated reply for one command.
type Response struct {
	StatusCode int `json:"statusCode"`
	Data       any `json:"data"`
}

// Source delivers commands in order to the sequencer. Next blocks until a
// command arrives or ctx is done.
type Source interface {
	Next(ctx context.Context) (Command, error)
}

// Responder emits the correlated response for a command id.
type Responder interface {
	Respond(ctx context.Context, id string, resp Response) error
}

// Enqueuer is the gateway side: submit a command and receive a one-shot
// channel that yields its response. The caller applies its own timeout
// and must treat a missing response as a transport failure, never as an
// authoritative answer.
type Enqueuer interface {
	Enqueue(ctx context.Context, cmd Command) (<-chan Response, error)
}
