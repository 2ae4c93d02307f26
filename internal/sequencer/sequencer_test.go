package sequencer_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/omarkets/exchange-engine/internal/engine"
	"github.com/omarkets/exchange-engine/internal/model"
	"github.com/omarkets/exchange-engine/internal/queue"
	"github.com/omarkets/exchange-engine/internal/sequencer"
)

// startSequencer runs a sequencer over a channel transport and returns
// the enqueue side. The goroutine is stopped at test cleanup.
func startSequencer(t *testing.T, eng *engine.Engine) *queue.ChannelTransport {
	t.Helper()
	ct := queue.NewChannelTransport(16)
	seq := sequencer.New(eng, ct, ct)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go seq.Run(ctx)

	return ct
}

func send(t *testing.T, ct *queue.ChannelTransport, cmd queue.Command) queue.Response {
	t.Helper()
	slot, err := ct.Enqueue(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case resp := <-slot:
		return resp
	case <-time.After(2 * time.Second):
		t.Fatalf("no response for %s", cmd.Endpoint)
		return queue.Response{}
	}
}

func TestRun_DispatchesInOrder(t *testing.T) {
	ct := startSequencer(t, engine.New(nil, nil))

	resp := send(t, ct, queue.Command{
		ID:       "c1",
		Endpoint: queue.EndpointCreateAccount,
		Request:  queue.Request{Params: queue.Params{UserID: "alice"}},
	})
	if resp.StatusCode != 201 {
		t.Fatalf("create account: %+v", resp)
	}

	resp = send(t, ct, queue.Command{
		ID:       "c2",
		Endpoint: queue.EndpointCreateSymbol,
		Request:  queue.Request{Params: queue.Params{StockSymbol: "BTC_USDT_10_Oct"}},
	})
	if resp.StatusCode != 201 {
		t.Fatalf("create symbol: %+v", resp)
	}

	resp = send(t, ct, queue.Command{
		ID:       "c3",
		Endpoint: queue.EndpointTopUp,
		Request:  queue.Request{Body: queue.Body{UserID: "alice", Amount: decimal.NewFromInt(100)}},
	})
	if resp.StatusCode != 200 {
		t.Fatalf("topup: %+v", resp)
	}

	// Amounts arrive in major units and are converted on dispatch.
	resp = send(t, ct, queue.Command{
		ID:       "c4",
		Endpoint: queue.EndpointBalanceByUser,
		Request:  queue.Request{Params: queue.Params{UserID: "alice"}},
	})
	if resp.StatusCode != 200 {
		t.Fatalf("balance: %+v", resp)
	}
	if got := resp.Data.(int64); got != 10000 {
		t.Fatalf("balance = %d, want 10000 minor units", got)
	}
}

func TestDispatch_ValidatesInput(t *testing.T) {
	ct := startSequencer(t, engine.New(nil, nil))

	cases := []struct {
		name string
		cmd  queue.Command
	}{
		{"missing userId", queue.Command{ID: "v1", Endpoint: queue.EndpointCreateAccount}},
		{"missing symbol", queue.Command{ID: "v2", Endpoint: queue.EndpointCreateSymbol}},
		{"zero quantity buy", queue.Command{ID: "v3", Endpoint: queue.EndpointBuy, Request: queue.Request{
			Body: queue.Body{UserID: "a", StockSymbol: "S", Quantity: 0, Price: decimal.NewFromInt(5), StockType: "yes"},
		}}},
		{"oversized quantity buy", queue.Command{ID: "v3b", Endpoint: queue.EndpointBuy, Request: queue.Request{
			Body: queue.Body{UserID: "a", StockSymbol: "S", Quantity: model.MaxOrderQuantity + 1, Price: decimal.NewFromInt(5), StockType: "yes"},
		}}},
		{"oversized quantity mint", queue.Command{ID: "v3c", Endpoint: queue.EndpointMint, Request: queue.Request{
			Body: queue.Body{UserID: "a", StockSymbol: "S", Quantity: model.MaxOrderQuantity + 1, Price: decimal.NewFromInt(5)},
		}}},
		{"off-grid price", queue.Command{ID: "v4", Endpoint: queue.EndpointBuy, Request: queue.Request{
			Body: queue.Body{UserID: "a", StockSymbol: "S", Quantity: 1, Price: decimal.NewFromFloat(5.25), StockType: "yes"},
		}}},
		{"bad outcome", queue.Command{ID: "v5", Endpoint: queue.EndpointSell, Request: queue.Request{
			Body: queue.Body{UserID: "a", StockSymbol: "S", Quantity: 1, Price: decimal.NewFromInt(5), StockType: "maybe"},
		}}},
		{"bad amount", queue.Command{ID: "v6", Endpoint: queue.EndpointTopUp, Request: queue.Request{
			Body: queue.Body{UserID: "a", Amount: decimal.NewFromInt(-5)},
		}}},
		{"cancel missing type", queue.Command{ID: "v7", Endpoint: queue.EndpointCancel, Request: queue.Request{
			Body: queue.Body{UserID: "a", StockSymbol: "S"},
		}}},
	}
	for _, tc := range cases {
		if resp := send(t, ct, tc.cmd); resp.StatusCode != 400 {
			t.Errorf("%s: status %d, want 400", tc.name, resp.StatusCode)
		}
	}
}

func TestDispatch_UnknownEndpoint(t *testing.T) {
	ct := startSequencer(t, engine.New(nil, nil))
	resp := send(t, ct, queue.Command{ID: "u1", Endpoint: "/no/such/route"})
	if resp.StatusCode != 404 {
		t.Fatalf("unknown endpoint: %+v", resp)
	}
}

func TestRun_RecoversHandlerFault(t *testing.T) {
	// A nil engine makes any dispatch panic; the loop must answer 500
	// and keep serving.
	ct := startSequencer(t, nil)

	resp := send(t, ct, queue.Command{
		ID:       "f1",
		Endpoint: queue.EndpointCreateAccount,
		Request:  queue.Request{Params: queue.Params{UserID: "alice"}},
	})
	if resp.StatusCode != 500 {
		t.Fatalf("fault response: %+v", resp)
	}

	// Still alive after the fault.
	resp = send(t, ct, queue.Command{ID: "f2", Endpoint: "/no/such/route"})
	if resp.StatusCode != 404 {
		t.Fatalf("sequencer dead after fault: %+v", resp)
	}
}
