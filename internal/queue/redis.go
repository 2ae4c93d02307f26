package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/omarkets/exchange-engine/internal/metrics"
	"github.com/omarkets/exchange-engine/internal/model"
)

// DefaultQueueKey is the Redis list the gateway pushes commands onto.
const DefaultQueueKey = "engine_queue"

// bookChannel is the pub/sub channel carrying book updates for a symbol.
func bookChannel(symbol string) string {
	return "orderbook." + symbol
}

// RedisTransport carries commands on a Redis list (RPUSH/BLPOP) and
// responses on per-command pub/sub channels, mirroring the original
// gateway↔engine wiring. It also publishes order-book updates on
// orderbook.<symbol> for external subscribers.
type RedisTransport struct {
	rdb      *redis.Client
	queueKey string
	books    chan bookUpdate
}

type bookUpdate struct {
	symbol string
	snap   model.BookSnapshot
}

// NewRedisTransport creates a transport over an established client.
// Run must be started in a goroutine for book updates to flow.
func NewRedisTransport(rdb *redis.Client, queueKey string) *RedisTransport {
	if queueKey == "" {
		queueKey = DefaultQueueKey
	}
	return &RedisTransport{
		rdb:      rdb,
		queueKey: queueKey,
		books:    make(chan bookUpdate, 256),
	}
}

// Enqueue subscribes to the command's response channel, then pushes the
// envelope. Subscribing first closes the window where the engine could
// respond before the gateway listens.
func (t *RedisTransport) Enqueue(ctx context.Context, cmd Command) (<-chan Response, error) {
	sub := t.rdb.Subscribe(ctx, cmd.ID)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("queue: subscribe %s: %w", cmd.ID, err)
	}

	slot := make(chan Response, 1)
	go func() {
		defer sub.Close()
		msg, err := sub.ReceiveMessage(ctx)
		if err != nil {
			return
		}
		var resp Response
		if err := json.Unmarshal([]byte(msg.Payload), &resp); err != nil {
			slog.Error("malformed response payload", "id", cmd.ID, "err", err)
			return
		}
		slot <- resp
	}()

	payload, err := json.Marshal(cmd)
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("queue: marshal command: %w", err)
	}
	depth, err := t.rdb.RPush(ctx, t.queueKey, payload).Result()
	if err != nil {
		sub.Close()
		return nil, fmt.Errorf("queue: push command: %w", err)
	}
	metrics.QueueDepth.Set(float64(depth))
	return slot, nil
}

// Next blocks on the queue until a command arrives.
func (t *RedisTransport) Next(ctx context.Context) (Command, error) {
	res, err := t.rdb.BLPop(ctx, 0, t.queueKey).Result()
	if err != nil {
		return Command{}, fmt.Errorf("queue: pop: %w", err)
	}
	// BLPOP returns [key, value].
	var cmd Command
	if err := json.Unmarshal([]byte(res[1]), &cmd); err != nil {
		return Command{}, fmt.Errorf("queue: malformed command: %w", err)
	}
	return cmd, nil
}

// Respond publishes the response on the channel named by the command id.
func (t *RedisTransport) Respond(ctx context.Context, id string, resp Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("queue: marshal response: %w", err)
	}
	if err := t.rdb.Publish(ctx, id, payload).Err(); err != nil {
		return fmt.Errorf("queue: publish response %s: %w", id, err)
	}
	return nil
}

// PublishBook hands a symbol's book state to the publish worker. The
// feed is best-effort and must never stall the sequencer: updates are
// dropped with a warning when the buffer is full.
func (t *RedisTransport) PublishBook(symbol string, snap model.BookSnapshot) {
	select {
	case t.books <- bookUpdate{symbol: symbol, snap: snap}:
	default:
		slog.Warn("book publish buffer full, dropping update", "symbol", symbol)
	}
}

// Run drains book updates into Redis pub/sub until ctx is cancelled.
func (t *RedisTransport) Run(ctx context.Context) {
	for {
		select {
		case u := <-t.books:
			payload, err := json.Marshal(u.snap)
			if err != nil {
				continue
			}
			if err := t.rdb.Publish(ctx, bookChannel(u.symbol), payload).Err(); err != nil {
				slog.Warn("book publish failed", "symbol", u.symbol, "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
