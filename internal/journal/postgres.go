package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omarkets/exchange-engine/internal/engine"
	"github.com/omarkets/exchange-engine/internal/model"
)

// PostgresSink implements Sink using PostgreSQL. Prices and quantities
// are stored as BIGINT minor units, exactly as the engine holds them.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink creates a PostgreSQL-backed sink.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// EnsureSchema creates the fills table if it does not exist.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS fills (
			id         TEXT PRIMARY KEY,
			symbol     TEXT NOT NULL,
			outcome    TEXT NOT NULL,
			price      BIGINT NOT NULL,
			quantity   BIGINT NOT NULL,
			taker_id   TEXT NOT NULL,
			maker_id   TEXT NOT NULL,
			maker_kind TEXT NOT NULL,
			minted     BOOLEAN NOT NULL,
			executed_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("ensure fills schema: %w", err)
	}
	return nil
}

func (s *PostgresSink) InsertFill(ctx context.Context, fill engine.Fill) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fills (id, symbol, outcome, price, quantity, taker_id, maker_id, maker_kind, minted, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		fill.ID, fill.Symbol, string(fill.Outcome), int64(fill.Price), fill.Quantity,
		fill.TakerID, fill.MakerID, string(fill.MakerKind), fill.Minted, fill.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert fill %s: %w", fill.ID, err)
	}
	return nil
}

func (s *PostgresSink) FillsBySymbol(ctx context.Context, symbol string) ([]engine.Fill, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, symbol, outcome, price, quantity, taker_id, maker_id, maker_kind, minted, executed_at
		 FROM fills WHERE symbol = $1 ORDER BY executed_at`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fills []engine.Fill
	for rows.Next() {
		var f engine.Fill
		var outcome, makerKind string
		var price int64
		if err := rows.Scan(&f.ID, &f.Symbol, &outcome, &price, &f.Quantity,
			&f.TakerID, &f.MakerID, &makerKind, &f.Minted, &f.Timestamp); err != nil {
			return nil, err
		}
		f.Outcome = model.Outcome(outcome)
		f.MakerKind = model.OrderKind(makerKind)
		f.Price = model.Price(price)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}
