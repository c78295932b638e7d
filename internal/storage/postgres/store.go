package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tradeScope/internal/model"
)

// Store reads and maintains the watched wallet table.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the watched_wallets table if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS watched_wallets (
			address    TEXT PRIMARY KEY,
			label      TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

// ListWallets returns every watched wallet.
func (s *Store) ListWallets(ctx context.Context) ([]model.Wallet, error) {
	rows, err := s.pool.Query(ctx, `SELECT address, label FROM watched_wallets ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("query wallets: %w", err)
	}
	wallets, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Wallet, error) {
		var w model.Wallet
		err := row.Scan(&w.Address, &w.Label)
		return w, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan wallets: %w", err)
	}
	return wallets, nil
}

// UpsertWallets inserts or relabels wallets.
func (s *Store) UpsertWallets(ctx context.Context, wallets []model.Wallet) error {
	if len(wallets) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, wallet := range wallets {
		batch.Queue(`
			INSERT INTO watched_wallets (address, label, created_at, updated_at)
			VALUES ($1, $2, now(), now())
			ON CONFLICT (address)
			DO UPDATE SET
				label = EXCLUDED.label,
				updated_at = now()
		`,
			strings.ToLower(wallet.Address),
			wallet.Label,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range wallets {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
