package postgres

import (
	"context"
	"fmt"
	"math/big"

	"nft-market-lab/internal/domain"
	"nft-market-lab/internal/storage"
)

// ProceedsStore implements storage.ProceedsStore using PostgreSQL.
type ProceedsStore struct {
	pool *Pool
}

// NewProceedsStore creates a new ProceedsStore.
func NewProceedsStore(pool *Pool) *ProceedsStore {
	return &ProceedsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ProceedsStore = (*ProceedsStore)(nil)

// Credit adds amount to the seller's balance in the given token.
func (s *ProceedsStore) Credit(ctx context.Context, seller, token domain.Address, amount *big.Int) error {
	if seller == "" || token == "" || amount == nil || amount.Sign() < 0 {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO proceeds (seller, token, amount)
		VALUES ($1, $2, $3::numeric)
		ON CONFLICT (seller, token)
		DO UPDATE SET amount = proceeds.amount + EXCLUDED.amount, updated_at = now()
	`

	_, err := s.pool.Exec(ctx, query, string(seller), string(token), amount.String())
	if err != nil {
		return fmt.Errorf("credit proceeds: %w", err)
	}
	return nil
}

// Debit subtracts amount from the seller's balance. The amount guard in the
// WHERE clause keeps the row's CHECK constraint from ever firing.
func (s *ProceedsStore) Debit(ctx context.Context, seller, token domain.Address, amount *big.Int) error {
	if seller == "" || token == "" || amount == nil || amount.Sign() < 0 {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE proceeds
		SET amount = amount - $3::numeric, updated_at = now()
		WHERE seller = $1 AND token = $2 AND amount >= $3::numeric
	`

	tag, err := s.pool.Exec(ctx, query, string(seller), string(token), amount.String())
	if err != nil {
		return fmt.Errorf("debit proceeds: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrInvalidInput
	}
	return nil
}

// Balance returns the current balance, zero for absent entries.
func (s *ProceedsStore) Balance(ctx context.Context, seller, token domain.Address) (*big.Int, error) {
	query := `SELECT amount::text FROM proceeds WHERE seller = $1 AND token = $2`

	var amount string
	err := s.pool.QueryRow(ctx, query, string(seller), string(token)).Scan(&amount)
	if err != nil {
		if isNotFoundError(err) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("get proceeds balance: %w", err)
	}

	balance, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, fmt.Errorf("get proceeds balance: malformed amount %q", amount)
	}
	return balance, nil
}

// Take atomically zeroes the balance and returns its prior value.
// The row survives with a zero balance.
func (s *ProceedsStore) Take(ctx context.Context, seller, token domain.Address) (*big.Int, error) {
	// The CTE reads the statement-start snapshot, so old.amount is the
	// pre-update balance.
	query := `
		WITH old AS (
			SELECT amount FROM proceeds WHERE seller = $1 AND token = $2
		)
		UPDATE proceeds
		SET amount = 0, updated_at = now()
		FROM old
		WHERE seller = $1 AND token = $2
		RETURNING old.amount::text
	`

	var amount string
	err := s.pool.QueryRow(ctx, query, string(seller), string(token)).Scan(&amount)
	if err != nil {
		if isNotFoundError(err) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("take proceeds: %w", err)
	}

	prior, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return nil, fmt.Errorf("take proceeds: malformed amount %q", amount)
	}
	return prior, nil
}
