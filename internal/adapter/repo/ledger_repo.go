package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"storyforge/internal/domain"
)

const transactionColumns = `id, user_id, type, credits, amount,
COALESCE(checkout_session_id, ''), COALESCE(story_id, ''), description, created_at`

// LedgerRepositoryPG implements domain.LedgerStore backed by PostgreSQL.
// Every balance mutation locks the user row, so concurrent mutations on the
// same user serialize and the balance always equals the ledger sum.
type LedgerRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepositoryPG.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepositoryPG {
	return &LedgerRepositoryPG{pool: pool}
}

// Balance returns the user's current credit balance.
func (r *LedgerRepositoryPG) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := r.pool.QueryRow(ctx, `SELECT credit_balance FROM users WHERE id = $1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// Deduct removes exactly one credit under a row lock. A zero balance fails
// with ErrInsufficientBalance and mutates nothing.
func (r *LedgerRepositoryPG) Deduct(ctx context.Context, userID, storyID, description string) (*domain.Transaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	balance, err := lockBalance(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if balance < 1 {
		return nil, domain.ErrInsufficientBalance
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET credit_balance = credit_balance - 1, updated_at = NOW() WHERE id = $1`, userID); err != nil {
		return nil, err
	}
	entry := &domain.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        domain.TransactionUsage,
		Credits:     -1,
		StoryID:     storyID,
		Description: description,
	}
	if err := insertTransaction(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entry, nil
}

// AddCredits increments the balance and appends the paired ledger entry in
// one transaction. A checkout session id already present in the ledger fails
// with ErrDuplicateOperation; the partial unique index backstops the in-tx
// check against races.
func (r *LedgerRepositoryPG) AddCredits(ctx context.Context, userID string, credits int, meta domain.CreditMeta) (*domain.Transaction, error) {
	if credits <= 0 {
		return nil, fmt.Errorf("ledger: credits must be positive, got %d", credits)
	}
	entryType := meta.Type
	if entryType == "" {
		entryType = domain.TransactionPurchase
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := lockBalance(ctx, tx, userID); err != nil {
		return nil, err
	}
	if meta.CheckoutSessionID != "" {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE checkout_session_id = $1)`, meta.CheckoutSessionID).Scan(&exists)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, domain.ErrDuplicateOperation
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET credit_balance = credit_balance + $2, updated_at = NOW() WHERE id = $1`, userID, credits); err != nil {
		return nil, err
	}
	entry := &domain.Transaction{
		ID:                uuid.NewString(),
		UserID:            userID,
		Type:              entryType,
		Credits:           credits,
		Amount:            meta.Amount,
		CheckoutSessionID: meta.CheckoutSessionID,
		StoryID:           meta.StoryID,
		Description:       meta.Description,
	}
	if err := insertTransaction(ctx, tx, entry); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, domain.ErrDuplicateOperation
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return entry, nil
}

// FindBySession fetches the transaction recorded for a checkout session.
func (r *LedgerRepositoryPG) FindBySession(ctx context.Context, sessionID string) (*domain.Transaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE checkout_session_id = $1`, sessionID)
	return scanTransaction(row)
}

// ListByUser returns the user's ledger entries, newest first.
func (r *LedgerRepositoryPG) ListByUser(ctx context.Context, userID string) ([]domain.Transaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.Transaction{}
	for rows.Next() {
		entry, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func lockBalance(ctx context.Context, tx pgx.Tx, userID string) (int, error) {
	var balance int
	err := tx.QueryRow(ctx, `SELECT credit_balance FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, entry *domain.Transaction) error {
	query := `
INSERT INTO transactions (id, user_id, type, credits, amount, checkout_session_id, story_id, description)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING created_at;
`
	return tx.QueryRow(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Type,
		entry.Credits,
		entry.Amount,
		nullableText(entry.CheckoutSessionID),
		nullableText(entry.StoryID),
		entry.Description,
	).Scan(&entry.CreatedAt)
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	if err := row.Scan(&t.ID, &t.UserID, &t.Type, &t.Credits, &t.Amount, &t.CheckoutSessionID, &t.StoryID, &t.Description, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func nullableText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
