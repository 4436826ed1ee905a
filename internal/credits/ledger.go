package credits

import (
	"context"
	"fmt"

	"storyforge/internal/domain"
	"storyforge/internal/infra"
)

// Ledger gates story generation on the user's credit balance. All mutation
// goes through the store, which serializes concurrent changes per user and
// pairs every balance delta with exactly one transaction row.
type Ledger struct {
	store  domain.LedgerStore
	logger infra.Logger
}

// NewLedger creates a Ledger over the given store.
func NewLedger(store domain.LedgerStore, logger infra.Logger) *Ledger {
	return &Ledger{store: store, logger: logger}
}

// CheckBalance returns the user's current credit balance.
func (l *Ledger) CheckBalance(ctx context.Context, userID string) (int, error) {
	return l.store.Balance(ctx, userID)
}

// DeductOne removes one credit for a story generation, attaching the
// pre-generated story id to the usage transaction. It fails with
// domain.ErrInsufficientBalance without mutating anything when the balance
// is zero.
func (l *Ledger) DeductOne(ctx context.Context, userID, storyID string) (*domain.Transaction, error) {
	txn, err := l.store.Deduct(ctx, userID, storyID, "Story generation")
	if err != nil {
		return nil, err
	}
	l.logger.Info().Str("user_id", userID).Str("story_id", storyID).Msg("ledger: deducted 1 credit")
	return txn, nil
}

// AddCredits increments the user's balance by amount and appends the paired
// purchase transaction.
func (l *Ledger) AddCredits(ctx context.Context, userID string, credits int, meta domain.CreditMeta) (*domain.Transaction, error) {
	if meta.Type == "" {
		meta.Type = domain.TransactionPurchase
	}
	txn, err := l.store.AddCredits(ctx, userID, credits, meta)
	if err != nil {
		return nil, err
	}
	l.logger.Info().Str("user_id", userID).Int("credits", credits).Msg("ledger: credits added")
	return txn, nil
}

// GrantWelcome gives a new account its free registration credits.
func (l *Ledger) GrantWelcome(ctx context.Context, userID string) error {
	_, err := l.store.AddCredits(ctx, userID, FreeCreditsOnRegister, domain.CreditMeta{
		Type:        domain.TransactionPurchase,
		Description: fmt.Sprintf("Welcome bonus: %d free credits", FreeCreditsOnRegister),
	})
	return err
}

// RefundForFailure returns the single story credit after a failed pipeline
// run. Only invoked when the refund-on-failure policy is enabled.
func (l *Ledger) RefundForFailure(ctx context.Context, userID, storyID string) error {
	_, err := l.store.AddCredits(ctx, userID, 1, domain.CreditMeta{
		Type:        domain.TransactionRefund,
		StoryID:     storyID,
		Description: "Refund for failed story",
	})
	if err != nil {
		return err
	}
	l.logger.Info().Str("user_id", userID).Str("story_id", storyID).Msg("ledger: refunded failed story credit")
	return nil
}

// Transactions lists the user's ledger entries, newest first.
func (l *Ledger) Transactions(ctx context.Context, userID string) ([]domain.Transaction, error) {
	return l.store.ListByUser(ctx, userID)
}
