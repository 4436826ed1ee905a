package domain

import (
	"context"
	"time"
)

// UserStore persists accounts and their login audit trail.
type UserStore interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	RecordLoginAttempt(ctx context.Context, attempt *LoginAttempt) error
}

// StoryStore persists stories. Status transitions are forward-only: once a
// story is in a terminal state every further transition attempt fails with
// ErrInvalidState.
type StoryStore interface {
	Create(ctx context.Context, story *Story) error
	GetByID(ctx context.Context, id string) (*Story, error)
	ListByUser(ctx context.Context, userID string) ([]Story, error)
	// UpdateStatus moves a story to the given status, refusing transitions
	// out of a terminal state.
	UpdateStatus(ctx context.Context, id string, status StoryStatus) error
	// SetResult commits artifact paths, duration and synthesis costs in one
	// atomic write together with the transition to ready.
	SetResult(ctx context.Context, result *StoryResult) error
	Delete(ctx context.Context, id string) error
	// ClaimStalled returns one story stuck in tts_processing longer than
	// the given age and bumps its updated_at so other claimers skip it.
	ClaimStalled(ctx context.Context, olderThan time.Duration) (*Story, error)
}

// LedgerStore provides atomic balance mutation paired with append-only
// transaction rows. Implementations serialize concurrent mutations on the
// same user and keep the balance/ledger pairing invariant.
type LedgerStore interface {
	Balance(ctx context.Context, userID string) (int, error)
	// Deduct removes exactly one credit. It fails with
	// ErrInsufficientBalance, mutating nothing, when the balance is zero.
	Deduct(ctx context.Context, userID, storyID, description string) (*Transaction, error)
	// AddCredits increments the balance and appends the paired transaction.
	// When meta carries a checkout session id that a previous transaction
	// already references, it fails with ErrDuplicateOperation and mutates
	// nothing; the existing-row check and the write share one transaction
	// scope.
	AddCredits(ctx context.Context, userID string, credits int, meta CreditMeta) (*Transaction, error)
	FindBySession(ctx context.Context, sessionID string) (*Transaction, error)
	ListByUser(ctx context.Context, userID string) ([]Transaction, error)
}

// SettingsStore holds the singleton runtime settings row.
type SettingsStore interface {
	Get(ctx context.Context) (Settings, error)
	Update(ctx context.Context, settings Settings) error
}
