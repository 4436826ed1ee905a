package credits

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"storyforge/internal/domain"
	"storyforge/internal/infra"
	"storyforge/internal/payments/stripe"
)

var (
	// ErrUnknownPack is returned when the requested credit count matches no
	// purchasable pack.
	ErrUnknownPack = errors.New("credits: unknown credit pack")
	// ErrPaymentsDisabled is returned when the payment processor is not
	// configured with credentials and a price reference.
	ErrPaymentsDisabled = errors.New("credits: payments not configured")
	// ErrSessionNotPaid marks a retrieved session whose payment has not
	// completed. Fulfillment is skipped, not failed; retrying later is safe.
	ErrSessionNotPaid = errors.New("credits: session not paid")
	// ErrInvalidSession marks a paid session with missing or malformed
	// metadata that cannot be fulfilled.
	ErrInvalidSession = errors.New("credits: invalid session metadata")
)

// CheckoutClient is the narrow payment-processor contract the fulfillment
// protocol needs.
type CheckoutClient interface {
	Configured() bool
	CreateSession(ctx context.Context, params stripe.CreateSessionParams) (*stripe.Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (*stripe.Session, error)
}

// FulfillmentResult reports the outcome of converting a completed payment
// into ledger credits.
type FulfillmentResult struct {
	UserID           string
	Credits          int
	Amount           domain.Money
	AlreadyFulfilled bool
}

// Checkout converts credit-pack purchases into ledger credits, exactly once
// per payment session.
type Checkout struct {
	packs      *PackTable
	ledger     *Ledger
	store      domain.LedgerStore
	client     CheckoutClient
	appBaseURL string
	logger     infra.Logger
}

// NewCheckout wires the checkout service.
func NewCheckout(packs *PackTable, ledger *Ledger, store domain.LedgerStore, client CheckoutClient, appBaseURL string, logger infra.Logger) *Checkout {
	return &Checkout{
		packs:      packs,
		ledger:     ledger,
		store:      store,
		client:     client,
		appBaseURL: appBaseURL,
		logger:     logger,
	}
}

// CreateCheckout creates an external checkout session for the pack matching
// creditCount and returns its URL. The user id and credit count ride on the
// session as opaque metadata so fulfillment can recover them later.
func (c *Checkout) CreateCheckout(ctx context.Context, userID string, creditCount int) (string, error) {
	pack, ok := c.packs.ByCredits(creditCount)
	if !ok {
		return "", ErrUnknownPack
	}
	if c.client == nil || !c.client.Configured() || pack.ExternalPrice == "" {
		return "", ErrPaymentsDisabled
	}

	session, err := c.client.CreateSession(ctx, stripe.CreateSessionParams{
		PriceID:    pack.ExternalPrice,
		SuccessURL: c.appBaseURL + "/?checkout_session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  c.appBaseURL + "/?checkout_cancelled=1",
		Metadata: map[string]string{
			"user_id": userID,
			"credits": strconv.Itoa(pack.Credits),
		},
	})
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return session.URL, nil
}

// Fulfill converts a completed payment session into ledger credits. It is
// idempotent under concurrent or repeated invocation: the duplicate check
// and the balance write share one transaction scope in the ledger store, so
// a second caller for the same session always observes the transaction the
// first caller wrote.
func (c *Checkout) Fulfill(ctx context.Context, sessionID string) (*FulfillmentResult, error) {
	existing, err := c.store.FindBySession(ctx, sessionID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup session transaction: %w", err)
	}
	if existing != nil {
		c.logger.Info().Str("session_id", sessionID).Msg("checkout: session already fulfilled")
		return &FulfillmentResult{
			UserID:           existing.UserID,
			Credits:          existing.Credits,
			Amount:           existing.Amount,
			AlreadyFulfilled: true,
		}, nil
	}

	if c.client == nil || !c.client.Configured() {
		return nil, ErrPaymentsDisabled
	}
	session, err := c.client.RetrieveSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("retrieve session: %w", err)
	}
	if session.PaymentStatus != stripe.PaymentStatusPaid {
		c.logger.Warn().Str("session_id", sessionID).Str("status", session.PaymentStatus).Msg("checkout: session not paid")
		return nil, ErrSessionNotPaid
	}

	userID := session.Metadata["user_id"]
	creditCount, convErr := strconv.Atoi(session.Metadata["credits"])
	if userID == "" || convErr != nil || creditCount <= 0 {
		return nil, ErrInvalidSession
	}

	var amount domain.Money
	if pack, ok := c.packs.ByCredits(creditCount); ok {
		amount = pack.Price
	}

	txn, err := c.ledger.AddCredits(ctx, userID, creditCount, domain.CreditMeta{
		Amount:            amount,
		CheckoutSessionID: sessionID,
		Description:       fmt.Sprintf("Purchased %d credits", creditCount),
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateOperation) {
			// Lost the race against a concurrent fulfillment of the same
			// session; that caller's transaction is the one that counts.
			return &FulfillmentResult{UserID: userID, Credits: creditCount, Amount: amount, AlreadyFulfilled: true}, nil
		}
		return nil, fmt.Errorf("add credits: %w", err)
	}

	c.logger.Info().Str("session_id", sessionID).Str("user_id", userID).Int("credits", txn.Credits).Msg("checkout: session fulfilled")
	return &FulfillmentResult{UserID: userID, Credits: creditCount, Amount: amount}, nil
}
