package domain

import "time"

// TransactionType enumerates ledger entry kinds.
type TransactionType string

const (
	TransactionPurchase TransactionType = "purchase"
	TransactionUsage    TransactionType = "usage"
	TransactionRefund   TransactionType = "refund"
)

// Transaction is one append-only ledger entry. Every balance change is
// paired 1:1 with exactly one transaction row; rows are never mutated or
// deleted. CheckoutSessionID is unique when present and acts as the payment
// fulfillment idempotency key.
type Transaction struct {
	ID                string
	UserID            string
	Type              TransactionType
	Credits           int
	Amount            Money
	CheckoutSessionID string
	StoryID           string
	Description       string
	CreatedAt         time.Time
}

// CreditMeta carries the purchase context attached to an AddCredits call.
type CreditMeta struct {
	Amount            Money
	CheckoutSessionID string
	StoryID           string
	Description       string
	Type              TransactionType
}
