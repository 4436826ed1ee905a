package domain

import "time"

// User is an account holder. CreditBalance is a cached aggregate of the
// user's ledger and must never go negative.
type User struct {
	ID            string
	Email         string
	Username      string
	PasswordHash  string
	IsAdmin       bool
	CreditBalance int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LoginAttempt is an audit row recorded for every login, successful or not.
type LoginAttempt struct {
	ID          string
	Email       string
	Success     bool
	Country     string
	AttemptedAt time.Time
}
