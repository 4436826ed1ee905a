package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"storyforge/internal/domain"
)

const uniqueViolation = "23505"

// UserRepositoryPG implements domain.UserStore backed by PostgreSQL.
type UserRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepositoryPG.
func NewUserRepository(pool *pgxpool.Pool) *UserRepositoryPG {
	return &UserRepositoryPG{pool: pool}
}

// Create inserts a new account row.
func (r *UserRepositoryPG) Create(ctx context.Context, user *domain.User) error {
	query := `
INSERT INTO users (id, email, username, password_hash, is_admin, credit_balance)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at, updated_at;
`
	row := r.pool.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.IsAdmin,
		user.CreditBalance,
	)
	if err := row.Scan(&user.CreatedAt, &user.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrEmailTaken
		}
		return err
	}
	return nil
}

// GetByID fetches a user by UUID.
func (r *UserRepositoryPG) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, email, username, password_hash, is_admin, credit_balance, created_at, updated_at FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail fetches a user by email address.
func (r *UserRepositoryPG) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, email, username, password_hash, is_admin, credit_balance, created_at, updated_at FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// RecordLoginAttempt appends one audit row. Rows are never updated.
func (r *UserRepositoryPG) RecordLoginAttempt(ctx context.Context, attempt *domain.LoginAttempt) error {
	query := `
INSERT INTO login_attempts (id, email, success, country)
VALUES ($1, $2, $3, $4);
`
	_, err := r.pool.Exec(ctx, query, attempt.ID, attempt.Email, attempt.Success, attempt.Country)
	return err
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.IsAdmin, &u.CreditBalance, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
