package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"storyforge/internal/domain"
	"storyforge/internal/middleware"
)

const tokenTTL = 24 * time.Hour

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string         `json:"token"`
	User  userProfileDTO `json:"user"`
}

type userProfileDTO struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	IsAdmin       bool      `json:"is_admin"`
	CreditBalance int       `json:"credit_balance"`
	CreatedAt     time.Time `json:"created_at"`
}

// Register creates an account, grants the welcome credits and returns a
// signed token.
func (a *App) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		a.error(w, http.StatusBadRequest, "bad_request", "valid email required")
		return
	}
	if req.Username == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "username required")
		return
	}
	if len(req.Password) < 8 {
		a.error(w, http.StatusBadRequest, "bad_request", "password must be at least 8 characters")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.Logger.Error().Err(err).Msg("password hash failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create account")
		return
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: string(hash),
	}
	if err := a.Users.Create(r.Context(), user); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			a.error(w, http.StatusConflict, "conflict", "email or username already registered")
			return
		}
		a.Logger.Error().Err(err).Msg("create user failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create account")
		return
	}
	if err := a.Ledger.GrantWelcome(r.Context(), user.ID); err != nil {
		// Account exists either way; the user just starts at zero credits.
		a.Logger.Error().Err(err).Str("user_id", user.ID).Msg("welcome grant failed")
	}

	balance, _ := a.Ledger.CheckBalance(r.Context(), user.ID)
	token, err := a.signToken(user)
	if err != nil {
		a.Logger.Error().Err(err).Msg("sign jwt failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to sign token")
		return
	}
	a.json(w, http.StatusCreated, authResponse{Token: token, User: profileDTO(user, balance)})
}

// Login verifies credentials and returns a signed token. Every attempt,
// successful or not, lands in the login audit trail.
func (a *App) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	user, err := a.Users.GetByEmail(r.Context(), req.Email)
	success := err == nil && bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) == nil
	a.recordLoginAttempt(r, req.Email, success)
	if !success {
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid email or password")
		return
	}

	balance, _ := a.Ledger.CheckBalance(r.Context(), user.ID)
	token, err := a.signToken(user)
	if err != nil {
		a.Logger.Error().Err(err).Msg("sign jwt failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to sign token")
		return
	}
	a.json(w, http.StatusOK, authResponse{Token: token, User: profileDTO(user, balance)})
}

// Me returns the authenticated user's profile and balance.
func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	user, err := a.Users.GetByID(r.Context(), userID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "user not found")
		return
	}
	balance, _ := a.Ledger.CheckBalance(r.Context(), userID)
	a.json(w, http.StatusOK, profileDTO(user, balance))
}

func (a *App) signToken(user *domain.User) (string, error) {
	return middleware.SignJWT(a.Cfg.JWTSecret, middleware.TokenClaims{
		Sub:      user.ID,
		Admin:    user.IsAdmin,
		Exp:      time.Now().Add(tokenTTL).Unix(),
		Issuer:   "storyforge",
		Audience: "storyforge-clients",
	})
}

func (a *App) recordLoginAttempt(r *http.Request, email string, success bool) {
	attempt := &domain.LoginAttempt{
		ID:      uuid.NewString(),
		Email:   email,
		Success: success,
		Country: middleware.CountryFromContext(r.Context()),
	}
	if err := a.Users.RecordLoginAttempt(r.Context(), attempt); err != nil {
		a.Logger.Error().Err(err).Str("email", email).Msg("record login attempt failed")
	}
}

func profileDTO(user *domain.User, balance int) userProfileDTO {
	return userProfileDTO{
		ID:            user.ID,
		Email:         user.Email,
		Username:      user.Username,
		IsAdmin:       user.IsAdmin,
		CreditBalance: balance,
		CreatedAt:     user.CreatedAt,
	}
}
