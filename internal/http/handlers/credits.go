package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"storyforge/internal/credits"
)

type packDTO struct {
	Credits     int     `json:"credits"`
	Price       float64 `json:"price"`
	PerCredit   float64 `json:"per_credit"`
	Label       string  `json:"label"`
	Purchasable bool    `json:"purchasable"`
}

type transactionDTO struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Credits     int       `json:"credits"`
	Amount      float64   `json:"amount"`
	StoryID     string    `json:"story_id,omitempty"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type checkoutRequest struct {
	Credits int `json:"credits"`
}

type fulfillRequest struct {
	SessionID string `json:"session_id"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

// Balance returns the caller's current credit balance.
func (a *App) Balance(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	balance, err := a.Ledger.CheckBalance(r.Context(), userID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to read balance")
		return
	}
	a.json(w, http.StatusOK, map[string]int{"balance": balance})
}

// ListPacks returns the purchasable credit packs.
func (a *App) ListPacks(w http.ResponseWriter, r *http.Request) {
	packs := a.Packs.Packs()
	out := make([]packDTO, 0, len(packs))
	for _, p := range packs {
		out = append(out, packDTO{
			Credits:     p.Credits,
			Price:       p.Price.Float(),
			PerCredit:   p.PerCredit.Float(),
			Label:       p.Label,
			Purchasable: p.ExternalPrice != "",
		})
	}
	a.json(w, http.StatusOK, map[string]any{"packs": out})
}

// ListTransactions returns the caller's ledger entries, newest first.
func (a *App) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	entries, err := a.Ledger.Transactions(r.Context(), userID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to list transactions")
		return
	}
	out := make([]transactionDTO, 0, len(entries))
	for _, t := range entries {
		out = append(out, transactionDTO{
			ID:          t.ID,
			Type:        string(t.Type),
			Credits:     t.Credits,
			Amount:      t.Amount.Float(),
			StoryID:     t.StoryID,
			Description: t.Description,
			CreatedAt:   t.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"transactions": out})
}

// CreateCheckout starts a payment session for a credit pack and returns the
// redirect URL.
func (a *App) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	url, err := a.Checkout.CreateCheckout(r.Context(), userID, req.Credits)
	if err != nil {
		switch {
		case errors.Is(err, credits.ErrUnknownPack):
			a.error(w, http.StatusBadRequest, "bad_request", "unknown credit pack")
		case errors.Is(err, credits.ErrPaymentsDisabled):
			a.error(w, http.StatusServiceUnavailable, "payments_disabled", "payments are not configured")
		default:
			a.Logger.Error().Err(err).Msg("create checkout failed")
			a.error(w, http.StatusBadGateway, "payment_provider", "failed to create checkout session")
		}
		return
	}
	a.json(w, http.StatusOK, map[string]string{"checkout_url": url})
}

// FulfillCheckout converts a completed payment session into credits. Safe to
// call repeatedly or concurrently for the same session; only the first call
// credits the account. A cancelled checkout is acknowledged without any
// ledger change.
func (a *App) FulfillCheckout(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req fulfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.Cancelled {
		a.json(w, http.StatusOK, map[string]string{"status": "cancelled"})
		return
	}
	if req.SessionID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "session_id required")
		return
	}

	result, err := a.Checkout.Fulfill(r.Context(), req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, credits.ErrSessionNotPaid):
			a.error(w, http.StatusConflict, "not_paid", "payment is not completed")
		case errors.Is(err, credits.ErrInvalidSession):
			a.error(w, http.StatusBadRequest, "bad_request", "invalid checkout session")
		case errors.Is(err, credits.ErrPaymentsDisabled):
			a.error(w, http.StatusServiceUnavailable, "payments_disabled", "payments are not configured")
		default:
			a.Logger.Error().Err(err).Str("session_id", req.SessionID).Msg("fulfill checkout failed")
			a.error(w, http.StatusBadGateway, "payment_provider", "failed to fulfill checkout session")
		}
		return
	}

	balance := 0
	if result.UserID != "" {
		balance, _ = a.Ledger.CheckBalance(r.Context(), result.UserID)
	}
	a.json(w, http.StatusOK, map[string]any{
		"credits_added":     result.Credits,
		"already_fulfilled": result.AlreadyFulfilled,
		"balance":           balance,
	})
}
