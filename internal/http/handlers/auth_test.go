package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"storyforge/internal/adapter/repo/memstore"
	"storyforge/internal/credits"
	"storyforge/internal/domain"
	"storyforge/internal/infra"
	"storyforge/internal/middleware"
	"storyforge/internal/payments/stripe"
	"storyforge/internal/providers/cover"
	"storyforge/internal/providers/story"
	"storyforge/internal/storage"
	"storyforge/internal/worker"
)

type fakeGenerator struct {
	content *domain.StoryContent
	usage   story.Usage
	err     error
}

func (g *fakeGenerator) Generate(_ context.Context, _ story.GenerateParams) (*domain.StoryContent, story.Usage, error) {
	if g.err != nil {
		return nil, story.Usage{}, g.err
	}
	content := *g.content
	return &content, g.usage, nil
}

type fakeSessionClient struct {
	sessions map[string]*stripe.Session
	created  int
}

func (f *fakeSessionClient) Configured() bool { return true }

func (f *fakeSessionClient) CreateSession(_ context.Context, params stripe.CreateSessionParams) (*stripe.Session, error) {
	f.created++
	id := fmt.Sprintf("cs_test_%d", f.created)
	session := &stripe.Session{
		ID:            id,
		URL:           "https://pay.example.com/" + id,
		PaymentStatus: stripe.PaymentStatusPaid,
		Metadata:      params.Metadata,
	}
	if f.sessions == nil {
		f.sessions = map[string]*stripe.Session{}
	}
	f.sessions[id] = session
	return session, nil
}

func (f *fakeSessionClient) RetrieveSession(_ context.Context, sessionID string) (*stripe.Session, error) {
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("no such session %s", sessionID)
	}
	return session, nil
}

type testApp struct {
	*App
	mem     *memstore.Store
	client  *fakeSessionClient
	gen     *fakeGenerator
	baseDir string
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	mem := memstore.New()
	logger := zerolog.Nop()
	ledger := credits.NewLedger(mem.Ledger, logger)
	packs := credits.NewPackTable("price_5", "price_15", "price_50")
	client := &fakeSessionClient{}
	dir := t.TempDir()
	files, err := storage.NewFileStore(dir)
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	gen := &fakeGenerator{
		content: &domain.StoryContent{
			Title:   "The Lantern Fox",
			Summary: "A fox finds a lantern.",
			Segments: []domain.Segment{
				{ID: 1, Type: domain.SegmentNarration, Emotion: "neutral", Text: "Deep in the woods.", PauseAfter: 400},
				{ID: 2, Type: domain.SegmentNarration, Emotion: "happy", Text: "A light appeared."},
			},
		},
		usage: story.Usage{PromptTokens: 200, CompletionTokens: 900},
	}
	cfg := &infra.Config{
		JWTSecret:    "test-secret",
		AppBaseURL:   "http://localhost:8080",
		StageTimeout: 5 * time.Second,
	}
	proc := worker.NewProcessor(worker.ProcessorOptions{
		Stories:  mem.Stories,
		Settings: mem.Settings,
		Ledger:   ledger,
		Paths:    files,
		Logger:   logger,
	})
	app := &App{
		Cfg:      cfg,
		Logger:   logger,
		Users:    mem.Users,
		Stories:  mem.Stories,
		Settings: mem.Settings,
		Ledger:   ledger,
		Checkout: credits.NewCheckout(packs, ledger, mem.Ledger, client, cfg.AppBaseURL, logger),
		Packs:    packs,
		StoryGen: gen,
		Covers:   cover.Registry{},
		// Never started: submissions queue up, which is all these tests need.
		Pool:  worker.NewPool(1, 8, proc, mem.Stories, logger),
		Files: files,
	}
	return &testApp{App: app, mem: mem, client: client, gen: gen, baseDir: dir}
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func authedRequest(t *testing.T, method, target, userID string, body any) *http.Request {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = jsonRequest(t, method, target, body)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	return req.WithContext(middleware.ContextWithUserID(req.Context(), userID))
}

func registerUser(t *testing.T, app *testApp, email string) (string, string) {
	t.Helper()
	rr := httptest.NewRecorder()
	app.Register(rr, jsonRequest(t, "POST", "/v1/auth/register", map[string]string{
		"email":    email,
		"username": "tester",
		"password": "hunter2hunter2",
	}))
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status: got %d, body %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return resp.User.ID, resp.Token
}

func TestRegisterGrantsWelcomeCredits(t *testing.T) {
	app := newTestApp(t)
	rr := httptest.NewRecorder()
	app.Register(rr, jsonRequest(t, "POST", "/v1/auth/register", map[string]string{
		"email":    "New@Example.com",
		"username": "newbie",
		"password": "longenough",
	}))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID            string `json:"id"`
			Email         string `json:"email"`
			CreditBalance int    `json:"credit_balance"`
		} `json:"user"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token == "" {
		t.Fatalf("token missing")
	}
	if resp.User.Email != "new@example.com" {
		t.Fatalf("email not lowercased: %q", resp.User.Email)
	}
	if resp.User.CreditBalance != credits.FreeCreditsOnRegister {
		t.Fatalf("balance: got %d, want %d", resp.User.CreditBalance, credits.FreeCreditsOnRegister)
	}
	claims, err := middleware.VerifyJWT("test-secret", resp.Token)
	if err != nil {
		t.Fatalf("verify token: %v", err)
	}
	if claims.Sub != resp.User.ID {
		t.Fatalf("token subject %q, want %q", claims.Sub, resp.User.ID)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	app := newTestApp(t)
	registerUser(t, app, "dup@example.com")
	rr := httptest.NewRecorder()
	app.Register(rr, jsonRequest(t, "POST", "/v1/auth/register", map[string]string{
		"email":    "dup@example.com",
		"username": "other",
		"password": "longenough",
	}))
	if rr.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want 409", rr.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	app := newTestApp(t)
	cases := []map[string]string{
		{"email": "not-an-email", "username": "a", "password": "longenough"},
		{"email": "ok@example.com", "username": "", "password": "longenough"},
		{"email": "ok@example.com", "username": "a", "password": "short"},
	}
	for i, body := range cases {
		rr := httptest.NewRecorder()
		app.Register(rr, jsonRequest(t, "POST", "/v1/auth/register", body))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("case %d: status got %d, want 400", i, rr.Code)
		}
	}
}

func TestLoginSuccessAndFailure(t *testing.T) {
	app := newTestApp(t)
	registerUser(t, app, "login@example.com")

	rr := httptest.NewRecorder()
	app.Login(rr, jsonRequest(t, "POST", "/v1/auth/login", map[string]string{
		"email":    "Login@Example.com",
		"password": "hunter2hunter2",
	}))
	if rr.Code != http.StatusOK {
		t.Fatalf("login status: got %d, body %s", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	app.Login(rr, jsonRequest(t, "POST", "/v1/auth/login", map[string]string{
		"email":    "login@example.com",
		"password": "wrong-password",
	}))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status: got %d, want 401", rr.Code)
	}

	attempts := app.mem.Users.LoginAttempts()
	if len(attempts) != 2 {
		t.Fatalf("attempts recorded: got %d, want 2", len(attempts))
	}
	if !attempts[0].Success || attempts[1].Success {
		t.Fatalf("attempt outcomes wrong: %+v", attempts)
	}
}

func TestMeReturnsProfile(t *testing.T) {
	app := newTestApp(t)
	userID, _ := registerUser(t, app, "me@example.com")

	rr := httptest.NewRecorder()
	app.Me(rr, authedRequest(t, "GET", "/v1/me", userID, nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var profile struct {
		ID            string `json:"id"`
		CreditBalance int    `json:"credit_balance"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&profile); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if profile.ID != userID {
		t.Fatalf("profile id %q, want %q", profile.ID, userID)
	}
	if profile.CreditBalance != credits.FreeCreditsOnRegister {
		t.Fatalf("balance: got %d", profile.CreditBalance)
	}
}
