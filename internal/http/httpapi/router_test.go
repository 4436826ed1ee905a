package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"storyforge/internal/adapter/repo/memstore"
	"storyforge/internal/credits"
	"storyforge/internal/domain"
	"storyforge/internal/http/handlers"
	"storyforge/internal/infra"
	"storyforge/internal/middleware"
	"storyforge/internal/storage"
	"storyforge/internal/worker"
)

const testSecret = "router-test-secret"

func newTestRouter(t *testing.T) (http.Handler, *memstore.Store) {
	t.Helper()
	mem := memstore.New()
	logger := zerolog.Nop()
	ledger := credits.NewLedger(mem.Ledger, logger)
	files, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	proc := worker.NewProcessor(worker.ProcessorOptions{
		Stories:  mem.Stories,
		Settings: mem.Settings,
		Ledger:   ledger,
		Paths:    files,
		Logger:   logger,
	})
	app := &handlers.App{
		Cfg: &infra.Config{
			JWTSecret:    testSecret,
			AppBaseURL:   "http://localhost:8080",
			StageTimeout: 5 * time.Second,
		},
		Logger:   logger,
		Users:    mem.Users,
		Stories:  mem.Stories,
		Settings: mem.Settings,
		Ledger:   ledger,
		Packs:    credits.NewPackTable("", "", ""),
		Pool:     worker.NewPool(1, 4, proc, mem.Stories, logger),
		Files:    files,
	}
	return NewRouter(app, nil), mem
}

func tokenFor(t *testing.T, userID string, admin bool) string {
	t.Helper()
	token, err := middleware.SignJWT(testSecret, middleware.TokenClaims{
		Sub:      userID,
		Admin:    admin,
		Exp:      time.Now().Add(time.Hour).Unix(),
		Issuer:   "storyforge",
		Audience: "storyforge-clients",
	})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func seedUser(t *testing.T, mem *memstore.Store, admin bool) *domain.User {
	t.Helper()
	user := &domain.User{
		ID:       uuid.NewString(),
		Email:    uuid.NewString() + "@example.com",
		Username: uuid.NewString(),
		IsAdmin:  admin,
	}
	if err := mem.Users.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func TestHealthzIsPublic(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/v1/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body: %+v", body)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router, mem := newTestRouter(t)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/v1/me", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("no token: got %d, want 401", rr.Code)
	}

	user := seedUser(t, mem, false)
	req := httptest.NewRequest("GET", "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, user.ID, false))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("valid token: got %d, body %s", rr.Code, rr.Body.String())
	}
}

func TestAdminRoutesRejectNonAdmins(t *testing.T) {
	router, mem := newTestRouter(t)
	user := seedUser(t, mem, false)
	adminUser := seedUser(t, mem, true)

	req := httptest.NewRequest("GET", "/v1/admin/settings", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, user.ID, false))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("non-admin: got %d, want 403", rr.Code)
	}

	req = httptest.NewRequest("GET", "/v1/admin/settings", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, adminUser.ID, true))
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("admin: got %d, body %s", rr.Code, rr.Body.String())
	}
}

func TestBadTokenRejected(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest("GET", "/v1/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: got %d, want 401", rr.Code)
	}
}
