// Package memstore provides in-memory implementations of the domain store
// interfaces. It backs tests and local development without PostgreSQL while
// keeping the same transition and idempotency semantics as the SQL stores.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"storyforge/internal/domain"
)

type state struct {
	mu           sync.Mutex
	users        map[string]*domain.User
	usersByEmail map[string]string
	usernames    map[string]string
	attempts     []domain.LoginAttempt
	stories      map[string]*domain.Story
	transactions []domain.Transaction
	bySession    map[string]int
	settings     *domain.Settings
}

// Store bundles all in-memory stores over one shared lock.
type Store struct {
	Users    *UserStore
	Stories  *StoryStore
	Ledger   *LedgerStore
	Settings *SettingsStore
}

// New creates an empty Store.
func New() *Store {
	s := &state{
		users:        map[string]*domain.User{},
		usersByEmail: map[string]string{},
		usernames:    map[string]string{},
		stories:      map[string]*domain.Story{},
		bySession:    map[string]int{},
	}
	return &Store{
		Users:    &UserStore{s: s},
		Stories:  &StoryStore{s: s},
		Ledger:   &LedgerStore{s: s},
		Settings: &SettingsStore{s: s},
	}
}

// UserStore implements domain.UserStore.
type UserStore struct {
	s *state
}

// Create registers a new account, enforcing email and username uniqueness.
func (u *UserStore) Create(ctx context.Context, user *domain.User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if _, ok := u.s.usersByEmail[user.Email]; ok {
		return domain.ErrEmailTaken
	}
	if _, ok := u.s.usernames[user.Username]; ok {
		return domain.ErrEmailTaken
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	cp := *user
	u.s.users[user.ID] = &cp
	u.s.usersByEmail[user.Email] = user.ID
	u.s.usernames[user.Username] = user.ID
	return nil
}

func (u *UserStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (u *UserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	id, ok := u.s.usersByEmail[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u.s.users[id]
	return &cp, nil
}

func (u *UserStore) RecordLoginAttempt(ctx context.Context, attempt *domain.LoginAttempt) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	cp := *attempt
	if cp.AttemptedAt.IsZero() {
		cp.AttemptedAt = time.Now()
	}
	u.s.attempts = append(u.s.attempts, cp)
	return nil
}

// LoginAttempts returns a copy of the audit trail for inspection in tests.
func (u *UserStore) LoginAttempts() []domain.LoginAttempt {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	out := make([]domain.LoginAttempt, len(u.s.attempts))
	copy(out, u.s.attempts)
	return out
}

// StoryStore implements domain.StoryStore.
type StoryStore struct {
	s *state
}

func (st *StoryStore) Create(ctx context.Context, story *domain.Story) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.stories[story.ID]; ok {
		return fmt.Errorf("memstore: story %s already exists", story.ID)
	}
	now := time.Now()
	story.CreatedAt = now
	story.UpdatedAt = now
	st.s.stories[story.ID] = copyStory(story)
	return nil
}

func (st *StoryStore) GetByID(ctx context.Context, id string) (*domain.Story, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	story, ok := st.s.stories[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyStory(story), nil
}

func (st *StoryStore) ListByUser(ctx context.Context, userID string) ([]domain.Story, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	stories := []domain.Story{}
	for _, story := range st.s.stories {
		if story.UserID == userID {
			stories = append(stories, *copyStory(story))
		}
	}
	sort.Slice(stories, func(i, j int) bool {
		return stories[i].CreatedAt.After(stories[j].CreatedAt)
	})
	return stories, nil
}

func (st *StoryStore) UpdateStatus(ctx context.Context, id string, status domain.StoryStatus) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	story, ok := st.s.stories[id]
	if !ok {
		return domain.ErrNotFound
	}
	if story.Status.Terminal() {
		return fmt.Errorf("%w: story is %s", domain.ErrInvalidState, story.Status)
	}
	story.Status = status
	story.UpdatedAt = time.Now()
	return nil
}

func (st *StoryStore) SetResult(ctx context.Context, result *domain.StoryResult) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	story, ok := st.s.stories[result.StoryID]
	if !ok {
		return domain.ErrNotFound
	}
	if story.Status != domain.StoryStatusTTSProcessing {
		return fmt.Errorf("%w: story is %s", domain.ErrInvalidState, story.Status)
	}
	story.Status = domain.StoryStatusReady
	story.AudioPath = result.AudioPath
	story.BGMPath = result.BGMPath
	story.DurationSeconds = result.DurationSeconds
	story.CostSynthesis = result.CostSynthesis
	story.CostBGM = result.CostBGM
	story.CostTotal = story.CostGeneration + story.CostCover + result.CostSynthesis + result.CostBGM
	story.SynthesisChars = result.SynthesisChars
	story.UpdatedAt = time.Now()
	return nil
}

func (st *StoryStore) Delete(ctx context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if _, ok := st.s.stories[id]; !ok {
		return domain.ErrNotFound
	}
	delete(st.s.stories, id)
	return nil
}

func (st *StoryStore) ClaimStalled(ctx context.Context, olderThan time.Duration) (*domain.Story, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var oldest *domain.Story
	for _, story := range st.s.stories {
		if story.Status != domain.StoryStatusTTSProcessing || !story.UpdatedAt.Before(cutoff) {
			continue
		}
		if oldest == nil || story.UpdatedAt.Before(oldest.UpdatedAt) {
			oldest = story
		}
	}
	if oldest == nil {
		return nil, domain.ErrNotFound
	}
	oldest.UpdatedAt = time.Now()
	return copyStory(oldest), nil
}

// LedgerStore implements domain.LedgerStore. The shared lock serializes
// concurrent mutations, matching the SQL store's row lock.
type LedgerStore struct {
	s *state
}

func (l *LedgerStore) Balance(ctx context.Context, userID string) (int, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	user, ok := l.s.users[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return user.CreditBalance, nil
}

func (l *LedgerStore) Deduct(ctx context.Context, userID, storyID, description string) (*domain.Transaction, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	user, ok := l.s.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if user.CreditBalance < 1 {
		return nil, domain.ErrInsufficientBalance
	}
	user.CreditBalance--
	user.UpdatedAt = time.Now()
	entry := domain.Transaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        domain.TransactionUsage,
		Credits:     -1,
		StoryID:     storyID,
		Description: description,
		CreatedAt:   time.Now(),
	}
	l.s.transactions = append(l.s.transactions, entry)
	return &entry, nil
}

func (l *LedgerStore) AddCredits(ctx context.Context, userID string, credits int, meta domain.CreditMeta) (*domain.Transaction, error) {
	if credits <= 0 {
		return nil, fmt.Errorf("memstore: credits must be positive, got %d", credits)
	}
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	user, ok := l.s.users[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if meta.CheckoutSessionID != "" {
		if _, ok := l.s.bySession[meta.CheckoutSessionID]; ok {
			return nil, domain.ErrDuplicateOperation
		}
	}
	entryType := meta.Type
	if entryType == "" {
		entryType = domain.TransactionPurchase
	}
	user.CreditBalance += credits
	user.UpdatedAt = time.Now()
	entry := domain.Transaction{
		ID:                uuid.NewString(),
		UserID:            userID,
		Type:              entryType,
		Credits:           credits,
		Amount:            meta.Amount,
		CheckoutSessionID: meta.CheckoutSessionID,
		StoryID:           meta.StoryID,
		Description:       meta.Description,
		CreatedAt:         time.Now(),
	}
	if meta.CheckoutSessionID != "" {
		l.s.bySession[meta.CheckoutSessionID] = len(l.s.transactions)
	}
	l.s.transactions = append(l.s.transactions, entry)
	return &entry, nil
}

func (l *LedgerStore) FindBySession(ctx context.Context, sessionID string) (*domain.Transaction, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	idx, ok := l.s.bySession[sessionID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := l.s.transactions[idx]
	return &cp, nil
}

func (l *LedgerStore) ListByUser(ctx context.Context, userID string) ([]domain.Transaction, error) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	entries := []domain.Transaction{}
	for i := len(l.s.transactions) - 1; i >= 0; i-- {
		if l.s.transactions[i].UserID == userID {
			entries = append(entries, l.s.transactions[i])
		}
	}
	return entries, nil
}

// SettingsStore implements domain.SettingsStore.
type SettingsStore struct {
	s *state
}

func (st *SettingsStore) Get(ctx context.Context) (domain.Settings, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	if st.s.settings == nil {
		return domain.DefaultSettings(), nil
	}
	return *st.s.settings, nil
}

func (st *SettingsStore) Update(ctx context.Context, settings domain.Settings) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	settings.UpdatedAt = time.Now()
	st.s.settings = &settings
	return nil
}

func copyStory(story *domain.Story) *domain.Story {
	cp := *story
	if story.Recordings != nil {
		cp.Recordings = make(map[int]string, len(story.Recordings))
		for k, v := range story.Recordings {
			cp.Recordings[k] = v
		}
	}
	if story.Content.Characters != nil {
		cp.Content.Characters = append([]domain.Character(nil), story.Content.Characters...)
	}
	if story.Content.Segments != nil {
		cp.Content.Segments = append([]domain.Segment(nil), story.Content.Segments...)
	}
	return &cp
}

var (
	_ domain.UserStore     = (*UserStore)(nil)
	_ domain.StoryStore    = (*StoryStore)(nil)
	_ domain.LedgerStore   = (*LedgerStore)(nil)
	_ domain.SettingsStore = (*SettingsStore)(nil)
)
