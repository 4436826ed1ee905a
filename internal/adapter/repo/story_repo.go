package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"storyforge/internal/domain"
)

const storyColumns = `id, user_id, topic, setting, mood, age_range, length, language,
content, status, cover_path, audio_path, bgm_path, duration_seconds,
cost_generation, cost_cover, cost_synthesis, cost_bgm, cost_total,
segment_count, synthesis_chars, recordings, created_at, updated_at`

// StoryRepositoryPG implements domain.StoryStore backed by PostgreSQL.
type StoryRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewStoryRepository creates a new StoryRepositoryPG.
func NewStoryRepository(pool *pgxpool.Pool) *StoryRepositoryPG {
	return &StoryRepositoryPG{pool: pool}
}

// Create inserts a new story row with its structured content payload.
func (r *StoryRepositoryPG) Create(ctx context.Context, story *domain.Story) error {
	content, err := json.Marshal(story.Content)
	if err != nil {
		return fmt.Errorf("encode content: %w", err)
	}
	recordings, err := encodeRecordings(story.Recordings)
	if err != nil {
		return fmt.Errorf("encode recordings: %w", err)
	}

	query := `
INSERT INTO stories (id, user_id, topic, setting, mood, age_range, length, language,
    content, status, cover_path, cost_generation, cost_cover, cost_total,
    segment_count, recordings)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
RETURNING created_at, updated_at;
`
	row := r.pool.QueryRow(ctx, query,
		story.ID,
		story.UserID,
		story.Topic,
		story.Setting,
		story.Mood,
		story.AgeRange,
		story.Length,
		story.Language,
		content,
		story.Status,
		story.CoverPath,
		story.CostGeneration,
		story.CostCover,
		story.CostTotal,
		story.SegmentCount,
		recordings,
	)
	return row.Scan(&story.CreatedAt, &story.UpdatedAt)
}

// GetByID fetches a story by its identifier.
func (r *StoryRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Story, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+storyColumns+` FROM stories WHERE id = $1`, id)
	return scanStory(row)
}

// ListByUser returns the user's stories, newest first.
func (r *StoryRepositoryPG) ListByUser(ctx context.Context, userID string) ([]domain.Story, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+storyColumns+` FROM stories WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stories := []domain.Story{}
	for rows.Next() {
		story, err := scanStory(rows)
		if err != nil {
			return nil, err
		}
		stories = append(stories, *story)
	}
	return stories, rows.Err()
}

// UpdateStatus moves a story to the given status. Transitions out of a
// terminal state fail with ErrInvalidState.
func (r *StoryRepositoryPG) UpdateStatus(ctx context.Context, id string, status domain.StoryStatus) error {
	query := `
UPDATE stories
SET status = $2,
    updated_at = NOW()
WHERE id = $1
  AND status NOT IN ('ready', 'failed');
`
	tag, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.transitionError(ctx, id)
	}
	return nil
}

// SetResult commits artifacts, duration and synthesis costs with the ready
// transition in one statement. Only a story still in tts_processing accepts
// the commit.
func (r *StoryRepositoryPG) SetResult(ctx context.Context, result *domain.StoryResult) error {
	query := `
UPDATE stories
SET status = 'ready',
    audio_path = $2,
    bgm_path = $3,
    duration_seconds = $4,
    cost_synthesis = $5,
    cost_bgm = $6,
    cost_total = cost_generation + cost_cover + $5 + $6,
    synthesis_chars = $7,
    updated_at = NOW()
WHERE id = $1
  AND status = 'tts_processing';
`
	tag, err := r.pool.Exec(ctx, query,
		result.StoryID,
		result.AudioPath,
		result.BGMPath,
		result.DurationSeconds,
		result.CostSynthesis,
		result.CostBGM,
		result.SynthesisChars,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.transitionError(ctx, result.StoryID)
	}
	return nil
}

// Delete removes a story row.
func (r *StoryRepositoryPG) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM stories WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ClaimStalled picks one story stuck in tts_processing longer than olderThan
// and bumps its updated_at so concurrent claimers skip it. SKIP LOCKED keeps
// claimers from blocking each other.
func (r *StoryRepositoryPG) ClaimStalled(ctx context.Context, olderThan time.Duration) (*domain.Story, error) {
	cutoff := time.Now().Add(-olderThan)
	query := `
UPDATE stories
SET updated_at = NOW()
WHERE id = (
    SELECT id FROM stories
    WHERE status = 'tts_processing'
      AND updated_at < $1
    ORDER BY updated_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING ` + storyColumns + `;
`
	row := r.pool.QueryRow(ctx, query, cutoff)
	return scanStory(row)
}

func (r *StoryRepositoryPG) transitionError(ctx context.Context, id string) error {
	var status domain.StoryStatus
	err := r.pool.QueryRow(ctx, `SELECT status FROM stories WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: story is %s", domain.ErrInvalidState, status)
}

func scanStory(row pgx.Row) (*domain.Story, error) {
	var (
		s          domain.Story
		content    []byte
		recordings []byte
	)
	if err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.Topic,
		&s.Setting,
		&s.Mood,
		&s.AgeRange,
		&s.Length,
		&s.Language,
		&content,
		&s.Status,
		&s.CoverPath,
		&s.AudioPath,
		&s.BGMPath,
		&s.DurationSeconds,
		&s.CostGeneration,
		&s.CostCover,
		&s.CostSynthesis,
		&s.CostBGM,
		&s.CostTotal,
		&s.SegmentCount,
		&s.SynthesisChars,
		&recordings,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(content) > 0 {
		if err := json.Unmarshal(content, &s.Content); err != nil {
			return nil, fmt.Errorf("decode content: %w", err)
		}
	}
	if len(recordings) > 0 {
		if err := json.Unmarshal(recordings, &s.Recordings); err != nil {
			return nil, fmt.Errorf("decode recordings: %w", err)
		}
	}
	return &s, nil
}

func encodeRecordings(recordings map[int]string) ([]byte, error) {
	if len(recordings) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(recordings)
}
