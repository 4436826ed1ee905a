package worker

import (
	"context"
	"errors"
	"sync"

	"storyforge/internal/domain"
	"storyforge/internal/infra"
)

// ErrQueueFull is returned by Submit when the queue has no capacity left.
var ErrQueueFull = errors.New("worker: queue full")

// Pool fans submitted story ids out to a fixed set of workers over a bounded
// queue. Submission never blocks the caller.
type Pool struct {
	queue   chan string
	size    int
	proc    *Processor
	stories domain.StoryStore
	logger  infra.Logger

	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewPool builds a Pool with the given worker count and queue capacity.
func NewPool(size, queueCap int, proc *Processor, stories domain.StoryStore, logger infra.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if queueCap < 1 {
		queueCap = 1
	}
	return &Pool{
		queue:   make(chan string, queueCap),
		size:    size,
		proc:    proc,
		stories: stories,
		logger:  logger,
	}
}

// Start launches the workers. They drain the queue until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for i := 0; i < p.size; i++ {
			p.wg.Add(1)
			go p.run(ctx, i)
		}
	})
}

// Submit enqueues a story id for processing without blocking.
func (p *Pool) Submit(storyID string) error {
	select {
	case p.queue <- storyID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Wait blocks until all workers have exited.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With().Int("worker", id).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case storyID := <-p.queue:
			story, err := p.stories.GetByID(ctx, storyID)
			if err != nil {
				log.Error().Err(err).Str("story_id", storyID).Msg("worker: load story failed")
				continue
			}
			p.proc.Process(ctx, story)
		}
	}
}
