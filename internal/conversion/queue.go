package conversion

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shoalmedia/shoal/pkg/models"
)

// Converter runs one conversion to completion. Satisfied by *Coordinator.
type Converter interface {
	Convert(ctx context.Context, trackID uuid.UUID, profileName string) (*models.MediaVariant, bool, error)
}

type queueEntry struct {
	trackID     uuid.UUID
	profileName string
}

// Queue serializes auto-triggered conversions: no matter how many entries
// pile up, at most one background transcode runs at a time. Entries are
// logical keys only; execution and dedup belong to the coordinator, so a
// background entry that matches a running request-driven conversion
// attaches to it instead of starting another process.
type Queue struct {
	converter Converter
	logger    *zap.Logger

	mu       sync.Mutex
	cond     *sync.Cond
	entries  []queueEntry
	draining bool
}

// NewQueue creates a background conversion queue.
func NewQueue(converter Converter, logger *zap.Logger) *Queue {
	q := &Queue{
		converter: converter,
		logger:    logger,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends an entry and, only on the empty-to-non-empty transition,
// starts the single drain loop. Fire and forget.
func (q *Queue) Enqueue(trackID uuid.UUID, profileName string) {
	q.mu.Lock()
	q.entries = append(q.entries, queueEntry{trackID: trackID, profileName: profileName})
	start := !q.draining
	if start {
		q.draining = true
	}
	q.mu.Unlock()

	if start {
		go q.drain()
	}
}

// Len reports how many entries are waiting or running.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Wait blocks until the queue has fully drained.
func (q *Queue) Wait() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.draining || len(q.entries) > 0 {
		q.cond.Wait()
	}
}

// drain works the queue head by head: peek, run to completion, then
// remove. A failed conversion is logged and the loop moves on; nothing
// short of an empty queue stops it.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.entries) == 0 {
			q.draining = false
			q.cond.Broadcast()
			q.mu.Unlock()
			return
		}
		head := q.entries[0]
		q.mu.Unlock()

		_, alreadyExisted, err := q.converter.Convert(context.Background(), head.trackID, head.profileName)
		switch {
		case err != nil:
			q.logger.Error("background conversion failed",
				zap.String("track_id", head.trackID.String()),
				zap.String("profile", head.profileName),
				zap.Error(err))
		case alreadyExisted:
			q.logger.Debug("background conversion skipped, variant exists",
				zap.String("track_id", head.trackID.String()),
				zap.String("profile", head.profileName))
		default:
			q.logger.Info("background conversion complete",
				zap.String("track_id", head.trackID.String()),
				zap.String("profile", head.profileName))
		}

		q.mu.Lock()
		q.entries = q.entries[1:]
		q.mu.Unlock()
	}
}
