package conversion_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shoalmedia/shoal/internal/conversion"
	"github.com/shoalmedia/shoal/pkg/models"
)

// recordingConverter tracks invocation order and concurrency.
type recordingConverter struct {
	mu         sync.Mutex
	order      []string
	inFlight   int32
	maxSeen    int32
	failFor    map[string]error
	existsFor  map[string]bool
	perCallLag time.Duration
}

func (c *recordingConverter) Convert(ctx context.Context, trackID uuid.UUID, profileName string) (*models.MediaVariant, bool, error) {
	current := atomic.AddInt32(&c.inFlight, 1)
	defer atomic.AddInt32(&c.inFlight, -1)

	for {
		max := atomic.LoadInt32(&c.maxSeen)
		if current <= max || atomic.CompareAndSwapInt32(&c.maxSeen, max, current) {
			break
		}
	}

	if c.perCallLag > 0 {
		time.Sleep(c.perCallLag)
	}

	c.mu.Lock()
	c.order = append(c.order, profileName)
	c.mu.Unlock()

	if err := c.failFor[profileName]; err != nil {
		return nil, false, err
	}
	if c.existsFor[profileName] {
		return &models.MediaVariant{TrackID: trackID, ProfileName: profileName}, true, nil
	}
	return &models.MediaVariant{TrackID: trackID, ProfileName: profileName}, false, nil
}

func TestQueue(t *testing.T) {
	t.Run("runs entries strictly one at a time in order", func(t *testing.T) {
		converter := &recordingConverter{perCallLag: 5 * time.Millisecond}
		queue := conversion.NewQueue(converter, zaptest.NewLogger(t))

		trackID := uuid.New()
		profiles := []string{"p1", "p2", "p3", "p4", "p5"}
		for _, p := range profiles {
			queue.Enqueue(trackID, p)
		}
		queue.Wait()

		assert.Equal(t, profiles, converter.order)
		assert.Equal(t, int32(1), converter.maxSeen)
		assert.Equal(t, 0, queue.Len())
	})

	t.Run("failures do not stall the queue", func(t *testing.T) {
		converter := &recordingConverter{
			failFor: map[string]error{"bad": errors.New("transcoder blew up")},
		}
		queue := conversion.NewQueue(converter, zaptest.NewLogger(t))

		trackID := uuid.New()
		queue.Enqueue(trackID, "ok-1")
		queue.Enqueue(trackID, "bad")
		queue.Enqueue(trackID, "ok-2")
		queue.Wait()

		assert.Equal(t, []string{"ok-1", "bad", "ok-2"}, converter.order)
	})

	t.Run("already existing variants are skipped quietly", func(t *testing.T) {
		converter := &recordingConverter{
			existsFor: map[string]bool{"existing": true},
		}
		queue := conversion.NewQueue(converter, zaptest.NewLogger(t))

		queue.Enqueue(uuid.New(), "existing")
		queue.Wait()

		assert.Equal(t, []string{"existing"}, converter.order)
	})

	t.Run("drain loop restarts after the queue empties", func(t *testing.T) {
		converter := &recordingConverter{}
		queue := conversion.NewQueue(converter, zaptest.NewLogger(t))

		trackID := uuid.New()
		queue.Enqueue(trackID, "first")
		queue.Wait()
		require.Equal(t, []string{"first"}, converter.order)

		queue.Enqueue(trackID, "second")
		queue.Wait()
		assert.Equal(t, []string{"first", "second"}, converter.order)
	})

	t.Run("concurrent producers never overlap executions", func(t *testing.T) {
		converter := &recordingConverter{perCallLag: time.Millisecond}
		queue := conversion.NewQueue(converter, zaptest.NewLogger(t))

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 5; j++ {
					queue.Enqueue(uuid.New(), "p")
				}
			}()
		}
		wg.Wait()
		queue.Wait()

		assert.Len(t, converter.order, 20)
		assert.Equal(t, int32(1), converter.maxSeen)
	})
}
