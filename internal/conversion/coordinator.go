package conversion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shoalmedia/shoal/internal/storage"
	pkgerrors "github.com/shoalmedia/shoal/pkg/errors"
	"github.com/shoalmedia/shoal/pkg/events"
	"github.com/shoalmedia/shoal/pkg/models"
)

// TrackRepository is the item persistence collaborator.
type TrackRepository interface {
	// GetTrack loads a track with its variant collection.
	GetTrack(ctx context.Context, id uuid.UUID) (*models.Track, error)
	// GetVariant loads one persisted variant by (track, profile).
	GetVariant(ctx context.Context, trackID uuid.UUID, profileName string) (*models.MediaVariant, error)
	// AddVariant appends a variant to the track's persisted collection,
	// guarded by the track's optimistic version. Returns ErrStaleTrack
	// when the stored version moved, ErrVariantExists when a row for the
	// (track, profile) pair is already present.
	AddVariant(ctx context.Context, track *models.Track, variant *models.MediaVariant) error
}

// Store captures what the coordinator needs from the artifact store.
type Store interface {
	Mode() storage.Mode
	ResolvePath(logical string) string
	RecordLocal(logical string) (*models.StoredFile, error)
	Upload(ctx context.Context, localPath, destLogical string, size int64) error
}

// Options tune coordinator behavior.
type Options struct {
	// VerboseProcessOutput streams transcoder stdout/stderr into the log.
	VerboseProcessOutput bool
	// ProcessTimeout bounds one transcoder run. Zero means unbounded.
	ProcessTimeout time.Duration
}

// Coordinator turns (track, profile) pairs into produced variants. It
// deduplicates concurrent requests per conversion key so exactly one
// transcoder process runs per key system-wide, and durably records the
// result under optimistic concurrency.
type Coordinator struct {
	catalog *Catalog
	runner  Runner
	store   Store
	tracks  TrackRepository
	bus     *events.InMemoryEventBus
	logger  *zap.Logger
	opts    Options

	mu    sync.Mutex
	tasks map[string]*task
}

// task is the in-memory dedup handle for one conversion attempt. It lives
// in the coordinator's table only while the attempt is in flight; it is
// never a result cache.
type task struct {
	key string

	mu      sync.Mutex
	started bool

	done    chan struct{}
	variant *models.MediaVariant
	err     error
}

// start launches the unit of work exactly once. The flag and the stored
// handle are guarded by the task's own mutex: two callers racing past the
// table lookup both land here, and the second observes started and simply
// awaits the channel.
func (t *task) start(run func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true
	go run()
}

// NewCoordinator creates a conversion coordinator. bus may be nil to
// disable event publishing.
func NewCoordinator(
	catalog *Catalog,
	runner Runner,
	store Store,
	tracks TrackRepository,
	bus *events.InMemoryEventBus,
	logger *zap.Logger,
	opts Options,
) *Coordinator {
	return &Coordinator{
		catalog: catalog,
		runner:  runner,
		store:   store,
		tracks:  tracks,
		bus:     bus,
		logger:  logger,
		opts:    opts,
		tasks:   make(map[string]*task),
	}
}

// ConversionKey identifies one unit of transcoding work.
func ConversionKey(trackID uuid.UUID, profileName string) string {
	return fmt.Sprintf("%s-%s", trackID, profileName)
}

// Convert produces the variant for (track, profile). If the variant is
// already persisted it is returned immediately with alreadyExisted true
// and no process runs. Otherwise the caller attaches to the unique
// in-flight task for the key, sharing one execution with every concurrent
// caller; all of them observe the same variant or the same error.
//
// A caller whose ctx expires detaches and gets the ctx error; the shared
// process keeps running for any remaining waiters.
func (c *Coordinator) Convert(ctx context.Context, trackID uuid.UUID, profileName string) (*models.MediaVariant, bool, error) {
	profile, ok := c.catalog.Find(profileName)
	if !ok {
		return nil, false, ErrProfileNotFound
	}

	track, err := c.tracks.GetTrack(ctx, trackID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, false, ErrTrackNotFound
		}
		return nil, false, fmt.Errorf("load track %s: %w", trackID, err)
	}

	if v := track.VariantFor(profile.Name); v != nil {
		return v, true, nil
	}

	t := c.getOrCreate(ConversionKey(trackID, profile.Name))
	t.start(func() { c.runTask(t, trackID, profile) })

	select {
	case <-t.done:
		return t.variant, false, t.err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// InFlight reports how many conversion tasks are currently running.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tasks)
}

// getOrCreate is the atomic lookup-or-insert on the task table. The check
// and the insert happen under one lock so two callers can never both
// create a task for the same key.
func (c *Coordinator) getOrCreate(key string) *task {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.tasks[key]; ok {
		return t
	}
	t := &task{key: key, done: make(chan struct{})}
	c.tasks[key] = t
	return t
}

// runTask drives one shared execution and always evicts the task before
// signalling completion, so the next request for the key starts fresh
// instead of reattaching to a dead task.
func (c *Coordinator) runTask(t *task, trackID uuid.UUID, profile Profile) {
	defer func() {
		c.mu.Lock()
		delete(c.tasks, t.key)
		c.mu.Unlock()
		close(t.done)
	}()

	ctx := context.Background()
	if c.opts.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ProcessTimeout)
		defer cancel()
	}

	t.variant, t.err = c.runCore(ctx, t.key, trackID, profile)
	if t.err != nil {
		c.logger.Error("conversion failed",
			zap.String("key", t.key),
			zap.Error(t.err))
	}
}

// runCore is one complete conversion: resolve paths, run the transcoder,
// record the artifact, optionally upload it, and append the variant to the
// track under optimistic retry.
func (c *Coordinator) runCore(ctx context.Context, key string, trackID uuid.UUID, profile Profile) (*models.MediaVariant, error) {
	track, err := c.tracks.GetTrack(ctx, trackID)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, ErrTrackNotFound
		}
		return nil, fmt.Errorf("load track %s: %w", trackID, err)
	}
	if v := track.VariantFor(profile.Name); v != nil {
		return v, nil
	}

	outputLogical := track.FilePath + "." + profile.Name
	inputPath := c.store.ResolvePath(track.FilePath)
	outputPath := c.store.ResolvePath(outputLogical)

	name, args, err := profile.CommandArgs(inputPath, outputPath)
	if err != nil {
		return nil, err
	}

	var sink LineSink
	if c.opts.VerboseProcessOutput {
		plog := c.logger.With(zap.String("key", key))
		sink = func(line string) {
			plog.Debug("transcoder output", zap.String("line", line))
		}
	}

	c.logger.Info("starting conversion",
		zap.String("key", key),
		zap.String("profile", profile.Name))

	code, err := c.runner.Run(ctx, name, args, sink)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, &ProcessExitError{ExitCode: code}
	}

	stored, err := c.store.RecordLocal(outputLogical)
	if err != nil {
		return nil, fmt.Errorf("record produced file: %w", err)
	}

	if c.store.Mode() == storage.ModeIndirect {
		if err := c.store.Upload(ctx, outputPath, outputLogical, stored.Size); err != nil {
			return nil, fmt.Errorf("upload variant: %w", err)
		}
	}

	variant := &models.MediaVariant{
		TrackID:     track.ID,
		ProfileName: profile.Name,
		Format:      profile.OutputFormat,
		BitrateKbps: profile.TargetBitrateKbps,
		Size:        stored.Size,
		StoredFile:  *stored,
	}

	// Append under optimistic concurrency. A version conflict means some
	// other writer touched the track; reload fresh state and try again,
	// however many times it takes. Never re-apply the stale object.
	for {
		err := c.tracks.AddVariant(ctx, track, variant)
		if err == nil {
			break
		}
		if errors.Is(err, ErrVariantExists) {
			existing, gerr := c.tracks.GetVariant(ctx, track.ID, profile.Name)
			if gerr != nil {
				return nil, fmt.Errorf("load existing variant: %w", gerr)
			}
			return existing, nil
		}
		if errors.Is(err, ErrStaleTrack) {
			track, err = c.tracks.GetTrack(ctx, trackID)
			if err != nil {
				return nil, fmt.Errorf("reload track %s: %w", trackID, err)
			}
			continue
		}
		return nil, fmt.Errorf("save variant: %w", err)
	}

	c.logger.Info("conversion complete",
		zap.String("key", key),
		zap.Int64("size", variant.Size))

	if c.bus != nil {
		c.bus.PublishAsync(context.Background(), VariantCreated{
			TrackID:     variant.TrackID,
			ProfileName: variant.ProfileName,
			Format:      variant.Format,
			BitrateKbps: variant.BitrateKbps,
			Size:        variant.Size,
			CreatedAt:   time.Now().UTC(),
		})
	}

	return variant, nil
}
