package conversion_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shoalmedia/shoal/internal/conversion"
	"github.com/shoalmedia/shoal/internal/storage"
	pkgerrors "github.com/shoalmedia/shoal/pkg/errors"
	"github.com/shoalmedia/shoal/pkg/events"
	"github.com/shoalmedia/shoal/pkg/models"
)

// memoryTrackRepo is an in-memory TrackRepository with optimistic
// versioning matching the persistence layer's contract.
type memoryTrackRepo struct {
	mu     sync.Mutex
	tracks map[uuid.UUID]*models.Track

	// staleFailures makes the next N AddVariant calls fail as if a
	// concurrent writer bumped the version in between.
	staleFailures int
}

func newMemoryTrackRepo(tracks ...*models.Track) *memoryTrackRepo {
	repo := &memoryTrackRepo{tracks: make(map[uuid.UUID]*models.Track)}
	for _, track := range tracks {
		repo.tracks[track.ID] = track
	}
	return repo
}

func (r *memoryTrackRepo) GetTrack(ctx context.Context, id uuid.UUID) (*models.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tracks[id]
	if !ok {
		return nil, pkgerrors.NotFound("track not found")
	}

	copied := *stored
	copied.Variants = append([]models.MediaVariant(nil), stored.Variants...)
	return &copied, nil
}

func (r *memoryTrackRepo) GetVariant(ctx context.Context, trackID uuid.UUID, profileName string) (*models.MediaVariant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tracks[trackID]
	if !ok {
		return nil, pkgerrors.NotFound("track not found")
	}
	if v := stored.VariantFor(profileName); v != nil {
		copied := *v
		return &copied, nil
	}
	return nil, pkgerrors.NotFound("variant not found")
}

func (r *memoryTrackRepo) AddVariant(ctx context.Context, track *models.Track, variant *models.MediaVariant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.tracks[track.ID]
	if !ok {
		return pkgerrors.NotFound("track not found")
	}

	if r.staleFailures > 0 {
		r.staleFailures--
		stored.Version++
		return conversion.ErrStaleTrack
	}
	if track.Version != stored.Version {
		return conversion.ErrStaleTrack
	}
	if stored.VariantFor(variant.ProfileName) != nil {
		return conversion.ErrVariantExists
	}

	stored.Variants = append(stored.Variants, *variant)
	stored.Version++
	return nil
}

// stubRunner counts invocations and optionally blocks until released.
type stubRunner struct {
	mu       sync.Mutex
	calls    int
	exitCode int
	err      error

	startedOnce sync.Once
	started     chan struct{}
	release     chan struct{}
}

func newStubRunner() *stubRunner {
	return &stubRunner{started: make(chan struct{})}
}

func (s *stubRunner) Run(ctx context.Context, name string, args []string, sink conversion.LineSink) (int, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	s.startedOnce.Do(func() { close(s.started) })
	if s.release != nil {
		<-s.release
	}
	return s.exitCode, s.err
}

func (s *stubRunner) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubStore satisfies the coordinator's storage needs without touching
// the filesystem.
type stubStore struct {
	mode storage.Mode

	mu      sync.Mutex
	uploads []string
}

func (s *stubStore) Mode() storage.Mode          { return s.mode }
func (s *stubStore) ResolvePath(l string) string { return "/media/" + l }

func (s *stubStore) RecordLocal(logical string) (*models.StoredFile, error) {
	return &models.StoredFile{Path: logical, Size: 1234, ContentHash: "deadbeef"}, nil
}

func (s *stubStore) Upload(ctx context.Context, localPath, destLogical string, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, destLogical)
	return nil
}

func testTrack() *models.Track {
	return &models.Track{
		ID:       uuid.New(),
		OwnerID:  uuid.New(),
		Title:    "Test Track",
		Kind:     models.MediaKindAudio,
		FilePath: "tracks/test.flac",
		Version:  1,
	}
}

func newTestCoordinator(t *testing.T, repo *memoryTrackRepo, runner conversion.Runner, store conversion.Store, bus *events.InMemoryEventBus) *conversion.Coordinator {
	t.Helper()
	catalog, err := conversion.NewCatalog(conversion.DefaultProfiles())
	require.NoError(t, err)
	return conversion.NewCoordinator(catalog, runner, store, repo, bus, zaptest.NewLogger(t), conversion.Options{})
}

func TestConvert(t *testing.T) {
	ctx := context.Background()

	t.Run("produces and persists a variant", func(t *testing.T) {
		track := testTrack()
		repo := newMemoryTrackRepo(track)
		runner := newStubRunner()
		coord := newTestCoordinator(t, repo, runner, &stubStore{mode: storage.ModeDirect}, nil)

		variant, existed, err := coord.Convert(ctx, track.ID, "mp3-128")
		require.NoError(t, err)
		assert.False(t, existed)
		assert.Equal(t, "mp3-128", variant.ProfileName)
		assert.Equal(t, "mp3", variant.Format)
		assert.Equal(t, 128, variant.BitrateKbps)
		assert.Equal(t, int64(1234), variant.Size)
		assert.Equal(t, 1, runner.callCount())

		// Persisted on the track with a bumped version.
		reloaded, err := repo.GetTrack(ctx, track.ID)
		require.NoError(t, err)
		assert.NotNil(t, reloaded.VariantFor("mp3-128"))
		assert.Equal(t, 2, reloaded.Version)
	})

	t.Run("existing variant short-circuits", func(t *testing.T) {
		track := testTrack()
		track.Variants = []models.MediaVariant{{TrackID: track.ID, ProfileName: "mp3-128", Format: "mp3"}}
		repo := newMemoryTrackRepo(track)
		runner := newStubRunner()
		coord := newTestCoordinator(t, repo, runner, &stubStore{mode: storage.ModeDirect}, nil)

		variant, existed, err := coord.Convert(ctx, track.ID, "mp3-128")
		require.NoError(t, err)
		assert.True(t, existed)
		assert.Equal(t, "mp3-128", variant.ProfileName)
		assert.Equal(t, 0, runner.callCount())
	})

	t.Run("unknown profile", func(t *testing.T) {
		track := testTrack()
		coord := newTestCoordinator(t, newMemoryTrackRepo(track), newStubRunner(), &stubStore{}, nil)

		_, _, err := coord.Convert(ctx, track.ID, "no-such-profile")
		assert.ErrorIs(t, err, conversion.ErrProfileNotFound)
	})

	t.Run("unknown track", func(t *testing.T) {
		coord := newTestCoordinator(t, newMemoryTrackRepo(), newStubRunner(), &stubStore{}, nil)

		_, _, err := coord.Convert(ctx, uuid.New(), "mp3-128")
		assert.ErrorIs(t, err, conversion.ErrTrackNotFound)
	})

	t.Run("non-zero exit surfaces to every waiter", func(t *testing.T) {
		track := testTrack()
		runner := newStubRunner()
		runner.exitCode = 2
		coord := newTestCoordinator(t, newMemoryTrackRepo(track), runner, &stubStore{mode: storage.ModeDirect}, nil)

		_, _, err := coord.Convert(ctx, track.ID, "mp3-128")
		var exitErr *conversion.ProcessExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.ExitCode)
	})

	t.Run("indirect mode uploads the artifact", func(t *testing.T) {
		track := testTrack()
		store := &stubStore{mode: storage.ModeIndirect}
		coord := newTestCoordinator(t, newMemoryTrackRepo(track), newStubRunner(), store, nil)

		_, _, err := coord.Convert(ctx, track.ID, "mp3-128")
		require.NoError(t, err)
		assert.Equal(t, []string{"tracks/test.flac.mp3-128"}, store.uploads)
	})

	t.Run("publishes variant created event", func(t *testing.T) {
		track := testTrack()
		bus := events.NewInMemoryEventBus(zaptest.NewLogger(t))
		coord := newTestCoordinator(t, newMemoryTrackRepo(track), newStubRunner(), &stubStore{mode: storage.ModeDirect}, bus)

		var mu sync.Mutex
		var received []events.Event
		bus.Subscribe(conversion.EventTypeVariantCreated, func(ctx context.Context, event events.Event) error {
			mu.Lock()
			received = append(received, event)
			mu.Unlock()
			return nil
		})

		_, _, err := coord.Convert(ctx, track.ID, "mp3-128")
		require.NoError(t, err)
		bus.Close()

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, received, 1)
		created, ok := received[0].(conversion.VariantCreated)
		require.True(t, ok)
		assert.Equal(t, track.ID, created.TrackID)
		assert.Equal(t, "mp3-128", created.ProfileName)
	})
}

func TestConvertSingleflight(t *testing.T) {
	ctx := context.Background()

	t.Run("concurrent callers share one execution", func(t *testing.T) {
		track := testTrack()
		repo := newMemoryTrackRepo(track)
		runner := newStubRunner()
		runner.release = make(chan struct{})
		coord := newTestCoordinator(t, repo, runner, &stubStore{mode: storage.ModeDirect}, nil)

		const callers = 8
		var wg sync.WaitGroup
		variants := make([]*models.MediaVariant, callers)
		errs := make([]error, callers)

		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				variants[i], _, errs[i] = coord.Convert(ctx, track.ID, "mp3-128")
			}(i)
		}

		// Wait until the single process is running, give the rest a
		// moment to attach, then let it finish.
		<-runner.started
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, 1, coord.InFlight())
		close(runner.release)
		wg.Wait()

		for i := 0; i < callers; i++ {
			require.NoError(t, errs[i])
			require.NotNil(t, variants[i])
			assert.Equal(t, "mp3-128", variants[i].ProfileName)
		}
		assert.Equal(t, 1, runner.callCount())
	})

	t.Run("distinct profiles run independently", func(t *testing.T) {
		track := testTrack()
		runner := newStubRunner()
		coord := newTestCoordinator(t, newMemoryTrackRepo(track), runner, &stubStore{mode: storage.ModeDirect}, nil)

		_, _, err := coord.Convert(ctx, track.ID, "mp3-128")
		require.NoError(t, err)
		_, _, err = coord.Convert(ctx, track.ID, "opus-64")
		require.NoError(t, err)

		assert.Equal(t, 2, runner.callCount())
	})

	t.Run("finished tasks are evicted", func(t *testing.T) {
		track := testTrack()
		runner := newStubRunner()
		runner.exitCode = 1 // fail so no variant is persisted
		coord := newTestCoordinator(t, newMemoryTrackRepo(track), runner, &stubStore{mode: storage.ModeDirect}, nil)

		_, _, err := coord.Convert(ctx, track.ID, "mp3-128")
		require.Error(t, err)
		assert.Equal(t, 0, coord.InFlight())

		// A fresh request starts a fresh execution instead of
		// reattaching to the dead task.
		_, _, err = coord.Convert(ctx, track.ID, "mp3-128")
		require.Error(t, err)
		assert.Equal(t, 2, runner.callCount())
	})

	t.Run("cancelled waiter detaches without killing the work", func(t *testing.T) {
		track := testTrack()
		repo := newMemoryTrackRepo(track)
		runner := newStubRunner()
		runner.release = make(chan struct{})
		coord := newTestCoordinator(t, repo, runner, &stubStore{mode: storage.ModeDirect}, nil)

		waitCtx, cancel := context.WithCancel(ctx)

		type result struct {
			variant *models.MediaVariant
			err     error
		}
		cancelled := make(chan result, 1)
		patient := make(chan result, 1)

		go func() {
			v, _, err := coord.Convert(waitCtx, track.ID, "mp3-128")
			cancelled <- result{v, err}
		}()
		<-runner.started
		go func() {
			v, _, err := coord.Convert(ctx, track.ID, "mp3-128")
			patient <- result{v, err}
		}()

		cancel()
		got := <-cancelled
		assert.ErrorIs(t, got.err, context.Canceled)

		close(runner.release)
		got = <-patient
		require.NoError(t, got.err)
		assert.Equal(t, "mp3-128", got.variant.ProfileName)
		assert.Equal(t, 1, runner.callCount())
	})
}

func TestConvertOptimisticRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("version conflict reloads and retries", func(t *testing.T) {
		track := testTrack()
		repo := newMemoryTrackRepo(track)
		repo.staleFailures = 2
		runner := newStubRunner()
		coord := newTestCoordinator(t, repo, runner, &stubStore{mode: storage.ModeDirect}, nil)

		variant, existed, err := coord.Convert(ctx, track.ID, "mp3-128")
		require.NoError(t, err)
		assert.False(t, existed)
		assert.Equal(t, "mp3-128", variant.ProfileName)
		// The process ran once; only the save was retried.
		assert.Equal(t, 1, runner.callCount())

		reloaded, err := repo.GetTrack(ctx, track.ID)
		require.NoError(t, err)
		assert.NotNil(t, reloaded.VariantFor("mp3-128"))
	})

	t.Run("duplicate variant row is success without work", func(t *testing.T) {
		track := testTrack()
		repo := newMemoryTrackRepo(track)
		runner := newStubRunner()
		runner.release = make(chan struct{})
		coord := newTestCoordinator(t, repo, runner, &stubStore{mode: storage.ModeDirect}, nil)

		done := make(chan struct{})
		var variant *models.MediaVariant
		var err error
		go func() {
			defer close(done)
			variant, _, err = coord.Convert(ctx, track.ID, "mp3-128")
		}()
		<-runner.started

		// Another writer records the same variant while the process runs.
		existing := &models.MediaVariant{TrackID: track.ID, ProfileName: "mp3-128", Format: "mp3", Size: 99}
		loaded, gerr := repo.GetTrack(ctx, track.ID)
		require.NoError(t, gerr)
		require.NoError(t, repo.AddVariant(ctx, loaded, existing))

		close(runner.release)
		<-done

		require.NoError(t, err)
		assert.Equal(t, int64(99), variant.Size)
	})
}
