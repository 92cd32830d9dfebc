package service

import (
	"context"
	"io"
	"path"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shoalmedia/shoal/internal/conversion"
	"github.com/shoalmedia/shoal/internal/library/repository"
	"github.com/shoalmedia/shoal/internal/storage"
	pkgerrors "github.com/shoalmedia/shoal/pkg/errors"
	"github.com/shoalmedia/shoal/pkg/models"
)

// BackgroundEnqueuer accepts fire-and-forget conversion work. Satisfied by
// *conversion.Queue.
type BackgroundEnqueuer interface {
	Enqueue(trackID uuid.UUID, profileName string)
}

// LibraryService owns the plain CRUD around tracks, playlists, and
// comments, and hands finished uploads to the conversion queue.
type LibraryService struct {
	repo    repository.Repository
	store   *storage.ArtifactStore
	catalog *conversion.Catalog
	queue   BackgroundEnqueuer
	logger  *zap.Logger
}

// NewLibraryService creates a library service.
func NewLibraryService(
	repo repository.Repository,
	store *storage.ArtifactStore,
	catalog *conversion.Catalog,
	queue BackgroundEnqueuer,
	logger *zap.Logger,
) *LibraryService {
	return &LibraryService{
		repo:    repo,
		store:   store,
		catalog: catalog,
		queue:   queue,
		logger:  logger,
	}
}

// IngestTrack stores an uploaded stream, creates the track record, and
// queues every auto-trigger profile for background conversion. size may be
// negative if the caller does not know it.
func (s *LibraryService) IngestTrack(ctx context.Context, track *models.Track, content io.Reader, size int64) error {
	if track.Title == "" {
		return pkgerrors.BadRequest("track title is required")
	}
	if track.OwnerID == uuid.Nil {
		return pkgerrors.BadRequest("track owner is required")
	}

	ext := track.Format
	if ext == "" {
		ext = "bin"
	}
	stored, err := s.store.SaveLocal(path.Join("tracks", "{0}."+ext), content, size)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrorTypeInternal, "failed to store track file", err)
	}

	track.FilePath = stored.Path
	track.FileSize = stored.Size
	track.ContentHash = stored.ContentHash

	if err := s.repo.CreateTrack(ctx, track); err != nil {
		return err
	}

	s.logger.Info("track ingested",
		zap.String("track_id", track.ID.String()),
		zap.String("path", track.FilePath),
		zap.Int64("size", track.FileSize))

	s.queueAutoConversions(track)
	return nil
}

// queueAutoConversions enqueues every auto-trigger profile matching the
// track's media kind. The queue serializes the actual work.
func (s *LibraryService) queueAutoConversions(track *models.Track) {
	for _, profile := range s.catalog.AutoProfiles(track.Kind) {
		s.queue.Enqueue(track.ID, profile.Name)
		s.logger.Debug("queued background conversion",
			zap.String("track_id", track.ID.String()),
			zap.String("profile", profile.Name))
	}
}

// GetTrack retrieves a track with its variants.
func (s *LibraryService) GetTrack(ctx context.Context, id uuid.UUID) (*models.Track, error) {
	return s.repo.GetTrack(ctx, id)
}

// ListTracks lists an owner's tracks.
func (s *LibraryService) ListTracks(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*models.Track, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListTracks(ctx, ownerID, limit, offset)
}

// UpdateTrack saves metadata edits under optimistic concurrency. The
// Conflict error is surfaced to the caller, who holds stale state and must
// re-read before retrying.
func (s *LibraryService) UpdateTrack(ctx context.Context, track *models.Track) error {
	if track.Title == "" {
		return pkgerrors.BadRequest("track title is required")
	}
	return s.repo.SaveTrack(ctx, track)
}

// DeleteTrack removes the track record and best-effort deletes the remote
// copies of its variants.
func (s *LibraryService) DeleteTrack(ctx context.Context, id uuid.UUID) error {
	track, err := s.repo.GetTrack(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.DeleteTrack(ctx, id); err != nil {
		return err
	}

	for _, variant := range track.Variants {
		if err := s.store.Delete(ctx, variant.StoredFile.Path); err != nil {
			s.logger.Warn("failed to delete remote variant",
				zap.String("track_id", id.String()),
				zap.String("profile", variant.ProfileName),
				zap.Error(err))
		}
	}
	return nil
}

// --- playlists ---

// CreatePlaylist creates a playlist.
func (s *LibraryService) CreatePlaylist(ctx context.Context, playlist *models.Playlist) error {
	if playlist.Name == "" {
		return pkgerrors.BadRequest("playlist name is required")
	}
	if playlist.OwnerID == uuid.Nil {
		return pkgerrors.BadRequest("playlist owner is required")
	}
	return s.repo.CreatePlaylist(ctx, playlist)
}

// GetPlaylist retrieves a playlist with ordered entries.
func (s *LibraryService) GetPlaylist(ctx context.Context, id uuid.UUID) (*models.Playlist, error) {
	return s.repo.GetPlaylist(ctx, id)
}

// ListPlaylists lists an owner's playlists.
func (s *LibraryService) ListPlaylists(ctx context.Context, ownerID uuid.UUID) ([]*models.Playlist, error) {
	return s.repo.ListPlaylists(ctx, ownerID)
}

// AddToPlaylist appends a track to a playlist.
func (s *LibraryService) AddToPlaylist(ctx context.Context, playlistID, trackID uuid.UUID) error {
	if _, err := s.repo.GetTrack(ctx, trackID); err != nil {
		return err
	}
	return s.repo.AddPlaylistEntry(ctx, playlistID, trackID)
}

// DeletePlaylist deletes a playlist.
func (s *LibraryService) DeletePlaylist(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeletePlaylist(ctx, id)
}

// --- comments ---

// AddComment creates a comment on a track.
func (s *LibraryService) AddComment(ctx context.Context, comment *models.Comment) error {
	if comment.Body == "" {
		return pkgerrors.BadRequest("comment body is required")
	}
	if _, err := s.repo.GetTrack(ctx, comment.TrackID); err != nil {
		return err
	}
	return s.repo.CreateComment(ctx, comment)
}

// ListComments lists a track's comments, oldest first.
func (s *LibraryService) ListComments(ctx context.Context, trackID uuid.UUID) ([]*models.Comment, error) {
	return s.repo.ListComments(ctx, trackID)
}

// DeleteComment deletes a comment.
func (s *LibraryService) DeleteComment(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteComment(ctx, id)
}
