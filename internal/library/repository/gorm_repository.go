package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/shoalmedia/shoal/internal/conversion"
	pkgerrors "github.com/shoalmedia/shoal/pkg/errors"
	"github.com/shoalmedia/shoal/pkg/models"
	"github.com/shoalmedia/shoal/pkg/repository"
)

// GormRepository implements the library repository interfaces, including
// the coordinator's TrackRepository collaborator, using GORM.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new GORM repository.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// --- tracks ---

// CreateTrack creates a new track.
func (r *GormRepository) CreateTrack(ctx context.Context, track *models.Track) error {
	return repository.Create(ctx, r.db, track)
}

// GetTrack retrieves a track with its variant collection.
func (r *GormRepository) GetTrack(ctx context.Context, id uuid.UUID) (*models.Track, error) {
	return repository.FindByID[models.Track](ctx, r.db, id, "Variants", "Variants.StoredFile")
}

// GetTrackByPath retrieves a track by its logical file path.
func (r *GormRepository) GetTrackByPath(ctx context.Context, path string) (*models.Track, error) {
	return repository.FindOneBy[models.Track](ctx, r.db, "file_path = ?", path)
}

// ListTracks lists tracks for an owner.
func (r *GormRepository) ListTracks(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*models.Track, error) {
	var tracks []*models.Track
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("title").
		Limit(limit).Offset(offset).
		Preload("Variants").
		Find(&tracks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	return tracks, nil
}

// SaveTrack saves track mutations under optimistic concurrency: the update
// only applies if the stored version still matches, and bumps it by one.
// A mismatch surfaces as a Conflict error.
func (r *GormRepository) SaveTrack(ctx context.Context, track *models.Track) error {
	result := r.db.WithContext(ctx).
		Model(&models.Track{}).
		Where("id = ? AND version = ?", track.ID, track.Version).
		Updates(map[string]interface{}{
			"title":   track.Title,
			"artist":  track.Artist,
			"album":   track.Album,
			"hidden":  track.Hidden,
			"version": track.Version + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.Conflict("track was modified concurrently")
	}
	track.Version++
	return nil
}

// DeleteTrack deletes a track.
func (r *GormRepository) DeleteTrack(ctx context.Context, id uuid.UUID) error {
	return repository.Delete[models.Track](ctx, r.db, id)
}

// --- variants ---

// GetVariant loads one persisted variant by (track, profile).
func (r *GormRepository) GetVariant(ctx context.Context, trackID uuid.UUID, profileName string) (*models.MediaVariant, error) {
	var variant models.MediaVariant
	err := r.db.WithContext(ctx).
		Preload("StoredFile").
		Where("track_id = ? AND profile_name = ?", trackID, profileName).
		First(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound("variant not found")
		}
		return nil, err
	}
	return &variant, nil
}

// AddVariant appends a variant to the track's persisted collection in one
// transaction: the track's version is bumped with a version guard, then
// the stored-file record and the variant row are inserted. A stale version
// yields conversion.ErrStaleTrack; an existing (track, profile) row yields
// conversion.ErrVariantExists. Either way the transaction rolls back
// cleanly.
func (r *GormRepository) AddVariant(ctx context.Context, track *models.Track, variant *models.MediaVariant) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Track{}).
			Where("id = ? AND version = ?", track.ID, track.Version).
			Update("version", track.Version+1)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return conversion.ErrStaleTrack
		}

		stored := variant.StoredFile
		if err := tx.Create(&stored).Error; err != nil {
			return fmt.Errorf("failed to create stored file: %w", err)
		}
		variant.StoredFileID = stored.ID
		variant.StoredFile = stored

		if err := tx.Omit("StoredFile").Create(variant).Error; err != nil {
			if pkgerrors.IsDuplicateError(err) {
				return conversion.ErrVariantExists
			}
			return fmt.Errorf("failed to create variant: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	track.Version++
	return nil
}

// --- playlists ---

// CreatePlaylist creates a new playlist.
func (r *GormRepository) CreatePlaylist(ctx context.Context, playlist *models.Playlist) error {
	return repository.Create(ctx, r.db, playlist)
}

// GetPlaylist retrieves a playlist with its entries in order.
func (r *GormRepository) GetPlaylist(ctx context.Context, id uuid.UUID) (*models.Playlist, error) {
	var playlist models.Playlist
	err := r.db.WithContext(ctx).
		Preload("Entries", func(db *gorm.DB) *gorm.DB {
			return db.Order("playlist_entries.position")
		}).
		Preload("Entries.Track").
		First(&playlist, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound("playlist not found")
		}
		return nil, err
	}
	return &playlist, nil
}

// ListPlaylists lists playlists for an owner.
func (r *GormRepository) ListPlaylists(ctx context.Context, ownerID uuid.UUID) ([]*models.Playlist, error) {
	return repository.FindAllBy[models.Playlist](ctx, r.db, "owner_id = ?", ownerID)
}

// AddPlaylistEntry appends a track at the end of a playlist.
func (r *GormRepository) AddPlaylistEntry(ctx context.Context, playlistID, trackID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var max int
		if err := tx.Model(&models.PlaylistEntry{}).
			Where("playlist_id = ?", playlistID).
			Select("COALESCE(MAX(position), 0)").
			Scan(&max).Error; err != nil {
			return err
		}
		entry := &models.PlaylistEntry{
			PlaylistID: playlistID,
			TrackID:    trackID,
			Position:   max + 1,
		}
		return tx.Create(entry).Error
	})
}

// DeletePlaylist deletes a playlist.
func (r *GormRepository) DeletePlaylist(ctx context.Context, id uuid.UUID) error {
	return repository.Delete[models.Playlist](ctx, r.db, id)
}

// --- comments ---

// CreateComment creates a comment on a track.
func (r *GormRepository) CreateComment(ctx context.Context, comment *models.Comment) error {
	return repository.Create(ctx, r.db, comment)
}

// ListComments lists comments on a track, oldest first.
func (r *GormRepository) ListComments(ctx context.Context, trackID uuid.UUID) ([]*models.Comment, error) {
	var comments []*models.Comment
	err := r.db.WithContext(ctx).
		Where("track_id = ?", trackID).
		Order("created_at").
		Find(&comments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, nil
}

// DeleteComment deletes a comment.
func (r *GormRepository) DeleteComment(ctx context.Context, id uuid.UUID) error {
	return repository.Delete[models.Comment](ctx, r.db, id)
}

// --- users ---

// CreateUser creates a user record.
func (r *GormRepository) CreateUser(ctx context.Context, user *models.User) error {
	return repository.Create(ctx, r.db, user)
}

// GetUser retrieves a user by ID.
func (r *GormRepository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return repository.FindByID[models.User](ctx, r.db, id)
}

// GetUserByUsername retrieves a user by username.
func (r *GormRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return repository.FindOneBy[models.User](ctx, r.db, "username = ?", username)
}
