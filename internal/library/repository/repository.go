package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/shoalmedia/shoal/pkg/models"
)

// Repository is the persistence surface of the library. Implemented by
// GormRepository; mocked in service tests.
type Repository interface {
	// Tracks
	CreateTrack(ctx context.Context, track *models.Track) error
	GetTrack(ctx context.Context, id uuid.UUID) (*models.Track, error)
	GetTrackByPath(ctx context.Context, path string) (*models.Track, error)
	ListTracks(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*models.Track, error)
	SaveTrack(ctx context.Context, track *models.Track) error
	DeleteTrack(ctx context.Context, id uuid.UUID) error

	// Variants
	GetVariant(ctx context.Context, trackID uuid.UUID, profileName string) (*models.MediaVariant, error)
	AddVariant(ctx context.Context, track *models.Track, variant *models.MediaVariant) error

	// Playlists
	CreatePlaylist(ctx context.Context, playlist *models.Playlist) error
	GetPlaylist(ctx context.Context, id uuid.UUID) (*models.Playlist, error)
	ListPlaylists(ctx context.Context, ownerID uuid.UUID) ([]*models.Playlist, error)
	AddPlaylistEntry(ctx context.Context, playlistID, trackID uuid.UUID) error
	DeletePlaylist(ctx context.Context, id uuid.UUID) error

	// Comments
	CreateComment(ctx context.Context, comment *models.Comment) error
	ListComments(ctx context.Context, trackID uuid.UUID) ([]*models.Comment, error)
	DeleteComment(ctx context.Context, id uuid.UUID) error

	// Users
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}
