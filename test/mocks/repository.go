package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/shoalmedia/shoal/pkg/models"
)

// MockRepository is a testify mock of the library repository.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateTrack(ctx context.Context, track *models.Track) error {
	args := m.Called(ctx, track)
	return args.Error(0)
}

func (m *MockRepository) GetTrack(ctx context.Context, id uuid.UUID) (*models.Track, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Track), args.Error(1)
}

func (m *MockRepository) GetTrackByPath(ctx context.Context, path string) (*models.Track, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Track), args.Error(1)
}

func (m *MockRepository) ListTracks(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*models.Track, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Track), args.Error(1)
}

func (m *MockRepository) SaveTrack(ctx context.Context, track *models.Track) error {
	args := m.Called(ctx, track)
	return args.Error(0)
}

func (m *MockRepository) DeleteTrack(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) GetVariant(ctx context.Context, trackID uuid.UUID, profileName string) (*models.MediaVariant, error) {
	args := m.Called(ctx, trackID, profileName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MediaVariant), args.Error(1)
}

func (m *MockRepository) AddVariant(ctx context.Context, track *models.Track, variant *models.MediaVariant) error {
	args := m.Called(ctx, track, variant)
	return args.Error(0)
}

func (m *MockRepository) CreatePlaylist(ctx context.Context, playlist *models.Playlist) error {
	args := m.Called(ctx, playlist)
	return args.Error(0)
}

func (m *MockRepository) GetPlaylist(ctx context.Context, id uuid.UUID) (*models.Playlist, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Playlist), args.Error(1)
}

func (m *MockRepository) ListPlaylists(ctx context.Context, ownerID uuid.UUID) ([]*models.Playlist, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Playlist), args.Error(1)
}

func (m *MockRepository) AddPlaylistEntry(ctx context.Context, playlistID, trackID uuid.UUID) error {
	args := m.Called(ctx, playlistID, trackID)
	return args.Error(0)
}

func (m *MockRepository) DeletePlaylist(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) CreateComment(ctx context.Context, comment *models.Comment) error {
	args := m.Called(ctx, comment)
	return args.Error(0)
}

func (m *MockRepository) ListComments(ctx context.Context, trackID uuid.UUID) ([]*models.Comment, error) {
	args := m.Called(ctx, trackID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Comment), args.Error(1)
}

func (m *MockRepository) DeleteComment(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) CreateUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockRepository) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
