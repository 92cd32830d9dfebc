package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a library account. Authentication lives elsewhere; this
// record only anchors ownership of tracks, playlists, and comments.
type User struct {
	ID          uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	Username    string         `json:"username" gorm:"uniqueIndex;not null"`
	DisplayName string         `json:"display_name,omitempty"`
	Email       string         `json:"email,omitempty" gorm:"index"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// Playlist is an ordered collection of tracks.
type Playlist struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID   uuid.UUID      `json:"owner_id" gorm:"type:uuid;not null;index"`
	Name      string         `json:"name" gorm:"not null"`
	Public    bool           `json:"public" gorm:"default:false"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Entries []PlaylistEntry `json:"entries,omitempty" gorm:"foreignKey:PlaylistID;constraint:OnDelete:CASCADE"`
}

// PlaylistEntry places one track at a position inside a playlist.
type PlaylistEntry struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	PlaylistID uuid.UUID `json:"playlist_id" gorm:"type:uuid;not null;uniqueIndex:idx_playlist_position"`
	TrackID    uuid.UUID `json:"track_id" gorm:"type:uuid;not null;index"`
	Position   int       `json:"position" gorm:"not null;uniqueIndex:idx_playlist_position"`
	CreatedAt  time.Time `json:"created_at"`

	// Relationships
	Track Track `json:"track,omitempty" gorm:"foreignKey:TrackID"`
}

// Comment is a flat user comment on a track.
type Comment struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	TrackID   uuid.UUID      `json:"track_id" gorm:"type:uuid;not null;index"`
	AuthorID  uuid.UUID      `json:"author_id" gorm:"type:uuid;not null;index"`
	Body      string         `json:"body" gorm:"type:text;not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName customizations.
func (User) TableName() string {
	return "users"
}

func (Playlist) TableName() string {
	return "playlists"
}

func (PlaylistEntry) TableName() string {
	return "playlist_entries"
}

func (Comment) TableName() string {
	return "comments"
}
