package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MediaKind distinguishes audio from video tracks.
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

// Track represents a media item in the library. It carries an optimistic
// concurrency counter: every save must match the stored Version and bumps
// it by one, so concurrent writers are detected instead of overwriting
// each other.
type Track struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	OwnerID        uuid.UUID      `json:"owner_id" gorm:"type:uuid;not null;index"`
	Title          string         `json:"title" gorm:"not null;index"`
	Artist         string         `json:"artist,omitempty" gorm:"index"`
	Album          string         `json:"album,omitempty"`
	Kind           MediaKind      `json:"kind" gorm:"type:varchar(20);not null;default:'audio'"`
	FilePath       string         `json:"file_path" gorm:"not null;index"`
	FileSize       int64          `json:"file_size,omitempty"`
	ContentHash    string         `json:"content_hash,omitempty" gorm:"type:varchar(64)"`
	DurationMillis int            `json:"duration_millis,omitempty"`
	BitrateKbps    int            `json:"bitrate_kbps,omitempty"`
	Format         string         `json:"format,omitempty" gorm:"type:varchar(20)"`
	Hidden         bool           `json:"hidden" gorm:"default:false"`
	Version        int            `json:"version" gorm:"not null;default:1"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Variants []MediaVariant `json:"variants,omitempty" gorm:"foreignKey:TrackID;constraint:OnDelete:CASCADE"`
}

// MediaVariant is one produced derived file for a (track, profile) pair.
// At most one variant exists per profile name on a track, and a variant is
// never mutated after creation; re-converting with the same profile yields
// an equivalent file, so an existing row counts as done.
type MediaVariant struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TrackID      uuid.UUID `json:"track_id" gorm:"type:uuid;not null;uniqueIndex:idx_variants_track_profile"`
	ProfileName  string    `json:"profile_name" gorm:"type:varchar(64);not null;uniqueIndex:idx_variants_track_profile"`
	Format       string    `json:"format" gorm:"type:varchar(20);not null"`
	BitrateKbps  int       `json:"bitrate_kbps"`
	Size         int64     `json:"size"`
	StoredFileID uuid.UUID `json:"stored_file_id" gorm:"type:uuid;not null"`
	CreatedAt    time.Time `json:"created_at"`

	// Relationships
	StoredFile StoredFile `json:"stored_file" gorm:"foreignKey:StoredFileID"`
}

// StoredFile records one file held by the artifact store.
type StoredFile struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Path        string    `json:"path" gorm:"not null;index"`
	Size        int64     `json:"size" gorm:"not null"`
	ContentHash string    `json:"content_hash" gorm:"type:varchar(64)"`
	CreatedAt   time.Time `json:"created_at"`
}

// VariantFor returns the variant for the given profile name, if present.
func (t *Track) VariantFor(profileName string) *MediaVariant {
	for i := range t.Variants {
		if t.Variants[i].ProfileName == profileName {
			return &t.Variants[i]
		}
	}
	return nil
}

// TableName customizations.
func (Track) TableName() string {
	return "tracks"
}

func (MediaVariant) TableName() string {
	return "media_variants"
}

func (StoredFile) TableName() string {
	return "stored_files"
}
