package conversion

import (
	"time"

	"github.com/google/uuid"
)

// EventTypeVariantCreated identifies the event published after a variant
// is durably recorded.
const EventTypeVariantCreated = "conversion.variant.created"

// VariantCreated is published once per successfully recorded variant.
type VariantCreated struct {
	TrackID     uuid.UUID `json:"track_id"`
	ProfileName string    `json:"profile_name"`
	Format      string    `json:"format"`
	BitrateKbps int       `json:"bitrate_kbps"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

func (e VariantCreated) EventType() string {
	return EventTypeVariantCreated
}

func (e VariantCreated) AggregateID() uuid.UUID {
	return e.TrackID
}

func (e VariantCreated) OccurredAt() time.Time {
	return e.CreatedAt
}
