package types

import (
	"time"

	"github.com/google/uuid"
)

// ActorSystem is recorded when no actor identity was supplied.
const ActorSystem = "System"

// ActivityLogEntry is an append-only audit record. Entries are never updated;
// deletion exists only as an administrative override.
type ActivityLogEntry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID  uuid.UUID `gorm:"type:uuid;not null;index" json:"client_id"`
	Client    *Client   `gorm:"constraint:OnDelete:CASCADE;foreignKey:ClientID;references:ID" json:"client,omitempty"`
	Timestamp time.Time `gorm:"column:timestamp;not null;index" json:"timestamp"`
	Action    string    `gorm:"column:action;not null" json:"action"`
	Actor     string    `gorm:"column:actor;not null;default:'System'" json:"actor"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (ActivityLogEntry) TableName() string { return "activity_log_entry" }
