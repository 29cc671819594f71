package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	CarePlanStatusDraft       = "draft"
	CarePlanStatusActive      = "active"
	CarePlanStatusUnderReview = "under-review"
	CarePlanStatusExpired     = "expired"
)

// CarePlanVersion is one immutable snapshot in a client's care-plan lineage.
// Rows are never edited in place; the only permitted in-place transition is
// active -> expired when a version is superseded.
type CarePlanVersion struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ClientID       uuid.UUID      `gorm:"type:uuid;not null;index;uniqueIndex:uq_care_plan_client_version" json:"client_id"`
	Client         *Client        `gorm:"constraint:OnDelete:CASCADE;foreignKey:ClientID;references:ID" json:"client,omitempty"`
	Version        int            `gorm:"column:version;not null;uniqueIndex:uq_care_plan_client_version" json:"version"`
	Status         string         `gorm:"column:status;not null;index" json:"status"`
	AssessmentDate *time.Time     `gorm:"column:assessment_date" json:"assessment_date,omitempty"`
	AssessedBy     string         `gorm:"column:assessed_by;not null" json:"assessed_by"`
	ApprovedBy     string         `gorm:"column:approved_by" json:"approved_by"`
	StartDate      *time.Time     `gorm:"column:start_date" json:"start_date,omitempty"`
	ReviewDate     *time.Time     `gorm:"column:review_date" json:"review_date,omitempty"`
	Payload        datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
}

func (CarePlanVersion) TableName() string { return "care_plan_version" }
