package repos

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/harborlight/careledger-backend/internal/logger"
	"github.com/harborlight/careledger-backend/internal/types"
)

// ActivityLogFilter narrows a client's activity feed. Date matches the
// calendar day [date, date+24h) in the date's own location; Actor is a
// case-insensitive substring match.
type ActivityLogFilter struct {
	Date  *time.Time
	Actor string
}

type ActivityLogRepo interface {
	Create(ctx context.Context, tx *gorm.DB, entries []*types.ActivityLogEntry) ([]*types.ActivityLogEntry, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.ActivityLogEntry, error)
	ListByClientID(ctx context.Context, tx *gorm.DB, clientID uuid.UUID, filter ActivityLogFilter, offset, limit int) ([]*types.ActivityLogEntry, int64, error)
	FullDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
}

type activityLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewActivityLogRepo(db *gorm.DB, baseLog *logger.Logger) ActivityLogRepo {
	repoLog := baseLog.With("repo", "ActivityLogRepo")
	return &activityLogRepo{db: db, log: repoLog}
}

func (r *activityLogRepo) Create(ctx context.Context, tx *gorm.DB, entries []*types.ActivityLogEntry) ([]*types.ActivityLogEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(entries) == 0 {
		return []*types.ActivityLogEntry{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *activityLogRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) ([]*types.ActivityLogEntry, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ActivityLogEntry
	if len(ids) == 0 {
		return results, nil
	}

	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *activityLogRepo) ListByClientID(ctx context.Context, tx *gorm.DB, clientID uuid.UUID, filter ActivityLogFilter, offset, limit int) ([]*types.ActivityLogEntry, int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ActivityLogEntry
	if clientID == uuid.Nil {
		return results, 0, nil
	}

	query := transaction.WithContext(ctx).
		Model(&types.ActivityLogEntry{}).
		Where("client_id = ?", clientID)
	if filter.Date != nil {
		dayStart := time.Date(filter.Date.Year(), filter.Date.Month(), filter.Date.Day(), 0, 0, 0, 0, filter.Date.Location())
		dayEnd := dayStart.Add(24 * time.Hour)
		query = query.Where("timestamp >= ? AND timestamp < ?", dayStart, dayEnd)
	}
	if actor := strings.TrimSpace(filter.Actor); actor != "" {
		query = query.Where("LOWER(actor) LIKE ?", "%"+strings.ToLower(actor)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("timestamp DESC")
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&results).Error; err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

func (r *activityLogRepo) FullDeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(ids) == 0 {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&types.ActivityLogEntry{}).Error; err != nil {
		return err
	}
	return nil
}
