package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/harborlight/careledger-backend/internal/logger"
	"github.com/harborlight/careledger-backend/internal/types"
)

type CarePlanRepo interface {
	Create(ctx context.Context, tx *gorm.DB, plans []*types.CarePlanVersion) ([]*types.CarePlanVersion, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CarePlanVersion, error)
	GetActiveByClientID(ctx context.Context, tx *gorm.DB, clientID uuid.UUID) (*types.CarePlanVersion, error)
	GetByClientID(ctx context.Context, tx *gorm.DB, clientID uuid.UUID, limit int) ([]*types.CarePlanVersion, error)
	MaxVersionByClientID(ctx context.Context, tx *gorm.DB, clientID uuid.UUID) (int, error)
	RetireActiveByClientID(ctx context.Context, tx *gorm.DB, clientID uuid.UUID) error
	RetireByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	FullDeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type carePlanRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCarePlanRepo(db *gorm.DB, baseLog *logger.Logger) CarePlanRepo {
	repoLog := baseLog.With("repo", "CarePlanRepo")
	return &carePlanRepo{db: db, log: repoLog}
}

func (r *carePlanRepo) Create(ctx context.Context, tx *gorm.DB, plans []*types.CarePlanVersion) ([]*types.CarePlanVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if len(plans) == 0 {
		return []*types.CarePlanVersion{}, nil
	}

	if err := transaction.WithContext(ctx).Create(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *carePlanRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.CarePlanVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil {
		return nil, nil
	}

	var result types.CarePlanVersion
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *carePlanRepo) GetActiveByClientID(ctx context.Context, tx *gorm.DB, clientID uuid.UUID) (*types.CarePlanVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if clientID == uuid.Nil {
		return nil, nil
	}

	var result types.CarePlanVersion
	if err := transaction.WithContext(ctx).
		Where("client_id = ? AND status = ?", clientID, types.CarePlanStatusActive).
		Order("version DESC").
		First(&result).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *carePlanRepo) GetByClientID(ctx context.Context, tx *gorm.DB, clientID uuid.UUID, limit int) ([]*types.CarePlanVersion, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.CarePlanVersion
	if clientID == uuid.Nil {
		return results, nil
	}

	query := transaction.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("version DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// MaxVersionByClientID returns 0 for an empty lineage; the next version is
// always max+1. Callers must run this inside the same transaction as the
// retirement sweep so two writers cannot both observe the same maximum.
func (r *carePlanRepo) MaxVersionByClientID(ctx context.Context, tx *gorm.DB, clientID uuid.UUID) (int, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var max int
	if err := transaction.WithContext(ctx).
		Model(&types.CarePlanVersion{}).
		Where("client_id = ?", clientID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&max).Error; err != nil {
		return 0, err
	}
	return max, nil
}

// RetireActiveByClientID expires every active version for the client. Zero
// matches is not an error, and more than one match (a historically broken
// lineage) is swept in full so the invariant is re-established.
func (r *carePlanRepo) RetireActiveByClientID(ctx context.Context, tx *gorm.DB, clientID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if clientID == uuid.Nil {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Model(&types.CarePlanVersion{}).
		Where("client_id = ? AND status = ?", clientID, types.CarePlanStatusActive).
		Update("status", types.CarePlanStatusExpired).Error; err != nil {
		return err
	}
	return nil
}

func (r *carePlanRepo) RetireByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Model(&types.CarePlanVersion{}).
		Where("id = ?", id).
		Update("status", types.CarePlanStatusExpired).Error; err != nil {
		return err
	}
	return nil
}

func (r *carePlanRepo) FullDeleteByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	if id == uuid.Nil {
		return nil
	}

	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		Delete(&types.CarePlanVersion{}).Error; err != nil {
		return err
	}
	return nil
}
