package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/harborlight/careledger-backend/internal/logger"
	apperrors "github.com/harborlight/careledger-backend/internal/pkg/errors"
	"github.com/harborlight/careledger-backend/internal/repos"
	"github.com/harborlight/careledger-backend/internal/types"
)

// CarePlanInput carries the caller-supplied fields for a new version. The
// clinical payload is opaque and stored as-is.
type CarePlanInput struct {
	AssessmentDate *time.Time
	AssessedBy     string
	ApprovedBy     string
	StartDate      *time.Time
	ReviewDate     *time.Time
	Payload        json.RawMessage
}

// LifecycleResult is the outcome of a lifecycle operation. AuditWarning is
// set when the primary mutation succeeded but its audit entry could not be
// written; the mutation is never rolled back for that.
type LifecycleResult struct {
	Plan         *types.CarePlanVersion
	AuditWarning error
}

type CarePlanService interface {
	Create(ctx context.Context, clientID uuid.UUID, input CarePlanInput, actor string) (*LifecycleResult, error)
	Update(ctx context.Context, versionID uuid.UUID, input CarePlanInput, actor string) (*LifecycleResult, error)
	Restore(ctx context.Context, versionID, clientID uuid.UUID, actor string) (*LifecycleResult, error)
	Delete(ctx context.Context, versionID uuid.UUID, actor string) (*LifecycleResult, error)
	GetActive(ctx context.Context, clientID uuid.UUID) (*types.CarePlanVersion, error)
	GetHistory(ctx context.Context, clientID uuid.UUID, limit int) ([]*types.CarePlanVersion, error)
}

type carePlanService struct {
	db          *gorm.DB
	log         *logger.Logger
	clientRepo  repos.ClientRepo
	planRepo    repos.CarePlanRepo
	activityLog ActivityLogService
	locks       lockTable
}

func NewCarePlanService(db *gorm.DB, log *logger.Logger, clientRepo repos.ClientRepo, planRepo repos.CarePlanRepo, activityLog ActivityLogService) CarePlanService {
	serviceLog := log.With("service", "CarePlanService")
	return &carePlanService{
		db:          db,
		log:         serviceLog,
		clientRepo:  clientRepo,
		planRepo:    planRepo,
		activityLog: activityLog,
	}
}

// lockTable serializes lifecycle operations per client so two writers cannot
// both observe the same max version or leave two active rows behind.
type lockTable struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func (t *lockTable) forClient(id uuid.UUID) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.locks == nil {
		t.locks = make(map[uuid.UUID]*sync.Mutex)
	}
	l, ok := t.locks[id]
	if !ok {
		l = &sync.Mutex{}
		t.locks[id] = l
	}
	return l
}

func validateCarePlanInput(input CarePlanInput) error {
	if strings.TrimSpace(input.AssessedBy) == "" {
		return fmt.Errorf("%w: assessed_by is required", apperrors.ErrValidation)
	}
	return nil
}

func payloadOrEmpty(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(raw)
}

func (s *carePlanService) Create(ctx context.Context, clientID uuid.UUID, input CarePlanInput, actor string) (*LifecycleResult, error) {
	if clientID == uuid.Nil {
		return nil, fmt.Errorf("%w: client id is required", apperrors.ErrValidation)
	}
	if err := validateCarePlanInput(input); err != nil {
		return nil, err
	}

	lock := s.locks.forClient(clientID)
	lock.Lock()
	defer lock.Unlock()

	var plan *types.CarePlanVersion
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.clientRepo.Exists(ctx, tx, clientID)
		if err != nil {
			return fmt.Errorf("error checking client: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: client %s", apperrors.ErrNotFound, clientID)
		}

		if err := s.planRepo.RetireActiveByClientID(ctx, tx, clientID); err != nil {
			return fmt.Errorf("error retiring active care plan: %w", err)
		}
		max, err := s.planRepo.MaxVersionByClientID(ctx, tx, clientID)
		if err != nil {
			return fmt.Errorf("error computing next version: %w", err)
		}

		plan = &types.CarePlanVersion{
			ID:             uuid.New(),
			ClientID:       clientID,
			Version:        max + 1,
			Status:         types.CarePlanStatusActive,
			AssessmentDate: input.AssessmentDate,
			AssessedBy:     input.AssessedBy,
			ApprovedBy:     input.ApprovedBy,
			StartDate:      input.StartDate,
			ReviewDate:     input.ReviewDate,
			Payload:        payloadOrEmpty(input.Payload),
		}
		if _, err := s.planRepo.Create(ctx, tx, []*types.CarePlanVersion{plan}); err != nil {
			return fmt.Errorf("error persisting care plan: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return &LifecycleResult{
		Plan:         plan,
		AuditWarning: s.audit(ctx, clientID, "Care plan added", actor),
	}, nil
}

func (s *carePlanService) Update(ctx context.Context, versionID uuid.UUID, input CarePlanInput, actor string) (*LifecycleResult, error) {
	if err := validateCarePlanInput(input); err != nil {
		return nil, err
	}

	old, err := s.planRepo.GetByID(ctx, nil, versionID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, fmt.Errorf("%w: care plan version %s", apperrors.ErrNotFound, versionID)
	}

	lock := s.locks.forClient(old.ClientID)
	lock.Lock()
	defer lock.Unlock()

	// Caller-supplied review dates are honored on create only; an update
	// always stamps the current time.
	reviewDate := time.Now().UTC()

	var plan *types.CarePlanVersion
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.planRepo.GetByID(ctx, tx, versionID)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("%w: care plan version %s", apperrors.ErrNotFound, versionID)
		}

		// The caller is superseding this specific record; retire it directly,
		// then sweep any other stragglers so the single-active invariant
		// holds even when the superseded version was no longer the active
		// one.
		if err := s.planRepo.RetireByID(ctx, tx, versionID); err != nil {
			return fmt.Errorf("error retiring superseded care plan: %w", err)
		}
		if err := s.planRepo.RetireActiveByClientID(ctx, tx, current.ClientID); err != nil {
			return fmt.Errorf("error retiring active care plan: %w", err)
		}
		max, err := s.planRepo.MaxVersionByClientID(ctx, tx, current.ClientID)
		if err != nil {
			return fmt.Errorf("error computing next version: %w", err)
		}

		plan = &types.CarePlanVersion{
			ID:             uuid.New(),
			ClientID:       current.ClientID,
			Version:        max + 1,
			Status:         types.CarePlanStatusActive,
			AssessmentDate: input.AssessmentDate,
			AssessedBy:     input.AssessedBy,
			ApprovedBy:     input.ApprovedBy,
			StartDate:      input.StartDate,
			ReviewDate:     &reviewDate,
			Payload:        payloadOrEmpty(input.Payload),
		}
		if _, err := s.planRepo.Create(ctx, tx, []*types.CarePlanVersion{plan}); err != nil {
			return fmt.Errorf("error persisting care plan: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return &LifecycleResult{
		Plan:         plan,
		AuditWarning: s.audit(ctx, plan.ClientID, "Care plan updated", actor),
	}, nil
}

func (s *carePlanService) Restore(ctx context.Context, versionID, clientID uuid.UUID, actor string) (*LifecycleResult, error) {
	old, err := s.planRepo.GetByID(ctx, nil, versionID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, fmt.Errorf("%w: care plan version %s", apperrors.ErrNotFound, versionID)
	}
	if old.ClientID != clientID {
		return nil, fmt.Errorf("%w: care plan version %s does not belong to client %s", apperrors.ErrForbidden, versionID, clientID)
	}

	lock := s.locks.forClient(clientID)
	lock.Lock()
	defer lock.Unlock()

	reviewDate := time.Now().UTC()

	var plan *types.CarePlanVersion
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.planRepo.RetireActiveByClientID(ctx, tx, clientID); err != nil {
			return fmt.Errorf("error retiring active care plan: %w", err)
		}
		max, err := s.planRepo.MaxVersionByClientID(ctx, tx, clientID)
		if err != nil {
			return fmt.Errorf("error computing next version: %w", err)
		}

		// A restore is a clone, not a pointer back into history: fresh id,
		// fresh timestamps, next version number. The restored row itself is
		// left untouched.
		plan = &types.CarePlanVersion{
			ID:             uuid.New(),
			ClientID:       clientID,
			Version:        max + 1,
			Status:         types.CarePlanStatusActive,
			AssessmentDate: old.AssessmentDate,
			AssessedBy:     old.AssessedBy,
			ApprovedBy:     old.ApprovedBy,
			StartDate:      old.StartDate,
			ReviewDate:     &reviewDate,
			Payload:        append(datatypes.JSON(nil), old.Payload...),
		}
		if _, err := s.planRepo.Create(ctx, tx, []*types.CarePlanVersion{plan}); err != nil {
			return fmt.Errorf("error persisting care plan: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	action := fmt.Sprintf("Care plan restored from version %d", old.Version)
	return &LifecycleResult{
		Plan:         plan,
		AuditWarning: s.audit(ctx, clientID, action, actor),
	}, nil
}

func (s *carePlanService) Delete(ctx context.Context, versionID uuid.UUID, actor string) (*LifecycleResult, error) {
	old, err := s.planRepo.GetByID(ctx, nil, versionID)
	if err != nil {
		return nil, err
	}
	if old == nil {
		return nil, fmt.Errorf("%w: care plan version %s", apperrors.ErrNotFound, versionID)
	}

	lock := s.locks.forClient(old.ClientID)
	lock.Lock()
	defer lock.Unlock()

	// Dependent rows keyed on the version id go with it via the FK cascade.
	if err := s.planRepo.FullDeleteByID(ctx, nil, versionID); err != nil {
		return nil, err
	}

	return &LifecycleResult{
		Plan:         old,
		AuditWarning: s.audit(ctx, old.ClientID, "Care plan deleted", actor),
	}, nil
}

func (s *carePlanService) GetActive(ctx context.Context, clientID uuid.UUID) (*types.CarePlanVersion, error) {
	// Always a query against the store; the active version is never cached.
	return s.planRepo.GetActiveByClientID(ctx, nil, clientID)
}

func (s *carePlanService) GetHistory(ctx context.Context, clientID uuid.UUID, limit int) ([]*types.CarePlanVersion, error) {
	return s.planRepo.GetByClientID(ctx, nil, clientID, limit)
}

// audit runs after the primary mutation has committed. Its failure is
// surfaced as a warning on the result, never as a failure of the operation.
func (s *carePlanService) audit(ctx context.Context, clientID uuid.UUID, action, actor string) error {
	if s.activityLog == nil {
		return nil
	}
	if _, err := s.activityLog.Record(ctx, clientID, action, actor); err != nil {
		s.log.Error("Audit write failed after successful mutation", "error", err, "client_id", clientID, "action", action)
		return &apperrors.AuditWriteError{Action: action, Err: err}
	}
	return nil
}
