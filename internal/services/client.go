package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/harborlight/careledger-backend/internal/logger"
	apperrors "github.com/harborlight/careledger-backend/internal/pkg/errors"
	"github.com/harborlight/careledger-backend/internal/repos"
	"github.com/harborlight/careledger-backend/internal/types"
)

type ClientInput struct {
	FirstName   string
	LastName    string
	DateOfBirth *time.Time
	Profile     json.RawMessage
}

// ProfileUpdateResult mirrors LifecycleResult: AuditWarning reports a failed
// audit write without failing the update itself.
type ProfileUpdateResult struct {
	Client       *types.Client
	AuditWarning error
}

type ClientService interface {
	Create(ctx context.Context, input ClientInput, actor string) (*types.Client, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Client, error)
	List(ctx context.Context) ([]*types.Client, error)
	// UpdateProfile shallow-merges a patch into the client's sectioned
	// profile document and audits the change with the single-section
	// summary from the change detector.
	UpdateProfile(ctx context.Context, id uuid.UUID, patch json.RawMessage, actor string) (*ProfileUpdateResult, error)
	// Delete soft-deletes the client record. The care-plan lineage and
	// audit trail are kept.
	Delete(ctx context.Context, id uuid.UUID, actor string) error
}

type clientService struct {
	db          *gorm.DB
	log         *logger.Logger
	clientRepo  repos.ClientRepo
	activityLog ActivityLogService
}

func NewClientService(db *gorm.DB, log *logger.Logger, clientRepo repos.ClientRepo, activityLog ActivityLogService) ClientService {
	serviceLog := log.With("service", "ClientService")
	return &clientService{
		db:          db,
		log:         serviceLog,
		clientRepo:  clientRepo,
		activityLog: activityLog,
	}
}

func (s *clientService) Create(ctx context.Context, input ClientInput, actor string) (*types.Client, error) {
	if strings.TrimSpace(input.FirstName) == "" || strings.TrimSpace(input.LastName) == "" {
		return nil, fmt.Errorf("%w: first_name and last_name are required", apperrors.ErrValidation)
	}

	profile := input.Profile
	if len(profile) == 0 {
		profile = json.RawMessage("{}")
	}
	client := &types.Client{
		ID:          uuid.New(),
		FirstName:   input.FirstName,
		LastName:    input.LastName,
		DateOfBirth: input.DateOfBirth,
		Status:      "active",
		Profile:     datatypes.JSON(profile),
	}
	created, err := s.clientRepo.Create(ctx, nil, []*types.Client{client})
	if err != nil {
		return nil, err
	}

	if _, err := s.activityLog.Record(ctx, client.ID, "Client record created", actor); err != nil {
		s.log.Warn("Audit write failed for client creation", "error", err, "client_id", client.ID)
	}
	return created[0], nil
}

func (s *clientService) Get(ctx context.Context, id uuid.UUID) (*types.Client, error) {
	found, err := s.clientRepo.GetByIDs(ctx, nil, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%w: client %s", apperrors.ErrNotFound, id)
	}
	return found[0], nil
}

func (s *clientService) List(ctx context.Context) ([]*types.Client, error) {
	return s.clientRepo.List(ctx, nil)
}

func (s *clientService) Delete(ctx context.Context, id uuid.UUID, actor string) error {
	client, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.clientRepo.SoftDeleteByIDs(ctx, nil, []uuid.UUID{client.ID}); err != nil {
		return err
	}
	if _, err := s.activityLog.Record(ctx, client.ID, "Client record deleted", actor); err != nil {
		s.log.Warn("Audit write failed for client deletion", "error", err, "client_id", client.ID)
	}
	return nil
}

func (s *clientService) UpdateProfile(ctx context.Context, id uuid.UUID, patch json.RawMessage, actor string) (*ProfileUpdateResult, error) {
	if len(patch) == 0 {
		return nil, fmt.Errorf("%w: empty profile patch", apperrors.ErrValidation)
	}
	var patchDoc map[string]json.RawMessage
	if err := json.Unmarshal(patch, &patchDoc); err != nil {
		return nil, fmt.Errorf("%w: profile patch must be a JSON object", apperrors.ErrValidation)
	}

	client, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	oldProfile := []byte(client.Profile)

	merged := map[string]json.RawMessage{}
	if len(oldProfile) > 0 {
		_ = json.Unmarshal(oldProfile, &merged)
	}
	for key, val := range patchDoc {
		merged[key] = val
	}
	newProfile, err := json.Marshal(merged)
	if err != nil {
		return nil, err
	}

	if err := s.clientRepo.UpdateProfile(ctx, nil, id, newProfile); err != nil {
		return nil, err
	}
	client.Profile = datatypes.JSON(newProfile)

	// Summarize against the patch, not the merged result: the first section
	// the caller actually changed is the one reported.
	action := DescribeChange(oldProfile, patch, "client record")
	result := &ProfileUpdateResult{Client: client}
	if _, err := s.activityLog.Record(ctx, id, action, actor); err != nil {
		s.log.Error("Audit write failed after profile update", "error", err, "client_id", id)
		result.AuditWarning = &apperrors.AuditWriteError{Action: action, Err: err}
	}
	return result, nil
}
