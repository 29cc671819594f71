package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	redisclient "github.com/harborlight/careledger-backend/internal/clients/redis"
	apperrors "github.com/harborlight/careledger-backend/internal/pkg/errors"
	"github.com/harborlight/careledger-backend/internal/logger"
	"github.com/harborlight/careledger-backend/internal/repos"
	"github.com/harborlight/careledger-backend/internal/sse"
	"github.com/harborlight/careledger-backend/internal/types"
)

type ActivityLogService interface {
	// Record appends one immutable entry. Entries are never updated after
	// this; the write is the audit trail.
	Record(ctx context.Context, clientID uuid.UUID, action, actor string) (*types.ActivityLogEntry, error)
	List(ctx context.Context, clientID uuid.UUID, filter repos.ActivityLogFilter, page, pageSize int) ([]*types.ActivityLogEntry, int64, error)
	// Delete is an administrative override only; nothing in the normal
	// lifecycle removes log entries.
	Delete(ctx context.Context, entryID uuid.UUID) error
}

type activityLogService struct {
	db      *gorm.DB
	log     *logger.Logger
	logRepo repos.ActivityLogRepo
	hub     *sse.FeedHub
	bus     redisclient.ActivityBus
}

func NewActivityLogService(db *gorm.DB, log *logger.Logger, logRepo repos.ActivityLogRepo, hub *sse.FeedHub, bus redisclient.ActivityBus) ActivityLogService {
	serviceLog := log.With("service", "ActivityLogService")
	return &activityLogService{
		db:      db,
		log:     serviceLog,
		logRepo: logRepo,
		hub:     hub,
		bus:     bus,
	}
}

func (s *activityLogService) Record(ctx context.Context, clientID uuid.UUID, action, actor string) (*types.ActivityLogEntry, error) {
	if clientID == uuid.Nil {
		return nil, fmt.Errorf("%w: client id is required", apperrors.ErrValidation)
	}
	if strings.TrimSpace(action) == "" {
		return nil, fmt.Errorf("%w: action is required", apperrors.ErrValidation)
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		actor = types.ActorSystem
	}

	entry := &types.ActivityLogEntry{
		ID:        uuid.New(),
		ClientID:  clientID,
		Timestamp: time.Now().UTC(),
		Action:    action,
		Actor:     actor,
	}
	created, err := s.logRepo.Create(ctx, nil, []*types.ActivityLogEntry{entry})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, created[0])
	return created[0], nil
}

// publish fans the new entry out to feed subscribers. Failures are logged and
// dropped; the audit row is already durable at this point.
func (s *activityLogService) publish(ctx context.Context, entry *types.ActivityLogEntry) {
	msg := sse.FeedMessage{
		Channel: sse.ClientChannel(entry.ClientID),
		Event:   sse.FeedEventActivityRecorded,
		Data:    entry,
	}
	if s.bus != nil {
		// Own messages come back through the forwarder, which feeds the hub.
		if err := s.bus.Publish(ctx, msg); err != nil {
			s.log.Warn("Failed to publish activity entry to bus", "error", err, "client_id", entry.ClientID)
			if s.hub != nil {
				s.hub.Broadcast(msg)
			}
		}
		return
	}
	if s.hub != nil {
		s.hub.Broadcast(msg)
	}
}

func (s *activityLogService) List(ctx context.Context, clientID uuid.UUID, filter repos.ActivityLogFilter, page, pageSize int) ([]*types.ActivityLogEntry, int64, error) {
	if clientID == uuid.Nil {
		return nil, 0, fmt.Errorf("%w: client id is required", apperrors.ErrValidation)
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize
	return s.logRepo.ListByClientID(ctx, nil, clientID, filter, offset, pageSize)
}

func (s *activityLogService) Delete(ctx context.Context, entryID uuid.UUID) error {
	found, err := s.logRepo.GetByIDs(ctx, nil, []uuid.UUID{entryID})
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return fmt.Errorf("%w: activity log entry %s", apperrors.ErrNotFound, entryID)
	}
	return s.logRepo.FullDeleteByIDs(ctx, nil, []uuid.UUID{entryID})
}
