package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	apperrors "github.com/harborlight/careledger-backend/internal/pkg/errors"
	"github.com/harborlight/careledger-backend/internal/repos"
	"github.com/harborlight/careledger-backend/internal/repos/testutil"
	"github.com/harborlight/careledger-backend/internal/types"
)

func newCarePlanFixture(t *testing.T) (CarePlanService, ActivityLogService, *gorm.DB, *types.Client) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)

	clientRepo := repos.NewClientRepo(db, log)
	planRepo := repos.NewCarePlanRepo(db, log)
	logRepo := repos.NewActivityLogRepo(db, log)

	activityLog := NewActivityLogService(db, log, logRepo, nil, nil)
	planService := NewCarePlanService(db, log, clientRepo, planRepo, activityLog)

	client := &types.Client{
		ID:        uuid.New(),
		FirstName: "Scenario",
		LastName:  "Client",
		Status:    "active",
		Profile:   datatypes.JSON([]byte("{}")),
	}
	if err := db.Create(client).Error; err != nil {
		t.Fatalf("seed client: %v", err)
	}
	t.Cleanup(func() {
		db.Where("client_id = ?", client.ID).Delete(&types.ActivityLogEntry{})
		db.Where("client_id = ?", client.ID).Delete(&types.CarePlanVersion{})
		db.Unscoped().Where("id = ?", client.ID).Delete(&types.Client{})
	})
	return planService, activityLog, db, client
}

func activeCount(t *testing.T, db *gorm.DB, clientID uuid.UUID) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&types.CarePlanVersion{}).
		Where("client_id = ? AND status = ?", clientID, types.CarePlanStatusActive).
		Count(&count).Error; err != nil {
		t.Fatalf("count active: %v", err)
	}
	return count
}

func TestCarePlanLifecycleScenario(t *testing.T) {
	planService, activityLog, db, client := newCarePlanFixture(t)
	ctx := context.Background()

	// create -> version 1 active.
	supplied := time.Now().UTC().Add(24 * time.Hour)
	created, err := planService.Create(ctx, client.ID, CarePlanInput{
		AssessedBy: "Jane",
		ReviewDate: &supplied,
		Payload:    json.RawMessage(`{"goals": {"mobility": "improve"}}`),
	}, "Jane")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	v1 := created.Plan
	if v1.Version != 1 || v1.Status != types.CarePlanStatusActive {
		t.Fatalf("expected version 1 active, got %+v", v1)
	}
	if v1.ReviewDate == nil || !v1.ReviewDate.Equal(supplied) {
		t.Fatalf("create must honor the supplied review date, got %v", v1.ReviewDate)
	}
	if created.AuditWarning != nil {
		t.Fatalf("unexpected audit warning: %v", created.AuditWarning)
	}

	// update -> version 2 active, version 1 expired, review date forced.
	updated, err := planService.Update(ctx, v1.ID, CarePlanInput{
		AssessedBy: "John",
		ReviewDate: &supplied,
		Payload:    json.RawMessage(`{"goals": {"mobility": "maintain"}}`),
	}, "John")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	v2 := updated.Plan
	if v2.Version != 2 || v2.Status != types.CarePlanStatusActive {
		t.Fatalf("expected version 2 active, got %+v", v2)
	}
	if v2.ReviewDate == nil || v2.ReviewDate.Equal(supplied) {
		t.Fatalf("update must override the supplied review date, got %v", v2.ReviewDate)
	}
	if diff := time.Since(*v2.ReviewDate); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("update must stamp the review date with the current time, got %v (%v off)", v2.ReviewDate, diff)
	}

	old1, err := planService.GetHistory(ctx, client.ID, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(old1) != 2 || old1[0].Version != 2 || old1[1].Version != 1 {
		t.Fatalf("expected [2,1] history, got %+v", old1)
	}
	if old1[1].Status != types.CarePlanStatusExpired {
		t.Fatalf("expected version 1 expired after update, got %q", old1[1].Status)
	}

	// restore v1 -> version 3 active clone, 1 and 2 both expired.
	restored, err := planService.Restore(ctx, v1.ID, client.ID, "Jane")
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	v3 := restored.Plan
	if v3.Version != 3 || v3.Status != types.CarePlanStatusActive {
		t.Fatalf("expected version 3 active, got %+v", v3)
	}
	if v3.ID == v1.ID {
		t.Fatalf("restore must mint a new id")
	}
	if string(v3.Payload) != string(v1.Payload) {
		t.Fatalf("restore must clone the payload: got %s want %s", v3.Payload, v1.Payload)
	}
	if got := activeCount(t, db, client.ID); got != 1 {
		t.Fatalf("invariant violated: %d active versions", got)
	}

	// The restored-from row is untouched.
	history, err := planService.GetHistory(ctx, client.ID, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	for _, row := range history {
		if row.Version != 3 && row.Status != types.CarePlanStatusExpired {
			t.Fatalf("expected only version 3 active, got %+v", row)
		}
	}

	// Audit trail: one entry per operation, newest first.
	entries, total, err := activityLog.List(ctx, client.ID, repos.ActivityLogFilter{}, 1, 10)
	if err != nil {
		t.Fatalf("List activity: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 audit entries, got %d", total)
	}
	if !strings.Contains(entries[0].Action, "restored from version 1") {
		t.Fatalf("expected restore audit entry first, got %q", entries[0].Action)
	}
	if entries[1].Action != "Care plan updated" || entries[2].Action != "Care plan added" {
		t.Fatalf("unexpected audit order: %q, %q", entries[1].Action, entries[2].Action)
	}
	if entries[2].Actor != "Jane" {
		t.Fatalf("expected actor attribution, got %q", entries[2].Actor)
	}

	// GetActive is a live query.
	active, err := planService.GetActive(ctx, client.ID)
	if err != nil || active == nil || active.ID != v3.ID {
		t.Fatalf("GetActive: err=%v active=%+v", err, active)
	}

	// delete v3 -> gone, no active plan left.
	deleted, err := planService.Delete(ctx, v3.ID, "Jane")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted.Plan.ID != v3.ID {
		t.Fatalf("expected deleted plan v3, got %+v", deleted.Plan)
	}
	active, err = planService.GetActive(ctx, client.ID)
	if err != nil || active != nil {
		t.Fatalf("expected no active plan after delete: err=%v active=%+v", err, active)
	}
}

func TestCarePlanErrorKinds(t *testing.T) {
	planService, _, _, client := newCarePlanFixture(t)
	ctx := context.Background()

	// Missing required field.
	if _, err := planService.Create(ctx, client.ID, CarePlanInput{}, ""); !errors.Is(err, apperrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	// Unknown client.
	if _, err := planService.Create(ctx, uuid.New(), CarePlanInput{AssessedBy: "Jane"}, ""); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found for unknown client, got %v", err)
	}

	// Unknown version.
	if _, err := planService.Update(ctx, uuid.New(), CarePlanInput{AssessedBy: "Jane"}, ""); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found for unknown version, got %v", err)
	}
	if _, err := planService.Delete(ctx, uuid.New(), ""); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found for unknown version, got %v", err)
	}

	// Ownership check on restore.
	created, err := planService.Create(ctx, client.ID, CarePlanInput{AssessedBy: "Jane"}, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := planService.Restore(ctx, created.Plan.ID, uuid.New(), ""); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("expected forbidden for cross-client restore, got %v", err)
	}
}

func TestCarePlanConcurrentUpdatesKeepInvariant(t *testing.T) {
	planService, _, db, client := newCarePlanFixture(t)
	ctx := context.Background()

	created, err := planService.Create(ctx, client.ID, CarePlanInput{AssessedBy: "Jane"}, "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			active, err := planService.GetActive(ctx, client.ID)
			if err != nil || active == nil {
				return
			}
			_, _ = planService.Update(ctx, active.ID, CarePlanInput{
				AssessedBy: fmt.Sprintf("worker-%d", n),
			}, fmt.Sprintf("worker-%d", n))
		}(i)
	}
	wg.Wait()

	if got := activeCount(t, db, client.ID); got != 1 {
		t.Fatalf("invariant violated after concurrent updates: %d active versions", got)
	}

	history, err := planService.GetHistory(ctx, client.ID, 0)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	seen := map[int]bool{}
	for _, row := range history {
		if seen[row.Version] {
			t.Fatalf("duplicate version %d in lineage", row.Version)
		}
		seen[row.Version] = true
	}
	if history[len(history)-1].ID != created.Plan.ID {
		t.Fatalf("expected original version at the bottom of the lineage")
	}
}
