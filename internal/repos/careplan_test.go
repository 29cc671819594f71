package repos

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/harborlight/careledger-backend/internal/repos/testutil"
	"github.com/harborlight/careledger-backend/internal/types"
)

func seedClient(t *testing.T, tx *gorm.DB) *types.Client {
	t.Helper()
	client := &types.Client{
		ID:        uuid.New(),
		FirstName: "Test",
		LastName:  "Client",
		Status:    "active",
		Profile:   datatypes.JSON([]byte("{}")),
	}
	if err := tx.Create(client).Error; err != nil {
		t.Fatalf("seed client: %v", err)
	}
	return client
}

func TestCarePlanRepoLineage(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewCarePlanRepo(db, testutil.Logger(t))

	client := seedClient(t, tx)

	max, err := repo.MaxVersionByClientID(ctx, tx, client.ID)
	if err != nil {
		t.Fatalf("MaxVersionByClientID empty lineage: %v", err)
	}
	if max != 0 {
		t.Fatalf("expected 0 for empty lineage, got %d", max)
	}

	v1 := &types.CarePlanVersion{
		ID:         uuid.New(),
		ClientID:   client.ID,
		Version:    1,
		Status:     types.CarePlanStatusExpired,
		AssessedBy: "Jane",
		Payload:    datatypes.JSON([]byte(`{"v":1}`)),
	}
	v2 := &types.CarePlanVersion{
		ID:         uuid.New(),
		ClientID:   client.ID,
		Version:    2,
		Status:     types.CarePlanStatusActive,
		AssessedBy: "Jane",
		Payload:    datatypes.JSON([]byte(`{"v":2}`)),
	}
	if _, err := repo.Create(ctx, tx, []*types.CarePlanVersion{v1, v2}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	max, err = repo.MaxVersionByClientID(ctx, tx, client.ID)
	if err != nil || max != 2 {
		t.Fatalf("MaxVersionByClientID: err=%v max=%d", err, max)
	}

	active, err := repo.GetActiveByClientID(ctx, tx, client.ID)
	if err != nil {
		t.Fatalf("GetActiveByClientID: %v", err)
	}
	if active == nil || active.ID != v2.ID {
		t.Fatalf("expected v2 active, got %+v", active)
	}

	history, err := repo.GetByClientID(ctx, tx, client.ID, 0)
	if err != nil {
		t.Fatalf("GetByClientID: %v", err)
	}
	if len(history) != 2 || history[0].Version != 2 || history[1].Version != 1 {
		t.Fatalf("expected version-desc history, got %+v", history)
	}

	limited, err := repo.GetByClientID(ctx, tx, client.ID, 1)
	if err != nil || len(limited) != 1 || limited[0].Version != 2 {
		t.Fatalf("expected limit to keep the newest version: err=%v got=%+v", err, limited)
	}
}

func TestCarePlanRepoRetireSweepsAllActive(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewCarePlanRepo(db, testutil.Logger(t))

	client := seedClient(t, tx)

	// Historically broken lineage: two simultaneously active versions.
	broken := []*types.CarePlanVersion{
		{ID: uuid.New(), ClientID: client.ID, Version: 1, Status: types.CarePlanStatusActive, AssessedBy: "Jane", Payload: datatypes.JSON([]byte("{}"))},
		{ID: uuid.New(), ClientID: client.ID, Version: 2, Status: types.CarePlanStatusActive, AssessedBy: "Jane", Payload: datatypes.JSON([]byte("{}"))},
	}
	if _, err := repo.Create(ctx, tx, broken); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Sweeping with zero active rows elsewhere must not error.
	if err := repo.RetireActiveByClientID(ctx, tx, uuid.New()); err != nil {
		t.Fatalf("RetireActiveByClientID with no matches: %v", err)
	}

	if err := repo.RetireActiveByClientID(ctx, tx, client.ID); err != nil {
		t.Fatalf("RetireActiveByClientID: %v", err)
	}
	active, err := repo.GetActiveByClientID(ctx, tx, client.ID)
	if err != nil {
		t.Fatalf("GetActiveByClientID: %v", err)
	}
	if active != nil {
		t.Fatalf("expected no active version after sweep, got %+v", active)
	}

	rows, err := repo.GetByClientID(ctx, tx, client.ID, 0)
	if err != nil {
		t.Fatalf("GetByClientID: %v", err)
	}
	for _, row := range rows {
		if row.Status != types.CarePlanStatusExpired {
			t.Fatalf("expected all rows expired, got %+v", row)
		}
	}
}

func TestCarePlanRepoRetireAndDeleteByID(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewCarePlanRepo(db, testutil.Logger(t))

	client := seedClient(t, tx)
	plan := &types.CarePlanVersion{
		ID:         uuid.New(),
		ClientID:   client.ID,
		Version:    1,
		Status:     types.CarePlanStatusActive,
		AssessedBy: "Jane",
		Payload:    datatypes.JSON([]byte("{}")),
	}
	if _, err := repo.Create(ctx, tx, []*types.CarePlanVersion{plan}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.RetireByID(ctx, tx, plan.ID); err != nil {
		t.Fatalf("RetireByID: %v", err)
	}
	got, err := repo.GetByID(ctx, tx, plan.ID)
	if err != nil || got == nil {
		t.Fatalf("GetByID: err=%v got=%v", err, got)
	}
	if got.Status != types.CarePlanStatusExpired {
		t.Fatalf("expected expired, got %q", got.Status)
	}

	if err := repo.FullDeleteByID(ctx, tx, plan.ID); err != nil {
		t.Fatalf("FullDeleteByID: %v", err)
	}
	got, err = repo.GetByID(ctx, tx, plan.ID)
	if err != nil {
		t.Fatalf("GetByID after delete: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil after delete, got %+v", got)
	}

	// Missing ids read back as nil, not as an error.
	got, err = repo.GetByID(ctx, tx, uuid.New())
	if err != nil || got != nil {
		t.Fatalf("expected nil,nil for unknown id: err=%v got=%v", err, got)
	}
}

func TestCarePlanRepoDuplicateVersionRejected(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewCarePlanRepo(db, testutil.Logger(t))

	client := seedClient(t, tx)
	first := &types.CarePlanVersion{ID: uuid.New(), ClientID: client.ID, Version: 1, Status: types.CarePlanStatusActive, AssessedBy: "Jane", Payload: datatypes.JSON([]byte("{}"))}
	if _, err := repo.Create(ctx, tx, []*types.CarePlanVersion{first}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// The unique (client_id, version) index is the last line of defense
	// against two writers minting the same version number.
	dup := &types.CarePlanVersion{ID: uuid.New(), ClientID: client.ID, Version: 1, Status: types.CarePlanStatusExpired, AssessedBy: "Jane", Payload: datatypes.JSON([]byte("{}"))}
	if _, err := repo.Create(ctx, tx, []*types.CarePlanVersion{dup}); err == nil {
		t.Fatalf("expected duplicate version insert to fail")
	}
}
