package db

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/harborlight/careledger-backend/internal/logger"
	"github.com/harborlight/careledger-backend/internal/types"
)

// The sqlite path has to be able to create its own schema: the models carry
// no database-specific column defaults, so AutoMigrate must succeed on a
// fresh file and rows must round-trip with ids and timestamps stamped in
// code.
func TestSqliteStoreMigratesAndWrites(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", t.TempDir()+"/careledger.db")

	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	store, err := NewStoreService(log)
	if err != nil {
		t.Fatalf("NewStoreService: %v", err)
	}
	if err := store.AutoMigrateAll(); err != nil {
		t.Fatalf("AutoMigrateAll: %v", err)
	}

	client := &types.Client{
		ID:        uuid.New(),
		FirstName: "Local",
		LastName:  "Dev",
		Status:    "active",
		Profile:   datatypes.JSON([]byte("{}")),
	}
	if err := store.DB().Create(client).Error; err != nil {
		t.Fatalf("create client: %v", err)
	}
	plan := &types.CarePlanVersion{
		ID:         uuid.New(),
		ClientID:   client.ID,
		Version:    1,
		Status:     types.CarePlanStatusActive,
		AssessedBy: "Jane",
		Payload:    datatypes.JSON([]byte(`{"goals": {}}`)),
	}
	if err := store.DB().Create(plan).Error; err != nil {
		t.Fatalf("create care plan version: %v", err)
	}
	entry := &types.ActivityLogEntry{
		ID:        uuid.New(),
		ClientID:  client.ID,
		Timestamp: time.Now().UTC(),
		Action:    "Care plan added",
		Actor:     types.ActorSystem,
	}
	if err := store.DB().Create(entry).Error; err != nil {
		t.Fatalf("create activity log entry: %v", err)
	}

	var got types.CarePlanVersion
	if err := store.DB().First(&got, "id = ?", plan.ID).Error; err != nil {
		t.Fatalf("read back care plan version: %v", err)
	}
	if got.ClientID != client.ID || got.Version != 1 {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatalf("expected created_at/updated_at to be stamped on insert")
	}
}
