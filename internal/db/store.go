package db

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/harborlight/careledger-backend/internal/logger"
	"github.com/harborlight/careledger-backend/internal/types"
	"github.com/harborlight/careledger-backend/internal/utils"
)

type StoreService struct {
	db     *gorm.DB
	driver string
	log    *logger.Logger
}

func NewStoreService(log *logger.Logger) (*StoreService, error) {
	serviceLog := log.With("service", "StoreService")

	log.Info("Loading environment variables...")
	driver := strings.ToLower(utils.GetEnv("DB_DRIVER", "postgres", log))

	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dbPath := utils.GetEnv("DB_PATH", "careledger.db", log)
		dialector = sqlite.Open(dbPath)
	default:
		driver = "postgres"
		postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
		postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
		postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
		postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
		postgresName := utils.GetEnv("POSTGRES_NAME", "careledger", log)
		dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)
		dialector = postgres.Open(dsn)
	}

	log.Info("Connecting to record store...", "driver", driver)
	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Error("Failed to connect to record store", "driver", driver, "error", err)
		return nil, fmt.Errorf("failed to connect to record store: %w", err)
	}

	return &StoreService{db: db, driver: driver, log: serviceLog}, nil
}

func (s *StoreService) AutoMigrateAll() error {
	s.log.Info("Auto migrating record store tables...")
	err := s.db.AutoMigrate(
		&types.Client{},
		&types.CarePlanVersion{},
		&types.ActivityLogEntry{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for record store tables", "error", err)
		return err
	}
	if s.driver != "postgres" {
		return nil
	}
	s.log.Info("Configuring foreign key relationships for record store tables...")
	constraints := []struct {
		name string
		ddl  string
	}{
		{
			name: "fk_care_plan_version_client_id",
			ddl: `
    ALTER TABLE "care_plan_version"
    ADD CONSTRAINT "fk_care_plan_version_client_id"
    FOREIGN KEY ("client_id")
    REFERENCES "client"("id")
    ON DELETE CASCADE
  `,
		},
		{
			name: "fk_activity_log_entry_client_id",
			ddl: `
    ALTER TABLE "activity_log_entry"
    ADD CONSTRAINT "fk_activity_log_entry_client_id"
    FOREIGN KEY ("client_id")
    REFERENCES "client"("id")
    ON DELETE CASCADE
  `,
		},
	}
	for _, c := range constraints {
		if err := s.db.Exec(c.ddl).Error; err != nil {
			// Re-running migration against an already-constrained schema.
			s.log.Warn("Skipping foreign key constraint", "constraint", c.name, "error", err)
		}
	}
	return nil
}

func (s *StoreService) DB() *gorm.DB {
	return s.db
}
