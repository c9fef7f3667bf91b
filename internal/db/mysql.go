package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"ieap-grade-sync/internal/config"
)

func NewConnection(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxConnections)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.Database.ConnectionLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}

// RequiredTables is checked by config-check.
var RequiredTables = []string{
	"composite_configs",
	"grade_categories",
	"grade_items",
	"grade_grades",
	"sis_mappings",
	"sis_sync_logs",
	"import_files",
}

// MissingTables returns the required tables absent from the current schema.
func MissingTables(ctx context.Context, db *sql.DB) ([]string, error) {
	var missing []string
	for _, table := range RequiredTables {
		var n int
		err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`,
			table).Scan(&n)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect table %s: %w", table, err)
		}
		if n == 0 {
			missing = append(missing, table)
		}
	}
	return missing, nil
}
