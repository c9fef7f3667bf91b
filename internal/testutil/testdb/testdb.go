//go:build integration

// Package testdb starts a throwaway MySQL container with the schema applied.
package testdb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/go-sql-driver/mysql"
	tc "github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	"ieap-grade-sync/internal/db"
)

type DBHandle struct {
	DB     *sql.DB
	cancel func()
	stop   func(context.Context) error
}

func (h *DBHandle) Close() {
	if h.DB != nil {
		_ = h.DB.Close()
	}
	if h.stop != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = h.stop(ctx)
	}
	if h.cancel != nil {
		h.cancel()
	}
}

func Start(ctx context.Context) (*DBHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)

	container, err := tcmysql.RunContainer(ctx,
		tc.WithImage("mysql:8.0"),
		tcmysql.WithDatabase("moodle"),
		tcmysql.WithUsername("moodle"),
		tcmysql.WithPassword("moodle"),
	)
	if err != nil {
		cancel()
		return nil, err
	}

	dsn, err := container.ConnectionString(ctx, "parseTime=true", "loc=UTC", "multiStatements=true")
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		return nil, err
	}

	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		cancel()
		return nil, err
	}
	if err := waitReady(ctx, conn); err != nil {
		_ = container.Terminate(ctx)
		cancel()
		return nil, err
	}
	if err := db.Migrate(ctx, conn); err != nil {
		_ = container.Terminate(ctx)
		cancel()
		return nil, err
	}

	return &DBHandle{DB: conn, cancel: cancel, stop: container.Terminate}, nil
}

func waitReady(ctx context.Context, conn *sql.DB) error {
	dead := time.Now().Add(30 * time.Second)
	for time.Now().Before(dead) {
		if err := conn.PingContext(ctx); err == nil {
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	return errors.New("db not ready")
}
