package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ieap-grade-sync/internal/config"
	"ieap-grade-sync/internal/db"
	"ieap-grade-sync/internal/logger"
	"ieap-grade-sync/internal/sync"
)

func CommandConfigCheck(cmd *cobra.Command, args []string) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		os.Setenv("CONFIG_PATH", path)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init("warn", "console")

	printConfig(os.Stdout, cfg)
	ok := true
	check := func(name string, err error) {
		if err != nil {
			ok = false
			fmt.Printf("[FAIL] %s: %v\n", name, err)
			return
		}
		fmt.Printf("[ OK ] %s\n", name)
	}

	check("config values", cfg.Validate())

	database, err := db.NewConnection(cfg)
	check("database connection", err)
	if err == nil {
		defer database.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		missing, err := db.MissingTables(ctx, database)
		cancel()
		if err == nil && len(missing) > 0 {
			err = fmt.Errorf("missing %s", strings.Join(missing, ", "))
		}
		check("database tables", err)
	}

	if cfg.SIS.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.SIS.Timeout)
		check("SIS reachable at "+cfg.SIS.BaseURL, sync.NewClient(cfg.SIS).Ping(ctx))
		cancel()
	} else {
		fmt.Println("[SKIP] SIS integration disabled")
	}

	if !ok {
		os.Exit(1)
	}
}

func printConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintf(w, "environment:   %s (%s)\n", cfg.App.Env, cfg.App.Version)
	fmt.Fprintf(w, "database:      %s@%s:%d/%s\n", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)
	fmt.Fprintf(w, "redis:         %s\n", cfg.RedisAddr())
	fmt.Fprintf(w, "sis enabled:   %t\n", cfg.SIS.Enabled)
	fmt.Fprintf(w, "sis base url:  %s\n", cfg.SIS.BaseURL)
	fmt.Fprintf(w, "sis api key:   %s\n", maskSecret(cfg.SIS.APIKey))
	fmt.Fprintf(w, "sis timeout:   %s\n", cfg.SIS.Timeout)
	fmt.Fprintf(w, "sis debug:     %t\n", cfg.SIS.DebugMode)
	fmt.Fprintf(w, "sync lock ttl: %s\n", cfg.Sync.LockTTL)
}

// maskSecret shows only whether a secret is set and its last characters.
func maskSecret(s string) string {
	switch {
	case s == "":
		return "(not set)"
	case len(s) <= 4:
		return "****"
	default:
		return "****" + s[len(s)-4:]
	}
}

func CommandMigrate(cmd *cobra.Command, args []string) {
	a := mustInit(cmd)
	defer a.Close()
	// ConnectDB would apply migrations itself when auto_migrate is on.
	a.Cfg.Database.AutoMigrate = false
	mustConnectDB(a)

	ctx := context.Background()
	if len(args) == 1 && args[0] == "status" {
		if err := db.MigrationStatus(ctx, a.DB); err != nil {
			a.Log.Fatal().Err(err).Msg("Failed to read migration status")
		}
		return
	}
	if len(args) == 1 {
		usageError("unknown migrate argument " + args[0])
	}
	if err := db.Migrate(ctx, a.DB); err != nil {
		a.Log.Fatal().Err(err).Msg("Migration failed")
	}
	fmt.Println("migrations applied")
}
