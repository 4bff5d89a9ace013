package main

import (
	"fmt"
	"os"
	"time"

	"github.com/waste3d/courseplatform-api/config"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/database"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "app",
		Short:         "Course platform API: accounts, payments and lesson access",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("config", ".", "directory containing app.env")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(grantAdminCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type runtime struct {
	cfg config.Config
	log *zap.Logger
	db  *gorm.DB
}

// bootstrap loads config, builds the logger and opens the database.
func bootstrap(cmd *cobra.Command) (*runtime, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := database.Open(database.Options{
		DSN:             cfg.DSN(),
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}, log)
	if err != nil {
		log.Error("database unavailable", zap.Error(err))
		return nil, err
	}

	return &runtime{cfg: cfg, log: log, db: db}, nil
}

func (rt *runtime) close() {
	if sqlDB, err := rt.db.DB(); err == nil {
		sqlDB.Close()
	}
	_ = rt.log.Sync()
}
