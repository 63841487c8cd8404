package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/md-rashed-zaman/clinicops/libs/db"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/reconcile"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/storage/postgres"
)

type settings struct {
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	CompanyID   string `mapstructure:"CLINIC_COMPANY_ID"`
	BatchSize   int    `mapstructure:"RECONCILE_BATCH_SIZE"`
	GRPCAddr    string `mapstructure:"GRPC_ADDR"`
}

// loadSettings merges .env, the environment and command flags, flags winning.
func loadSettings(cmd *cobra.Command) (settings, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("RECONCILE_BATCH_SIZE", 100)
	v.SetDefault("GRPC_ADDR", "localhost:9090")
	for _, key := range []string{"DATABASE_URL", "CLINIC_COMPANY_ID", "RECONCILE_BATCH_SIZE", "GRPC_ADDR"} {
		_ = v.BindEnv(key)
	}
	if f := cmd.Flags().Lookup("database-url"); f != nil {
		_ = v.BindPFlag("DATABASE_URL", f)
	}
	if f := cmd.Flags().Lookup("company"); f != nil {
		_ = v.BindPFlag("CLINIC_COMPANY_ID", f)
	}
	if f := cmd.Flags().Lookup("addr"); f != nil {
		_ = v.BindPFlag("GRPC_ADDR", f)
	}

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return settings{}, err
	}

	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return settings{}, err
	}
	return s, nil
}

type session struct {
	settings settings
	pool     *db.Pool
	store    *postgres.Store
	engine   *reconcile.Engine
}

func openSession(ctx context.Context, cmd *cobra.Command, needCompany bool) (*session, error) {
	s, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}
	if s.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required (flag --database-url)")
	}
	if needCompany && s.CompanyID == "" {
		return nil, errors.New("company id is required (flag --company)")
	}

	pool, err := db.Open(ctx, s.DatabaseURL, db.Options{MaxConns: 4})
	if err != nil {
		return nil, err
	}
	store := postgres.New(pool)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return &session{
		settings: s,
		pool:     pool,
		store:    store,
		engine:   reconcile.NewEngine(store, logger, reconcile.WithBatchSize(s.BatchSize)),
	}, nil
}

func (s *session) Close() { s.pool.Close() }

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
