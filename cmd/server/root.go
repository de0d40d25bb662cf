package main

import (
	"context"
	"fmt"

	"github.com/rpattn/drillops/internal/config"
	"github.com/rpattn/drillops/internal/db"
	"github.com/rpattn/drillops/internal/ingestion"
	"github.com/rpattn/drillops/internal/repository"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	configPath string
	logLevel   string

	cfg config.Config
	log *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "drillops",
		Short:         "Bulk import of daily drilling reports",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", ".", "directory containing config.yaml")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level")

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newUploadCmd(a),
		newValidateCmd(a),
		newCommitCmd(a),
		newBatchesCmd(a),
		newDiscardCmd(a),
	)
	return root
}

func (a *app) init() error {
	bootstrap := logrus.New()
	cfg, err := config.Load(a.configPath, bootstrap)
	if err != nil {
		bootstrap.WithError(err).Error("failed to load configuration")
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg
	a.log = config.NewLogger(cfg.Log)
	return nil
}

// services holds the wired pipeline for one command invocation.
type services struct {
	conn      *db.Connection
	ingestion *ingestion.Service
}

func (s *services) Close() {
	s.conn.Close()
}

func (a *app) connect(ctx context.Context, reg prometheus.Registerer) (*services, error) {
	conn, err := db.NewConnection(ctx, a.cfg.Database, a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	staging := repository.NewStagingRepository(conn.Pool, a.cfg.Ingestion.StageChunkSize, a.log)
	references := repository.NewReferenceRepository(conn.Pool)
	commits := repository.NewCommitStore(conn.Pool, a.log)

	options := []ingestion.ServiceOption{
		ingestion.WithLogger(a.log.WithField("component", "ingestion")),
		ingestion.WithImportLog(repository.NewImportLogRepository(conn.Pool)),
	}
	if reg != nil {
		options = append(options, ingestion.WithMetrics(ingestion.NewMetrics(reg)))
	}

	return &services{
		conn:      conn,
		ingestion: ingestion.NewService(staging, references, commits, a.cfg.Ingestion, options...),
	}, nil
}
