package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"bagvault/internal/config"
	"bagvault/internal/idparse"
	"bagvault/internal/ingest"
	"bagvault/internal/ledger"
	"bagvault/internal/packager"
	"bagvault/internal/reconcile"
	"bagvault/internal/report"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "bagvault",
		Short:         "Fixity-verified ingest of archival transfers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newTransferCommand())
	cmd.AddCommand(newValidateCommand())
	return cmd
}

// setup loads .env and the environment config, and builds a logger writing
// to stderr plus a per-run dated logfile when a logging directory is set.
func setup(ctx context.Context, run string) (config.Config, zerolog.Logger, func(), error) {
	_ = godotenv.Load()

	cfg, err := config.Load(ctx)
	if err != nil {
		return config.Config{}, zerolog.Nop(), nil, fmt.Errorf("load config: %w", err)
	}

	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	writers := []io.Writer{console}
	cleanup := func() {}
	if cfg.LoggingDir != "" {
		name := fmt.Sprintf("%s_%s.log", run, time.Now().Format("20060102_150405"))
		f, err := os.OpenFile(filepath.Join(cfg.LoggingDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return config.Config{}, zerolog.Nop(), nil, fmt.Errorf("open logfile: %w", err)
		}
		writers = append(writers, f)
		cleanup = func() { f.Close() }
	}
	log := zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	return cfg, log, cleanup, nil
}

func newTransferCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "transfer",
		Short: "Process pending transfers into the archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, log, cleanup, err := setup(ctx, "transfer")
			if err != nil {
				return err
			}
			defer cleanup()

			grammar, err := cfg.Grammar()
			if err != nil {
				return err
			}
			parser, err := idparse.New(grammar)
			if err != nil {
				return fmt.Errorf("compile identifier grammar: %w", err)
			}

			store, err := ledger.Open(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			orch := &ingest.Orchestrator{
				TransferDir:  cfg.TransferDir,
				ArchiveDir:   cfg.ArchiveDir,
				AppraisalDir: cfg.AppraisalDir,
				Store:        store,
				Parser:       parser,
				Raw: &packager.RawFolder{
					Parser:             parser,
					Algorithms:         cfg.Algorithms(),
					Owner:              packager.NewOwnerLookup(),
					SourceOrganization: cfg.SourceOrganization,
				},
				Log: log,
			}
			_, err = orch.Run(ctx)
			return err
		},
	}
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Reconcile the archive against the transfers ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cfg, log, cleanup, err := setup(ctx, "validate")
			if err != nil {
				return err
			}
			defer cleanup()

			transfers, err := ledger.Open(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer transfers.Close()

			// Sweep results may live in their own database file.
			validations := transfers
			if cfg.ValidationDatabase() != cfg.Database {
				validations, err = ledger.Open(ctx, cfg.ValidationDatabase())
				if err != nil {
					return err
				}
				defer validations.Close()
			}

			rec := &reconcile.Reconciler{
				ArchiveDir:  cfg.ArchiveDir,
				Transfers:   transfers,
				Validations: validations,
				Log:         log,
			}
			actionID, err := rec.Run(ctx)
			if err != nil {
				return err
			}

			if cfg.ReportDir == "" {
				return nil
			}
			action, err := validations.GetValidationAction(ctx, actionID)
			if err != nil {
				return err
			}
			outcomes, err := validations.OutcomesForAction(ctx, actionID)
			if err != nil {
				return err
			}
			path, err := report.WriteValidationReport(cfg.ReportDir, action, outcomes)
			if err != nil {
				return err
			}
			log.Info().Str("report", path).Msg("validation report written")
			return nil
		},
	}
}
