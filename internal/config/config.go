// Package config loads the pipeline's runtime configuration from the
// environment, with an optional .env file for local runs.
package config

import (
	"context"
	"fmt"
	"os"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"bagvault/internal/idparse"
	"bagvault/pkg/bagit"
)

// Config holds runtime configuration for the ingest and validation runs.
type Config struct {
	TransferDir  string `env:"TRANSFER_DIR,required"`
	ArchiveDir   string `env:"ARCHIVE_DIR,required"`
	AppraisalDir string `env:"APPRAISAL_DIR"`
	LoggingDir   string `env:"LOGGING_DIR"`

	Database     string `env:"DATABASE,required"`
	ValidationDB string `env:"VALIDATION_DB"`
	ReportDir    string `env:"REPORT_DIR"`

	HashAlgorithms     string `env:"HASH_ALGORITHMS,default=md5,sha256"`
	SourceOrganization string `env:"SOURCE_ORGANIZATION"`
	IDPatterns         string `env:"ID_PATTERNS"`
}

// Load returns a Config populated from environment variables.
func Load(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Algorithms returns the configured checksum algorithms with unknown names
// filtered out; an empty result falls back to the defaults.
func (c Config) Algorithms() []string {
	return bagit.FilterAlgorithms(c.HashAlgorithms)
}

// ValidationDatabase returns the path of the database validation sweeps
// write to. Unset means the transfer ledger.
func (c Config) ValidationDatabase() string {
	if c.ValidationDB != "" {
		return c.ValidationDB
	}
	return c.Database
}

// Grammar loads the identifier grammar from the configured YAML file, or
// the built-in grammar when no file is configured.
func (c Config) Grammar() (idparse.Grammar, error) {
	if c.IDPatterns == "" {
		return idparse.DefaultGrammar(), nil
	}
	b, err := os.ReadFile(c.IDPatterns)
	if err != nil {
		return idparse.Grammar{}, fmt.Errorf("read identifier grammar: %w", err)
	}
	var g idparse.Grammar
	if err := yaml.Unmarshal(b, &g); err != nil {
		return idparse.Grammar{}, fmt.Errorf("parse identifier grammar %s: %w", c.IDPatterns, err)
	}
	return g, nil
}
