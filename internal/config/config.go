// Package config loads runtime settings from ORCHARD_* environment
// variables. Command-line flags override the loaded values.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/orchard/internal/archive"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the process configuration.
type Config struct {
	DBDriver string `env:"ORCHARD_DB_DRIVER" envDefault:"sqlite"`
	DBPath   string `env:"ORCHARD_DB_PATH" envDefault:"orchard.db"`
	DBDSN    string `env:"ORCHARD_DB_DSN"`

	// Roster is a CUE roster file. Empty uses the embedded default roster.
	Roster      string `env:"ORCHARD_ROSTER"`
	StrictIssue bool   `env:"ORCHARD_STRICT_ISSUE" envDefault:"false"`

	ArchiveDriver string `env:"ORCHARD_ARCHIVE_DRIVER" envDefault:"none"`
	ArchiveDir    string `env:"ORCHARD_ARCHIVE_DIR" envDefault:"archive"`
	S3Bucket      string `env:"ORCHARD_S3_BUCKET"`
	S3Region      string `env:"ORCHARD_S3_REGION" envDefault:"us-east-1"`
	S3Endpoint    string `env:"ORCHARD_S3_ENDPOINT"`
	S3PathStyle   bool   `env:"ORCHARD_S3_PATH_STYLE" envDefault:"false"`

	HTTPAddr     string `env:"ORCHARD_HTTP_ADDR" envDefault:":8080"`
	OTELEndpoint string `env:"ORCHARD_OTEL_ENDPOINT"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks enumerated settings and driver-specific requirements.
func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.DBDriver) {
	case DriverSQLite:
		if c.DBPath == "" {
			errs = append(errs, errors.New("ORCHARD_DB_PATH is required for the sqlite driver"))
		}
	case DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("ORCHARD_DB_DRIVER %q is not one of sqlite, postgres", c.DBDriver))
	}

	switch c.archiveDriver() {
	case "", archive.DriverMemory, archive.DriverFilesystem:
	case archive.DriverS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("ORCHARD_S3_BUCKET is required for the s3 archive"))
		}
	default:
		errs = append(errs, fmt.Errorf("ORCHARD_ARCHIVE_DRIVER %q is not one of none, memory, fs, s3", c.ArchiveDriver))
	}
	return errors.Join(errs...)
}

// ArchiveOptions converts the archive settings for archive.Open. The "none"
// driver yields an empty Driver, which archive.Open treats as disabled.
func (c Config) ArchiveOptions() archive.Options {
	return archive.Options{
		Driver: c.archiveDriver(),
		Dir:    c.ArchiveDir,
		S3: archive.S3Config{
			Bucket:    c.S3Bucket,
			Region:    c.S3Region,
			Endpoint:  c.S3Endpoint,
			PathStyle: c.S3PathStyle,
		},
	}
}

func (c Config) archiveDriver() archive.Driver {
	d := strings.ToLower(strings.TrimSpace(c.ArchiveDriver))
	if d == "none" {
		return ""
	}
	return archive.Driver(d)
}
