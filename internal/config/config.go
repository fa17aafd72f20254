// Package config defines the ingestion configuration and how it is loaded.
//
// Values are layered: defaults from New, then an optional YAML file named by ENARGAS_CONFIG,
// then ENARGAS_* environment variables. DATABASE_URL is honoured without the prefix.
package config

import (
	"time"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"

	WriteModeBatch = "batch"
	WriteModeRow   = "row"
)

type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is json or console.
	LogFormat string `koanf:"log_format"`

	DatabaseURL string `koanf:"database_url"`
	// StoreDriver selects postgres, sqlite or memory (dry run).
	StoreDriver    string        `koanf:"store_driver"`
	SQLitePath     string        `koanf:"sqlite_path"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`

	// InputDir is where the acquisition step leaves the exported files.
	InputDir string `koanf:"input_dir"`

	// HTMLTableIndex picks the table inside markup exports; the first one on the portal is navigation.
	HTMLTableIndex  int      `koanf:"html_table_index"`
	HeaderRow       int      `koanf:"header_row"`
	RequiredHeader  string   `koanf:"required_header"`
	ExcludedColumns []string `koanf:"excluded_columns"`

	// RegionAliases extends the built-in alias table (raw label -> canonical name).
	RegionAliases map[string]string `koanf:"region_aliases"`

	CreatePractices bool `koanf:"create_practices"`
	CreateRegions   bool `koanf:"create_regions"`

	WriteMode          string `koanf:"write_mode"`
	NumWorkers         int    `koanf:"num_workers"`
	ClampNegativeDaily bool   `koanf:"clamp_negative_daily"`
	SkipProcessedFiles bool   `koanf:"skip_processed_files"`

	// Schedule is a cron expression; empty means a single pass.
	Schedule string `koanf:"schedule"`
	TimeZone string `koanf:"time_zone"`

	ListenAddr     string `koanf:"listen_addr"`
	APIAddr        string `koanf:"api_addr"`
	PushgatewayURL string `koanf:"pushgateway_url"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "json",
		StoreDriver:        StorePostgres,
		SQLitePath:         "enargas.db",
		ConnectTimeout:     20 * time.Second,
		InputDir:           "descargas_enargas",
		HTMLTableIndex:     1,
		HeaderRow:          0,
		RequiredHeader:     "Mes",
		ExcludedColumns:    []string{"Mes", "Total"},
		RegionAliases:      map[string]string{},
		CreatePractices:    true,
		CreateRegions:      false,
		WriteMode:          WriteModeBatch,
		NumWorkers:         1,
		ClampNegativeDaily: false,
		SkipProcessedFiles: true,
		TimeZone:           "America/Argentina/Buenos_Aires",
		ListenAddr:         ":9090",
		APIAddr:            ":8080",
	}
}
