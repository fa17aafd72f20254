package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/gpazo-prog/scraper-enargas/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

var configEnvVars = []string{
	"ENARGAS_CONFIG",
	"DATABASE_URL",
	"ENARGAS_DATABASE_URL",
	"ENARGAS_STORE_DRIVER",
	"ENARGAS_HTML_TABLE_INDEX",
	"ENARGAS_WRITE_MODE",
	"ENARGAS_NUM_WORKERS",
	"ENARGAS_CLAMP_NEGATIVE_DAILY",
	"ENARGAS_EXCLUDED_COLUMNS",
	"ENARGAS_CONNECT_TIMEOUT",
	"ENARGAS_SCHEDULE",
}

func clearConfigEnvVars() {
	for _, key := range configEnvVars {
		_ = os.Unsetenv(key)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "enargas-config-*.yaml")
	if err != nil {
		panic(err)
	}
	defer func() { _ = tmpFile.Close() }()

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}
	return tmpFile.Name()
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading with only DATABASE_URL set", func() {
			clearConfigEnvVars()
			_ = os.Setenv("DATABASE_URL", "postgres://user@localhost:5432/enargas")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then defaults should apply", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.DatabaseURL, convey.ShouldEqual, "postgres://user@localhost:5432/enargas")
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.StorePostgres)
				convey.So(cfg.HTMLTableIndex, convey.ShouldEqual, 1)
				convey.So(cfg.HeaderRow, convey.ShouldEqual, 0)
				convey.So(cfg.RequiredHeader, convey.ShouldEqual, "Mes")
				convey.So(cfg.ExcludedColumns, convey.ShouldResemble, []string{"Mes", "Total"})
				convey.So(cfg.WriteMode, convey.ShouldEqual, config.WriteModeBatch)
				convey.So(cfg.NumWorkers, convey.ShouldEqual, 1)
				convey.So(cfg.ConnectTimeout, convey.ShouldEqual, 20*time.Second)
				convey.So(cfg.CreatePractices, convey.ShouldBeTrue)
				convey.So(cfg.CreateRegions, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When the postgres store has no database url", func() {
			clearConfigEnvVars()
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should fail validation", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			clearConfigEnvVars()
			_ = os.Setenv("ENARGAS_STORE_DRIVER", "memory")
			_ = os.Setenv("ENARGAS_HTML_TABLE_INDEX", "2")
			_ = os.Setenv("ENARGAS_WRITE_MODE", "row")
			_ = os.Setenv("ENARGAS_NUM_WORKERS", "4")
			_ = os.Setenv("ENARGAS_CLAMP_NEGATIVE_DAILY", "true")
			_ = os.Setenv("ENARGAS_EXCLUDED_COLUMNS", "Mes,Total,Observaciones")
			_ = os.Setenv("ENARGAS_CONNECT_TIMEOUT", "5s")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.StoreMemory)
				convey.So(cfg.HTMLTableIndex, convey.ShouldEqual, 2)
				convey.So(cfg.WriteMode, convey.ShouldEqual, config.WriteModeRow)
				convey.So(cfg.NumWorkers, convey.ShouldEqual, 4)
				convey.So(cfg.ClampNegativeDaily, convey.ShouldBeTrue)
				convey.So(cfg.ExcludedColumns, convey.ShouldResemble, []string{"Mes", "Total", "Observaciones"})
				convey.So(cfg.ConnectTimeout, convey.ShouldEqual, 5*time.Second)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			clearConfigEnvVars()
			yamlContent := `
store_driver: sqlite
sqlite_path: /tmp/enargas-test.db
html_table_index: 3
region_aliases:
  CABA: "Ciudad Autónoma de Buenos Aires"
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("ENARGAS_CONFIG", tmpFile)
			_ = os.Setenv("ENARGAS_HTML_TABLE_INDEX", "1")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.StoreDriver, convey.ShouldEqual, config.StoreSQLite)
				convey.So(cfg.SQLitePath, convey.ShouldEqual, "/tmp/enargas-test.db")
				convey.So(cfg.HTMLTableIndex, convey.ShouldEqual, 1)
				convey.So(cfg.RegionAliases["CABA"], convey.ShouldEqual, "Ciudad Autónoma de Buenos Aires")
			})
		})

		convey.Convey("When a list variable has spaces and empty items", func() {
			clearConfigEnvVars()
			_ = os.Setenv("ENARGAS_STORE_DRIVER", "memory")
			_ = os.Setenv("ENARGAS_EXCLUDED_COLUMNS", " Mes , Total,,Fuente ")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then each item is trimmed and empty ones dropped", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.ExcludedColumns, convey.ShouldResemble, []string{"Mes", "Total", "Fuente"})
			})
		})

		convey.Convey("When the schedule is not a cron expression", func() {
			clearConfigEnvVars()
			_ = os.Setenv("ENARGAS_STORE_DRIVER", "memory")
			_ = os.Setenv("ENARGAS_SCHEDULE", "every morning")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should fail validation", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			clearConfigEnvVars()
			_ = os.Setenv("ENARGAS_CONFIG", "/nonexistent/enargas.yaml")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should report a load failure", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})
	})
}
