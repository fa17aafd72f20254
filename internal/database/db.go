// Package database persists the catalog, the daily statistics series and the file ledger.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gpazo-prog/scraper-enargas/internal/config"
	"github.com/gpazo-prog/scraper-enargas/internal/models"
	"github.com/gpazo-prog/scraper-enargas/pkg/logger"
)

// File ledger statuses.
const (
	FileStatusProcessing     = "PROCESSING"
	FileStatusDone           = "DONE"
	FileStatusDoneWithErrors = "DONE_WITH_ERRORS"
	FileStatusFatal          = "FATAL"
)

// ErrSeedMismatch means an existing catalog disagrees with the fixed region ids.
var ErrSeedMismatch = errors.New("catalog seed mismatch")

// DBManager is implemented by every store backend.
type DBManager interface {
	CreateTables(ctx context.Context) error
	// SeedCatalog inserts the fixed-id regions. It is idempotent.
	SeedCatalog(ctx context.Context) error

	FindCatalogID(ctx context.Context, kind models.CatalogKind, name string) (int, bool, error)
	InsertCatalogEntry(ctx context.Context, kind models.CatalogKind, name string) (int, error)

	LatestBefore(ctx context.Context, practiceID, regionID int, date time.Time) (*models.StatRecord, error)
	// UpsertStats writes records atomically: either all rows are upserted or none.
	UpsertStats(ctx context.Context, records []models.StatRecord) error
	UpsertStat(ctx context.Context, record models.StatRecord) error

	InsertFileRecord(ctx context.Context, fileName string, processedAt time.Time, status, checksum string, dataDate time.Time) (int, error)
	UpdateFileStatus(ctx context.Context, fileID int, status string, errors any) error
	// IsFileAlreadyProcessed reports whether fileName was already ingested with this exact content.
	IsFileAlreadyProcessed(ctx context.Context, fileName, checksum string) (bool, error)

	GetStats(ctx context.Context, practice string, date time.Time) ([]models.StatView, error)
	LatestDate(ctx context.Context, practice string) (time.Time, bool, error)

	Close()
}

// Open connects to the backend selected by cfg.StoreDriver. Connection failures wrap
// models.ErrStoreConnection.
func Open(ctx context.Context, cfg *config.Config, log logger.Logger) (DBManager, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := ConnectDB(ctx, cfg.DatabaseURL, cfg.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		return NewPostgresDBManager(pool, log), nil
	case config.StoreSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath, cfg.ConnectTimeout, log)
	case config.StoreMemory:
		return NewMemoryDBManager(), nil
	default:
		return nil, fmt.Errorf("%w: unknown store driver %q", models.ErrStoreConnection, cfg.StoreDriver)
	}
}

func catalogTable(kind models.CatalogKind) string {
	if kind == models.RegionCatalog {
		return "provincias"
	}
	return "practicas"
}

// dateOnly strips the clock and location so DATE columns compare by calendar day.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// checkTotalRegion verifies that the seeded total id holds the synthetic total and not a
// region carried over from an older catalog.
func checkTotalRegion(name string, found bool) error {
	if !found {
		return fmt.Errorf("%w: region id %d is missing", ErrSeedMismatch, models.TotalRegionID)
	}
	if !strings.EqualFold(strings.TrimSpace(name), models.TotalRegionName) {
		return fmt.Errorf("%w: region id %d is %q, expected %q", ErrSeedMismatch, models.TotalRegionID, name, models.TotalRegionName)
	}
	return nil
}
