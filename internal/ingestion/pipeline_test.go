package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gpazo-prog/scraper-enargas/internal/catalog"
	"github.com/gpazo-prog/scraper-enargas/internal/config"
	"github.com/gpazo-prog/scraper-enargas/internal/database"
	"github.com/gpazo-prog/scraper-enargas/internal/models"
	"github.com/gpazo-prog/scraper-enargas/internal/parser"
	"github.com/gpazo-prog/scraper-enargas/internal/reconcile"
	"github.com/gpazo-prog/scraper-enargas/internal/region"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeExport(t *testing.T, dir, name string, rows [][]any) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	// excelize only saves under spreadsheet extensions; the portal names xlsx payloads .xls.
	tmp := filepath.Join(t.TempDir(), "export.xlsx")
	require.NoError(t, f.SaveAs(tmp))
	data, err := os.ReadFile(tmp)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func newRealService(t *testing.T, db *database.MemoryDBManager, mutate func(*config.Config)) *IngestionService {
	t.Helper()
	cfg := *config.New()
	cfg.StoreDriver = config.StoreMemory
	if mutate != nil {
		mutate(&cfg)
	}
	worker := NewAsyncWorker(db, AsyncWorkerConfig{SkipProcessedFiles: cfg.SkipProcessedFiles}, nil, nil)
	processor := NewFileProcessor(db, nil, nil)
	return NewIngestionService(db, Setup{}, worker, processor, cfg, nil, nil)
}

func seededMemoryDB(t *testing.T) *database.MemoryDBManager {
	t.Helper()
	db := database.NewMemoryDBManager()
	require.NoError(t, db.SeedCatalog(context.Background()))
	return db
}

func statsByRegion(db *database.MemoryDBManager, date time.Time) map[int]models.StatRecord {
	out := make(map[int]models.StatRecord)
	for _, rec := range db.Stats() {
		if rec.Date.Equal(date) {
			out[rec.RegionID] = rec
		}
	}
	return out
}

func TestIngestion_EndToEnd(t *testing.T) {
	dataDate := time.Date(2025, 4, 24, 0, 0, 0, 0, time.UTC)
	header := []any{"Mes", "Buenos Aires", "Capital Federal", "Total"}

	for _, mode := range []string{config.WriteModeBatch, config.WriteModeRow} {
		t.Run("writes region and total rows in "+mode+" mode", func(t *testing.T) {
			dir := t.TempDir()
			writeExport(t, dir, "conversiones-20250425-085057.xls", [][]any{
				header,
				{"Marzo", 40, 15, 55},
				{"Abril", 50, 20, 70},
			})
			require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

			db := seededMemoryDB(t)
			service := newRealService(t, db, func(c *config.Config) { c.WriteMode = mode })

			summary, err := service.Execute(context.Background(), dir)
			require.NoError(t, err)

			stats := statsByRegion(db, dataDate)
			require.Len(t, stats, 3)
			assert.Equal(t, int64(50), stats[1].Cumulative)
			assert.Equal(t, int64(50), stats[1].Daily)
			assert.Equal(t, int64(20), stats[5].Cumulative)
			assert.Equal(t, int64(70), stats[models.TotalRegionID].Cumulative)
			assert.Equal(t, int64(70), stats[models.TotalRegionID].Daily)

			assert.Equal(t, 3, summary.RecordsWritten)
			assert.Equal(t, 1, summary.FilesProcessed)
			require.Len(t, summary.FilesSkipped, 1)
			assert.Equal(t, "MalformedFilename", summary.FilesSkipped[0].Reason)

			status, ok := db.FileStatus("conversiones-20250425-085057.xls")
			require.True(t, ok)
			assert.Equal(t, database.FileStatusDone, status)
		})
	}

	t.Run("derives daily values from the previous day", func(t *testing.T) {
		dir := t.TempDir()
		writeExport(t, dir, "conversiones-20250426-090000.xls", [][]any{header, {"Abril", 65, 21, 86}})
		writeExport(t, dir, "conversiones-20250425-085057.xls", [][]any{header, {"Abril", 50, 20, 70}})

		db := seededMemoryDB(t)
		summary, err := newRealService(t, db, nil).Execute(context.Background(), dir)
		require.NoError(t, err)
		assert.Equal(t, 6, summary.RecordsWritten)

		stats := statsByRegion(db, dataDate.AddDate(0, 0, 1))
		assert.Equal(t, int64(15), stats[1].Daily)
		assert.Equal(t, int64(1), stats[5].Daily)
		assert.Equal(t, int64(16), stats[models.TotalRegionID].Daily)
	})

	t.Run("skips unknown regions and records the file with errors", func(t *testing.T) {
		dir := t.TempDir()
		writeExport(t, dir, "conversiones-20250425-085057.xls", [][]any{
			{"Mes", "Buenos Aires", "Atlantida", "Total"},
			{"Abril", 50, 9, 59},
		})

		db := seededMemoryDB(t)
		summary, err := newRealService(t, db, nil).Execute(context.Background(), dir)
		require.NoError(t, err)

		stats := statsByRegion(db, dataDate)
		assert.Len(t, stats, 2)
		assert.Equal(t, int64(50), stats[models.TotalRegionID].Cumulative)

		require.Len(t, summary.RegionsSkipped, 1)
		assert.Equal(t, "UnknownRegion", summary.RegionsSkipped[0].Reason)
		assert.Equal(t, "Atlantida", summary.RegionsSkipped[0].Column)

		status, _ := db.FileStatus("conversiones-20250425-085057.xls")
		assert.Equal(t, database.FileStatusDoneWithErrors, status)
	})

	t.Run("unreadable export marks the file fatal", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "conversiones-20250425-085057.xls"), []byte("not a spreadsheet"), 0644))

		db := seededMemoryDB(t)
		summary, err := newRealService(t, db, nil).Execute(context.Background(), dir)
		require.NoError(t, err)

		assert.Empty(t, db.Stats())
		assert.Equal(t, 0, summary.FilesProcessed)
		require.Len(t, summary.FilesSkipped, 1)
		assert.Equal(t, "UnparseableTable", summary.FilesSkipped[0].Reason)

		status, _ := db.FileStatus("conversiones-20250425-085057.xls")
		assert.Equal(t, database.FileStatusFatal, status)
	})

	t.Run("second pass skips files already processed", func(t *testing.T) {
		dir := t.TempDir()
		writeExport(t, dir, "conversiones-20250425-085057.xls", [][]any{header, {"Abril", 50, 20, 70}})

		db := seededMemoryDB(t)
		service := newRealService(t, db, nil)
		_, err := service.Execute(context.Background(), dir)
		require.NoError(t, err)

		summary, err := service.Execute(context.Background(), dir)
		require.NoError(t, err)
		assert.Equal(t, 0, summary.RecordsWritten)
		require.Len(t, summary.FilesSkipped, 1)
		assert.Equal(t, "AlreadyProcessed", summary.FilesSkipped[0].Reason)
		assert.Len(t, db.Stats(), 3)
	})

	t.Run("identical export under a new date is ingested", func(t *testing.T) {
		dir := t.TempDir()
		first := writeExport(t, dir, "conversiones-20250425-085057.xls", [][]any{header, {"Abril", 50, 20, 70}})

		db := seededMemoryDB(t)
		service := newRealService(t, db, nil)
		_, err := service.Execute(context.Background(), dir)
		require.NoError(t, err)

		data, err := os.ReadFile(first)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "conversiones-20250426-085057.xls"), data, 0644))

		summary, err := service.Execute(context.Background(), dir)
		require.NoError(t, err)
		assert.Equal(t, 3, summary.RecordsWritten)
		require.Len(t, summary.FilesSkipped, 1)
		assert.Equal(t, "conversiones-20250425-085057.xls", summary.FilesSkipped[0].File)

		stats := statsByRegion(db, dataDate.AddDate(0, 0, 1))
		require.Len(t, stats, 3)
		assert.Equal(t, int64(0), stats[1].Daily)
		assert.Equal(t, int64(70), stats[models.TotalRegionID].Cumulative)
	})
}

// rejectingStore refuses every write for one region.
type rejectingStore struct {
	*database.MemoryDBManager
	regionID int
}

func (s rejectingStore) UpsertStats(ctx context.Context, records []models.StatRecord) error {
	for _, rec := range records {
		if rec.RegionID == s.regionID {
			return fmt.Errorf("%w: region %d rejected", models.ErrUpsertConflict, rec.RegionID)
		}
	}
	return s.MemoryDBManager.UpsertStats(ctx, records)
}

func (s rejectingStore) UpsertStat(ctx context.Context, rec models.StatRecord) error {
	if rec.RegionID == s.regionID {
		return fmt.Errorf("%w: region %d rejected", models.ErrUpsertConflict, rec.RegionID)
	}
	return s.MemoryDBManager.UpsertStat(ctx, rec)
}

func TestFilePipeline_TotalExcludesRejectedRows(t *testing.T) {
	dataDate := time.Date(2025, 4, 24, 0, 0, 0, 0, time.UTC)

	for _, mode := range []string{config.WriteModeBatch, config.WriteModeRow} {
		t.Run(mode, func(t *testing.T) {
			dir := t.TempDir()
			path := writeExport(t, dir, "conversiones-20250425-085057.xls", [][]any{
				{"Mes", "Buenos Aires", "Capital Federal", "Total"},
				{"Abril", 50, 20, 70},
			})

			db := seededMemoryDB(t)
			cfg := *config.New()
			cfg.WriteMode = mode
			pipeline := NewFilePipeline(
				parser.NewExtractor(parser.DefaultExtractOptions()),
				catalog.NewRepository(db, catalog.Policy{CreatePractices: true}),
				region.NewNormalizer(nil, models.Jurisdictions[:]...),
				reconcile.NewReconciler(db),
				NewWriter(rejectingStore{MemoryDBManager: db, regionID: 5}, nil),
				cfg,
				nil,
			)

			parsed, err := parser.DecodeFilename(path)
			require.NoError(t, err)
			errs := make(chan models.AppError, 10)
			written, ok := pipeline.Process(context.Background(), models.FileInfo{Path: path, Name: filepath.Base(path), Parsed: parsed}, errs)
			close(errs)

			assert.True(t, ok)
			assert.Equal(t, 2, written)

			var failed []models.AppError
			for appErr := range errs {
				failed = append(failed, appErr)
			}
			require.Len(t, failed, 1)
			require.NotNil(t, failed[0].Record)
			assert.Equal(t, 5, failed[0].Record.RegionID)

			stats := statsByRegion(db, dataDate)
			require.Len(t, stats, 2)
			assert.Equal(t, int64(50), stats[models.TotalRegionID].Cumulative)
		})
	}
}
