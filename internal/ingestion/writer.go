package ingestion

import (
	"context"
	"errors"
	"fmt"

	"github.com/gpazo-prog/scraper-enargas/internal/models"
	"github.com/gpazo-prog/scraper-enargas/pkg/logger"
)

// StatStore is the write side of the statistics table.
type StatStore interface {
	UpsertStats(ctx context.Context, records []models.StatRecord) error
	UpsertStat(ctx context.Context, record models.StatRecord) error
}

// RowFailure is a record the store refused.
type RowFailure struct {
	Record models.StatRecord
	Err    error
}

// Writer upserts statistics rows keyed by (practice, region, date); conflicting rows are
// overwritten.
type Writer struct {
	store StatStore
	log   logger.Logger
}

func NewWriter(store StatStore, log logger.Logger) *Writer {
	if log == nil {
		log = logger.NewNop()
	}
	return &Writer{store: store, log: log}
}

// Write upserts records in one transaction. When the batch fails it is replayed row by row
// so only the offending rows are lost; each of them comes back as a RowFailure wrapping
// models.ErrUpsertConflict.
func (w *Writer) Write(ctx context.Context, records []models.StatRecord) (int, []RowFailure) {
	if len(records) == 0 {
		return 0, nil
	}

	err := w.store.UpsertStats(ctx, records)
	if err == nil {
		return len(records), nil
	}
	w.log.Warn(ctx, "batch upsert failed, retrying row by row", logger.Int("rows", len(records)), logger.Error(err))

	written := 0
	var failures []RowFailure
	for _, rec := range records {
		if err := w.WriteOne(ctx, rec); err != nil {
			failures = append(failures, RowFailure{Record: rec, Err: err})
			continue
		}
		written++
	}
	return written, failures
}

// WriteOne upserts a single row.
func (w *Writer) WriteOne(ctx context.Context, rec models.StatRecord) error {
	if err := w.store.UpsertStat(ctx, rec); err != nil {
		if !errors.Is(err, models.ErrUpsertConflict) {
			err = fmt.Errorf("%w: %v", models.ErrUpsertConflict, err)
		}
		return err
	}
	return nil
}
