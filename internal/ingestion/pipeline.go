package ingestion

import (
	"context"
	"fmt"
	"strings"

	"github.com/gpazo-prog/scraper-enargas/internal/catalog"
	"github.com/gpazo-prog/scraper-enargas/internal/config"
	"github.com/gpazo-prog/scraper-enargas/internal/models"
	"github.com/gpazo-prog/scraper-enargas/internal/parser"
	"github.com/gpazo-prog/scraper-enargas/internal/reconcile"
	"github.com/gpazo-prog/scraper-enargas/internal/region"
	"github.com/gpazo-prog/scraper-enargas/pkg/logger"
)

// FilePipeline turns one export into persisted statistics rows.
type FilePipeline struct {
	extractor  *parser.Extractor
	catalog    *catalog.Repository
	normalizer *region.Normalizer
	reconciler *reconcile.Reconciler
	writer     *Writer
	excluded   map[string]bool
	rowMode    bool
	log        logger.Logger
}

func NewFilePipeline(
	extractor *parser.Extractor,
	repo *catalog.Repository,
	normalizer *region.Normalizer,
	reconciler *reconcile.Reconciler,
	writer *Writer,
	cfg config.Config,
	log logger.Logger,
) *FilePipeline {
	excluded := make(map[string]bool, len(cfg.ExcludedColumns))
	for _, col := range cfg.ExcludedColumns {
		excluded[strings.ToLower(strings.TrimSpace(col))] = true
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &FilePipeline{
		extractor:  extractor,
		catalog:    repo,
		normalizer: normalizer,
		reconciler: reconciler,
		writer:     writer,
		excluded:   excluded,
		rowMode:    cfg.WriteMode == config.WriteModeRow,
		log:        log,
	}
}

// Process ingests file and returns the number of rows written. ok is false when the file as a
// whole could not be ingested. Every problem is reported on errs; none of them stops the run.
func (p *FilePipeline) Process(ctx context.Context, file models.FileInfo, errs chan<- models.AppError) (written int, ok bool) {
	log := p.log.With(logger.String("file", file.Name), logger.Int("file_id", file.FileID))

	fail := func(msg string, err error) (int, bool) {
		errs <- models.AppError{FileID: file.FileID, FileName: file.Name, Message: msg, Err: err}
		return 0, false
	}

	export, err := p.extractor.ReadExport(file.Path)
	if err != nil {
		return fail("failed to extract table", err)
	}
	if file.Checksum != "" && export.Checksum != file.Checksum {
		log.Warn(ctx, "file changed since it was registered", logger.String("registered", file.Checksum), logger.String("read", export.Checksum))
	}
	last, hasRows := export.Table.LastRow()
	if !hasRows {
		return fail("failed to extract table", fmt.Errorf("%w: no data rows", models.ErrUnparseableTable))
	}

	practiceID, err := p.catalog.GetOrCreate(ctx, models.PracticeCatalog, file.Parsed.PracticeKey)
	if err != nil {
		return fail("failed to resolve practice", err)
	}

	date := file.Parsed.DataDate()
	log.Debug(ctx, "processing export", logger.String("kind", export.Kind.String()),
		logger.String("data_date", date.Format("2006-01-02")), logger.Int("practice_id", practiceID))

	skipColumn := func(label, msg string, err error) {
		errs <- models.AppError{FileID: file.FileID, FileName: file.Name, Column: label, Message: msg, Err: err}
	}

	seen := make(map[int]string)
	var records []models.StatRecord
	for _, label := range export.Table.Header {
		if label == "" || p.excluded[strings.ToLower(label)] {
			continue
		}

		name := p.normalizer.Normalize(label)
		regionID, err := p.catalog.GetOrCreate(ctx, models.RegionCatalog, name)
		if err != nil {
			skipColumn(label, "failed to resolve region", err)
			continue
		}
		if regionID == models.TotalRegionID {
			log.Debug(ctx, "ignoring embedded total column", logger.String("column", label))
			continue
		}
		if prevLabel, dup := seen[regionID]; dup {
			skipColumn(label, "duplicate region column", fmt.Errorf("column %q already mapped to region %q", prevLabel, name))
			continue
		}
		seen[regionID] = label

		count, err := parser.ParseCount(last[label])
		if err != nil {
			skipColumn(label, "failed to parse count", err)
			continue
		}

		rec, err := p.reconciler.Reconcile(ctx, practiceID, regionID, date, count)
		if err != nil {
			skipColumn(label, "failed to reconcile", err)
			continue
		}

		if p.rowMode {
			if err := p.writer.WriteOne(ctx, rec); err != nil {
				r := rec
				errs <- models.AppError{FileID: file.FileID, FileName: file.Name, Column: label, Message: "failed to write row", Err: err, Record: &r}
				continue
			}
			written++
		}
		records = append(records, rec)
	}

	if !p.rowMode {
		n, failures := p.writer.Write(ctx, records)
		rejected := make(map[int]bool, len(failures))
		for _, f := range failures {
			r := f.Record
			rejected[r.RegionID] = true
			errs <- models.AppError{FileID: file.FileID, FileName: file.Name, Message: "failed to write row", Err: f.Err, Record: &r}
		}
		written = n
		if len(rejected) > 0 {
			kept := records[:0]
			for _, rec := range records {
				if !rejected[rec.RegionID] {
					kept = append(kept, rec)
				}
			}
			records = kept
		}
	}

	// The total only covers rows that actually reached the store.
	total, hasTotal := reconcile.Aggregate(practiceID, date, records)
	if !hasTotal {
		log.Warn(ctx, "no region rows written for export")
		return written, true
	}
	if err := p.writer.WriteOne(ctx, total); err != nil {
		errs <- models.AppError{FileID: file.FileID, FileName: file.Name, Message: "failed to write total row", Err: err, Record: &total}
		return written, true
	}
	return written + 1, true
}
