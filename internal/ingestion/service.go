package ingestion

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/gpazo-prog/scraper-enargas/internal/catalog"
	"github.com/gpazo-prog/scraper-enargas/internal/config"
	"github.com/gpazo-prog/scraper-enargas/internal/database"
	"github.com/gpazo-prog/scraper-enargas/internal/models"
	"github.com/gpazo-prog/scraper-enargas/internal/parser"
	"github.com/gpazo-prog/scraper-enargas/internal/reconcile"
	"github.com/gpazo-prog/scraper-enargas/internal/region"
	"github.com/gpazo-prog/scraper-enargas/pkg/logger"
	"github.com/gpazo-prog/scraper-enargas/pkg/metrics"
)

type IngestionService struct {
	dbManager     database.DBManager
	setupService  ISetup
	asyncWorker   Worker
	fileProcessor Processor
	config        config.Config
	log           logger.Logger
	metrics       *metrics.Manager

	extractor  *parser.Extractor
	normalizer *region.Normalizer
	reconciler *reconcile.Reconciler
	writer     *Writer
	now        func() time.Time
}

func NewIngestionService(
	dbManager database.DBManager,
	setupService ISetup,
	worker Worker,
	processor Processor,
	cfg config.Config,
	log logger.Logger,
	m *metrics.Manager,
) *IngestionService {
	if log == nil {
		log = logger.NewNop()
	}

	onNegative := func(rec, prev models.StatRecord) {
		m.RecordNegativeDelta()
		log.Warn(context.Background(), "cumulative counter went backwards within the month",
			logger.Int("practice_id", rec.PracticeID), logger.Int("region_id", rec.RegionID),
			logger.String("date", rec.Date.Format("2006-01-02")), logger.Int64("cumulative", rec.Cumulative),
			logger.String("prev_date", prev.Date.Format("2006-01-02")), logger.Int64("prev_cumulative", prev.Cumulative),
			logger.Any("clamped", cfg.ClampNegativeDaily))
	}

	return &IngestionService{
		dbManager:     dbManager,
		setupService:  setupService,
		asyncWorker:   worker,
		fileProcessor: processor,
		config:        cfg,
		log:           log,
		metrics:       m,
		extractor: parser.NewExtractor(parser.ExtractOptions{
			HeaderRow:      cfg.HeaderRow,
			HTMLTableIndex: cfg.HTMLTableIndex,
			RequiredHeader: cfg.RequiredHeader,
		}),
		normalizer: region.NewNormalizer(cfg.RegionAliases, models.Jurisdictions[:]...),
		reconciler: reconcile.NewReconciler(dbManager,
			reconcile.WithClampNegative(cfg.ClampNegativeDaily),
			reconcile.WithNegativeDeltaHook(onNegative)),
		writer: NewWriter(dbManager, log.Named("writer")),
		now:    time.Now,
	}
}

// Execute runs one full pass over filesPath. Per-file and per-column problems end up in the
// returned summary; only failures that make the pass impossible are returned as errors.
func (h *IngestionService) Execute(ctx context.Context, filesPath string) (*models.RunSummary, error) {
	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)
	summary := models.NewRunSummary(runID, h.now())

	// Step 0: Setup the extraction environment.
	environmentConfig, err := h.setupService.build()
	if err != nil {
		return nil, err
	}
	channels, waitGroups, fileMap, fileErrorsMap := environmentConfig.GetValues()

	// Step 1: Discover files, in chronological order.
	files, skipped, err := h.fileProcessor.ScanForFiles(ctx, filesPath)
	if err != nil {
		h.log.Error(ctx, "failed to scan files", logger.Error(err))
		return nil, err
	}
	for _, skip := range skipped {
		summary.SkipFile(skip)
		h.metrics.RecordFileSkipped(skip.Reason)
	}
	jobs := h.fileProcessor.GroupByPractice(files)
	h.log.Info(ctx, "starting ingestion", logger.Int("files", len(files)), logger.Int("practices", len(jobs)),
		logger.Int("workers", h.config.NumWorkers))

	// Catalog lookups are cached for this run only.
	repo := catalog.NewRepository(h.dbManager, catalog.Policy{
		CreatePractices: h.config.CreatePractices,
		CreateRegions:   h.config.CreateRegions,
	})
	pipeline := NewFilePipeline(h.extractor, repo, h.normalizer, h.reconciler, h.writer, h.config, h.log.Named("pipeline"))

	h.asyncWorker.WithChannels(channels).WithWaitGroups(waitGroups).WithSummary(summary)

	// Step 2: Register files in the ledger and dispatch one job per practice.
	dispatcherRunner, _, err := h.asyncWorker.SetupJobDispatcherWorker(jobs, *fileMap)
	if err != nil {
		return nil, err
	}

	// Step 3: Single consumer for every error produced below.
	errorWorkerRunner, mainWaitGroup, err := h.asyncWorker.SetupErrorWorker()
	if err != nil {
		return nil, err
	}

	// Step 4: Practice workers.
	workersRunner, workerWaitGroup, err := h.asyncWorker.SetupPracticeWorkers(h.config.NumWorkers)
	if err != nil {
		return nil, err
	}

	dispatcherRunner.Run(ctx)
	errorWorkerRunner.Run(fileErrorsMap)
	workersRunner.Run(ctx, pipeline.Process)

	// Step 5: Wait for all processing to complete. The dispatcher closes the jobs channel,
	// so workers end after it; only then can the errors channel close.
	workerWaitGroup.Wait()
	close(channels.Errors)
	mainWaitGroup.Wait()

	// Step 6: Close the ledger record of each file with the outcome.
	if err := h.fileProcessor.UpdateFileStatus(ctx, fileErrorsMap, fileMap); err != nil {
		h.log.Error(ctx, "failed to update file statuses", logger.Error(err))
	}

	summary.Finish(h.now())
	h.logSummary(ctx, summary)
	return summary, nil
}

func (h *IngestionService) logSummary(ctx context.Context, s *models.RunSummary) {
	filesByReason, regionsByReason := s.SkipCounts()
	h.log.Info(ctx, "ingestion finished",
		logger.Int("records_written", s.RecordsWritten),
		logger.Int("rows_failed", s.RowsFailed),
		logger.Int("files_processed", s.FilesProcessed),
		logger.Int("files_skipped", len(s.FilesSkipped)),
		logger.Int("regions_skipped", len(s.RegionsSkipped)),
		logger.Any("files_skipped_by_reason", filesByReason),
		logger.Any("regions_skipped_by_reason", regionsByReason),
		logger.String("duration", s.Duration.String()))
	for _, skip := range s.FilesSkipped {
		h.log.Info(ctx, "file skipped", logger.String("file", skip.File), logger.String("reason", skip.Reason), logger.String("detail", skip.Detail))
	}
	for _, skip := range s.RegionsSkipped {
		h.log.Info(ctx, "region skipped", logger.String("file", skip.File), logger.String("column", skip.Column),
			logger.String("reason", skip.Reason), logger.String("detail", skip.Detail))
	}
}
