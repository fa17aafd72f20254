package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gpazo-prog/scraper-enargas/internal/database"
	"github.com/gpazo-prog/scraper-enargas/internal/models"
	"github.com/gpazo-prog/scraper-enargas/pkg/checksum"
	"github.com/gpazo-prog/scraper-enargas/pkg/logger"
	"github.com/gpazo-prog/scraper-enargas/pkg/metrics"
)

// maxErrorsPerFile bounds what is kept per file; past it the export is surely malformed.
const maxErrorsPerFile = 100

type Runner[T any] struct {
	Run T
}

// FileHandler ingests one file and returns the number of rows written. ok is false when the
// file failed as a whole.
type FileHandler func(ctx context.Context, file models.FileInfo, errs chan<- models.AppError) (written int, ok bool)

type AsyncWorkerConfig struct {
	// SkipProcessedFiles skips files whose checksum already has a DONE ledger record.
	SkipProcessedFiles bool
}

// Worker defines the interface for asynchronous processing tasks.
type Worker interface {
	WithChannels(channels *models.ExtractionChannels) Worker
	WithWaitGroups(waitGroups *models.ExtractionWaitGroups) Worker
	WithSummary(summary *models.RunSummary) Worker
	SetupErrorWorker() (Runner[func(*models.FileErrorMap)], *sync.WaitGroup, error)
	SetupPracticeWorkers(numberOfWorkers int) (Runner[func(context.Context, FileHandler)], *sync.WaitGroup, error)
	SetupJobDispatcherWorker(jobs []models.PracticeJob, fileMap models.FileMap) (Runner[func(context.Context)], *sync.WaitGroup, error)
}

type AsyncWorker struct {
	config     AsyncWorkerConfig
	dbManager  database.DBManager
	log        logger.Logger
	metrics    *metrics.Manager
	channels   *models.ExtractionChannels
	waitGroups *models.ExtractionWaitGroups
	summary    *models.RunSummary
}

func NewAsyncWorker(dbManager database.DBManager, cfg AsyncWorkerConfig, log logger.Logger, m *metrics.Manager) *AsyncWorker {
	if log == nil {
		log = logger.NewNop()
	}
	return &AsyncWorker{
		dbManager: dbManager,
		config:    cfg,
		log:       log,
		metrics:   m,
	}
}

func (w *AsyncWorker) WithChannels(channels *models.ExtractionChannels) Worker {
	w.channels = channels
	return w
}

func (w *AsyncWorker) WithWaitGroups(waitGroups *models.ExtractionWaitGroups) Worker {
	w.waitGroups = waitGroups
	return w
}

func (w *AsyncWorker) WithSummary(summary *models.RunSummary) Worker {
	w.summary = summary
	return w
}

// PracticeWorker drains practice jobs. A job carries every file of one practice, so no two
// workers ever reconcile the same (practice, region) pair, and files are handled in order.
func (w *AsyncWorker) PracticeWorker(ctx context.Context, workerID int, handle FileHandler) {
	defer w.waitGroups.WorkerWg.Done()
	for job := range w.channels.Jobs {
		w.log.Info(ctx, "worker started practice", logger.Int("worker", workerID),
			logger.String("practice", job.PracticeKey), logger.Int("files", len(job.Files)))
		for _, file := range job.Files {
			if ctx.Err() != nil {
				w.channels.Errors <- models.AppError{FileID: file.FileID, FileName: file.Name, Message: "run cancelled", Err: ctx.Err()}
				continue
			}
			written, ok := handle(ctx, file, w.channels.Errors)
			w.summary.AddWritten(written)
			w.metrics.AddRecordsWritten(written)
			if ok {
				w.summary.FileProcessed()
			}
		}
		w.log.Info(ctx, "worker finished practice", logger.Int("worker", workerID), logger.String("practice", job.PracticeKey))
	}
}

func (w *AsyncWorker) SetupPracticeWorkers(numberOfWorkers int) (Runner[func(context.Context, FileHandler)], *sync.WaitGroup, error) {
	if numberOfWorkers < 1 {
		return Runner[func(context.Context, FileHandler)]{}, nil, fmt.Errorf("need at least one worker, got %d", numberOfWorkers)
	}
	return Runner[func(context.Context, FileHandler)]{
		Run: func(ctx context.Context, handle FileHandler) {
			for i := 1; i <= numberOfWorkers; i++ {
				w.waitGroups.WorkerWg.Add(1)
				go w.PracticeWorker(ctx, i, handle)
			}
		},
	}, w.waitGroups.WorkerWg, nil
}

// ErrorWorker is the single consumer of the errors channel. It logs every error, feeds the
// run summary and keeps up to maxErrorsPerFile errors per file for the ledger.
func (w *AsyncWorker) ErrorWorker(fileErrorsMap *models.FileErrorMap) {
	defer w.waitGroups.MainWg.Done()
	ctx := context.Background()
	for appErr := range w.channels.Errors {
		kind := models.Kind(appErr.Err)
		w.log.Warn(ctx, appErr.Message, logger.String("file", appErr.FileName), logger.String("column", appErr.Column),
			logger.String("kind", kind), logger.Error(appErr.Err))

		skip := models.Skip{File: appErr.FileName, Column: appErr.Column, Reason: kind, Detail: appErr.Error()}
		switch {
		case appErr.Record != nil:
			w.summary.AddFailedRows(1)
			w.metrics.AddRowsFailed(1)
		case appErr.FileLevel():
			w.summary.SkipFile(skip)
			w.metrics.RecordFileSkipped(kind)
		default:
			w.summary.SkipRegion(skip)
			w.metrics.RecordRegionSkipped(kind)
		}

		if appErr.FileID <= 0 {
			continue
		}
		fileErrorsMap.Mu.Lock()
		if appErr.FileLevel() {
			fileErrorsMap.Failed[appErr.FileID] = true
		}
		if len(fileErrorsMap.Errors[appErr.FileID]) < maxErrorsPerFile {
			fileErrorsMap.Errors[appErr.FileID] = append(fileErrorsMap.Errors[appErr.FileID], appErr)
		} else {
			w.log.Warn(ctx, "file has too many errors, dropping the rest", logger.Int("file_id", appErr.FileID))
		}
		fileErrorsMap.Mu.Unlock()
	}
}

// register computes the checksum, consults the ledger and records the file as PROCESSING.
// It returns false when the file must not be processed.
func (w *AsyncWorker) register(ctx context.Context, file *models.FileInfo) bool {
	sum, err := checksum.GetFileChecksum(file.Path)
	if err != nil {
		w.channels.Errors <- models.AppError{FileName: file.Name, Message: "failed to calculate checksum", Err: err}
		return false
	}
	file.Checksum = sum

	if w.config.SkipProcessedFiles {
		isProcessed, err := w.dbManager.IsFileAlreadyProcessed(ctx, file.Name, sum)
		if err != nil {
			w.channels.Errors <- models.AppError{FileName: file.Name, Message: "failed to check file ledger", Err: err}
			return false
		}
		if isProcessed {
			w.log.Info(ctx, "file already processed, skipping", logger.String("file", file.Name), logger.String("checksum", sum))
			w.summary.SkipFile(models.Skip{File: file.Name, Reason: "AlreadyProcessed"})
			w.metrics.RecordFileSkipped("AlreadyProcessed")
			return false
		}
	}

	fileID, err := w.dbManager.InsertFileRecord(ctx, file.Name, time.Now(), database.FileStatusProcessing, sum, file.Parsed.DataDate())
	if err != nil {
		w.channels.Errors <- models.AppError{FileName: file.Name, Message: "failed to insert file record", Err: err}
		return false
	}
	file.FileID = fileID
	return true
}

// PreprocessAndDispatchJobs registers the files of each job in the ledger and hands the
// job to the practice workers. fileMap is only written here.
func (w *AsyncWorker) PreprocessAndDispatchJobs(ctx context.Context, jobs []models.PracticeJob, fileMap models.FileMap) {
	defer w.waitGroups.MainWg.Done()
	defer close(w.channels.Jobs)

	for _, job := range jobs {
		dispatch := models.PracticeJob{PracticeKey: job.PracticeKey}
		for _, file := range job.Files {
			if !w.register(ctx, &file) {
				continue
			}
			fileMap[file.FileID] = file
			dispatch.Files = append(dispatch.Files, file)
		}
		if len(dispatch.Files) == 0 {
			continue
		}

		w.log.Info(ctx, "dispatching practice", logger.String("practice", dispatch.PracticeKey), logger.Int("files", len(dispatch.Files)))
		select {
		case w.channels.Jobs <- dispatch:
		case <-ctx.Done():
			w.log.Warn(ctx, "dispatch cancelled", logger.Error(ctx.Err()))
			for _, file := range dispatch.Files {
				w.channels.Errors <- models.AppError{FileID: file.FileID, FileName: file.Name, Message: "run cancelled", Err: ctx.Err()}
			}
			return
		}
	}
}

func (w *AsyncWorker) SetupJobDispatcherWorker(jobs []models.PracticeJob, fileMap models.FileMap) (Runner[func(context.Context)], *sync.WaitGroup, error) {
	return Runner[func(context.Context)]{
		Run: func(ctx context.Context) {
			w.waitGroups.MainWg.Add(1)
			go w.PreprocessAndDispatchJobs(ctx, jobs, fileMap)
		},
	}, w.waitGroups.MainWg, nil
}

func (w *AsyncWorker) SetupErrorWorker() (Runner[func(*models.FileErrorMap)], *sync.WaitGroup, error) {
	return Runner[func(*models.FileErrorMap)]{
		Run: func(fileErrorsMap *models.FileErrorMap) {
			w.waitGroups.MainWg.Add(1)
			go w.ErrorWorker(fileErrorsMap)
		},
	}, w.waitGroups.MainWg, nil
}
