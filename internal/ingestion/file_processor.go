package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gpazo-prog/scraper-enargas/internal/database"
	"github.com/gpazo-prog/scraper-enargas/internal/models"
	"github.com/gpazo-prog/scraper-enargas/internal/parser"
	"github.com/gpazo-prog/scraper-enargas/pkg/logger"
	"github.com/gpazo-prog/scraper-enargas/pkg/metrics"
)

// Processor defines the interface for file processing operations.
type Processor interface {
	ScanForFiles(ctx context.Context, rootPath string) ([]models.FileInfo, []models.Skip, error)
	GroupByPractice(files []models.FileInfo) []models.PracticeJob
	UpdateFileStatus(ctx context.Context, fileErrorsMap *models.FileErrorMap, fileMap *models.FileMap) error
}

// FileProcessor handles the stages around the per-file pipeline: discovering files,
// ordering them and closing their ledger records.
type FileProcessor struct {
	dbManager database.DBManager
	log       logger.Logger
	metrics   *metrics.Manager
}

func NewFileProcessor(dbManager database.DBManager, log logger.Logger, m *metrics.Manager) *FileProcessor {
	if log == nil {
		log = logger.NewNop()
	}
	return &FileProcessor{
		dbManager: dbManager,
		log:       log,
		metrics:   m,
	}
}

// ScanForFiles lists the files directly under rootPath and decodes every file name. Names
// that do not decode are returned as skips; the rest come back in chronological order (data date, then retrieval
// time) which the reconciler depends on.
func (fp *FileProcessor) ScanForFiles(ctx context.Context, rootPath string) ([]models.FileInfo, []models.Skip, error) {
	var (
		fileInfos []models.FileInfo
		skipped   []models.Skip
	)
	fp.log.Info(ctx, "scanning for files", logger.String("dir", rootPath))

	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			// Only the top level; subdirectories hold archives.
			if path != rootPath {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") {
			return nil
		}

		parsed, err := parser.DecodeFilename(info.Name())
		if err != nil {
			fp.log.Warn(ctx, "skipping file with unexpected name", logger.String("file", info.Name()), logger.Error(err))
			skipped = append(skipped, models.Skip{File: info.Name(), Reason: models.Kind(err), Detail: err.Error()})
			return nil
		}

		fileInfos = append(fileInfos, models.FileInfo{Path: path, Name: info.Name(), Parsed: parsed})
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("error walking directory %s: %w", rootPath, err)
	}

	sort.SliceStable(fileInfos, func(i, j int) bool {
		a, b := fileInfos[i].Parsed, fileInfos[j].Parsed
		if !a.RetrievalDate.Equal(b.RetrievalDate) {
			return a.RetrievalDate.Before(b.RetrievalDate)
		}
		if !a.RetrievedAt.Equal(b.RetrievedAt) {
			return a.RetrievedAt.Before(b.RetrievedAt)
		}
		return fileInfos[i].Name < fileInfos[j].Name
	})

	fp.log.Info(ctx, "scan finished", logger.Int("files", len(fileInfos)), logger.Int("skipped", len(skipped)))
	return fileInfos, skipped, nil
}

// GroupByPractice splits chronologically ordered files into one job per practice. Jobs are
// ordered by their earliest file and keep the input order inside.
func (fp *FileProcessor) GroupByPractice(files []models.FileInfo) []models.PracticeJob {
	index := make(map[string]int)
	var jobs []models.PracticeJob
	for _, f := range files {
		key := f.Parsed.PracticeKey
		i, ok := index[key]
		if !ok {
			i = len(jobs)
			index[key] = i
			jobs = append(jobs, models.PracticeJob{PracticeKey: key})
		}
		jobs[i].Files = append(jobs[i].Files, f)
	}
	return jobs
}

// UpdateFileStatus closes the ledger record of every registered file.
func (fp *FileProcessor) UpdateFileStatus(ctx context.Context, fileErrorsMap *models.FileErrorMap, fileMap *models.FileMap) error {
	for fileID, info := range *fileMap {
		fileErrorsMap.Mu.Lock()
		appErrors := fileErrorsMap.Errors[fileID]
		failed := fileErrorsMap.Failed[fileID]
		fileErrorsMap.Mu.Unlock()

		status := database.FileStatusDone
		switch {
		case failed:
			status = database.FileStatusFatal
		case len(appErrors) > 0:
			status = database.FileStatusDoneWithErrors
		}

		var payload any
		if len(appErrors) > 0 {
			payload = appErrors
		}
		if err := fp.dbManager.UpdateFileStatus(ctx, fileID, status, payload); err != nil {
			fp.log.Error(ctx, "failed to update file status", logger.Int("file_id", fileID), logger.String("file", info.Name), logger.Error(err))
			continue
		}
		fp.metrics.RecordFileProcessed(status)
	}
	return nil
}
