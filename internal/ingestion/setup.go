package ingestion

import (
	"sync"

	"github.com/gpazo-prog/scraper-enargas/internal/models"
)

type ISetup interface {
	build() (models.SetupReturn, error)
}

type Setup struct{}

// Instantiate all channels and data structures used by one ingestion run.
// Kept apart from the service so tests can inject their own.
func (h Setup) build() (models.SetupReturn, error) {
	channels := models.ExtractionChannels{
		Jobs:   make(chan models.PracticeJob, 100),
		Errors: make(chan models.AppError, 100),
	}

	var workerWg, mainWg sync.WaitGroup
	fileMap := make(models.FileMap)
	return models.SetupReturn{
		Channels:      &channels,
		WaitGroups:    &models.ExtractionWaitGroups{WorkerWg: &workerWg, MainWg: &mainWg},
		FileMap:       &fileMap,
		FileErrorsMap: models.NewFileErrorMap(),
	}, nil
}
