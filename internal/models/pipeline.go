package models

import "sync"

// FileMap holds every file registered in the ledger during a run, by file id.
type FileMap map[int]FileInfo

type ExtractionChannels struct {
	Jobs   chan PracticeJob
	Errors chan AppError
}

type ExtractionWaitGroups struct {
	// WorkerWg tracks the practice workers.
	WorkerWg *sync.WaitGroup
	// MainWg tracks the dispatcher and the error collector.
	MainWg *sync.WaitGroup
}

type SetupReturn struct {
	Channels      *ExtractionChannels
	WaitGroups    *ExtractionWaitGroups
	FileMap       *FileMap
	FileErrorsMap *FileErrorMap
}

func (s SetupReturn) GetValues() (*ExtractionChannels, *ExtractionWaitGroups, *FileMap, *FileErrorMap) {
	return s.Channels, s.WaitGroups, s.FileMap, s.FileErrorsMap
}
