package models

import (
	"sort"
	"sync"
	"time"
)

// Skip records one unit (file or region column) left out of a run.
type Skip struct {
	File   string `json:"file"`
	Column string `json:"column,omitempty"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// RunSummary is the user-visible outcome of one ingestion pass. It is safe for concurrent use.
type RunSummary struct {
	RunID          string        `json:"run_id"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	RecordsWritten int           `json:"records_written"`
	RowsFailed     int           `json:"rows_failed"`
	FilesProcessed int           `json:"files_processed"`
	FilesSkipped   []Skip        `json:"files_skipped"`
	RegionsSkipped []Skip        `json:"regions_skipped"`

	mu sync.Mutex
}

func NewRunSummary(runID string, startedAt time.Time) *RunSummary {
	return &RunSummary{RunID: runID, StartedAt: startedAt}
}

func (s *RunSummary) AddWritten(n int) {
	s.mu.Lock()
	s.RecordsWritten += n
	s.mu.Unlock()
}

func (s *RunSummary) AddFailedRows(n int) {
	s.mu.Lock()
	s.RowsFailed += n
	s.mu.Unlock()
}

func (s *RunSummary) FileProcessed() {
	s.mu.Lock()
	s.FilesProcessed++
	s.mu.Unlock()
}

func (s *RunSummary) SkipFile(skip Skip) {
	s.mu.Lock()
	s.FilesSkipped = append(s.FilesSkipped, skip)
	s.mu.Unlock()
}

func (s *RunSummary) SkipRegion(skip Skip) {
	s.mu.Lock()
	s.RegionsSkipped = append(s.RegionsSkipped, skip)
	s.mu.Unlock()
}

// SkipCounts groups skipped files and regions by reason.
func (s *RunSummary) SkipCounts() (files map[string]int, regions map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	files = make(map[string]int)
	for _, sk := range s.FilesSkipped {
		files[sk.Reason]++
	}
	regions = make(map[string]int)
	for _, sk := range s.RegionsSkipped {
		regions[sk.Reason]++
	}
	return files, regions
}

// Finish stamps the duration and orders skips so reports are stable across worker counts.
func (s *RunSummary) Finish(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Duration = now.Sub(s.StartedAt)
	sortSkips(s.FilesSkipped)
	sortSkips(s.RegionsSkipped)
}

func sortSkips(skips []Skip) {
	sort.SliceStable(skips, func(i, j int) bool {
		if skips[i].File != skips[j].File {
			return skips[i].File < skips[j].File
		}
		return skips[i].Column < skips[j].Column
	})
}
