package models

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const (
	// TotalRegionID is the synthetic "all regions" pseudo-region. Ids 1..MaxRealRegionID are
	// the real jurisdictions summed into it.
	TotalRegionID   = 25
	MaxRealRegionID = 24
)

// StatRecord is the unit persisted per (practice, region, date).
type StatRecord struct {
	PracticeID int       `json:"practice_id"`
	RegionID   int       `json:"region_id"`
	Date       time.Time `json:"date"`
	Cumulative int64     `json:"cumulative"`
	Daily      int64     `json:"daily"`
}

func (r StatRecord) IsValid() bool {
	return r.PracticeID > 0 && r.RegionID > 0 && !r.Date.IsZero() && r.Cumulative >= 0
}

// StatView is a persisted record joined with its catalog names.
type StatView struct {
	Practice   string    `json:"practice"`
	Region     string    `json:"region"`
	RegionID   int       `json:"region_id"`
	Date       time.Time `json:"date"`
	Cumulative int64     `json:"cumulative"`
	Daily      int64     `json:"daily"`
}

type CatalogKind int

const (
	PracticeCatalog CatalogKind = iota
	RegionCatalog
)

func (k CatalogKind) String() string {
	if k == RegionCatalog {
		return "region"
	}
	return "practice"
}

type PayloadKind int

const (
	Spreadsheet PayloadKind = iota
	MarkupDisguised
)

func (k PayloadKind) String() string {
	if k == MarkupDisguised {
		return "markup"
	}
	return "spreadsheet"
}

// ParsedFilename is what the portal encodes in an export name:
// <practice>-<YYYYMMDD>-<HHMMSS>.xls[x].
type ParsedFilename struct {
	PracticeKey   string
	RetrievalDate time.Time
	RetrievedAt   time.Time
}

// DataDate is the day the figures refer to; the portal always reports "as of yesterday".
func (p ParsedFilename) DataDate() time.Time {
	return p.RetrievalDate.AddDate(0, 0, -1)
}

type FileInfo struct {
	Path   string
	Name   string
	Parsed ParsedFilename

	// Set by the dispatcher once the file is registered in the ledger.
	FileID   int
	Checksum string
}

// Table is an extracted sheet: Header holds the column labels of the header row and
// every row in Rows is aligned with it.
type Table struct {
	Header []string
	Rows   [][]string
}

// LastRow returns the last data row keyed by column label.
func (t *Table) LastRow() (map[string]string, bool) {
	if t == nil || len(t.Rows) == 0 {
		return nil, false
	}
	last := t.Rows[len(t.Rows)-1]
	row := make(map[string]string, len(t.Header))
	for i, label := range t.Header {
		if i < len(last) {
			row[label] = last[i]
		} else {
			row[label] = ""
		}
	}
	return row, true
}

type AppError struct {
	FileID   int         `json:"file_id"`
	FileName string      `json:"file_name,omitempty"`
	Column   string      `json:"column,omitempty"`
	Message  string      `json:"message"`
	Err      error       `json:"-"`
	Record   *StatRecord `json:"record,omitempty"`
}

func (e *AppError) Error() string {
	var recordDetails string
	if e.Record != nil {
		recordJSON, err := json.Marshal(e.Record)
		if err != nil {
			recordDetails = "failed to marshal record to JSON"
		} else {
			recordDetails = string(recordJSON)
		}
	}

	prefix := e.FileName
	if e.Column != "" {
		prefix = fmt.Sprintf("%s [%s]", e.FileName, e.Column)
	}

	if e.Err != nil {
		if recordDetails != "" {
			return fmt.Sprintf("%s: %s - %v - Record: %s", prefix, e.Message, e.Err, recordDetails)
		}
		return fmt.Sprintf("%s: %s - %v", prefix, e.Message, e.Err)
	}

	if recordDetails != "" {
		return fmt.Sprintf("%s: %s - Record: %s", prefix, e.Message, recordDetails)
	}

	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// FileLevel reports whether the error stopped the whole file rather than one column or row.
func (e *AppError) FileLevel() bool { return e.Column == "" && e.Record == nil }

// Kind is the taxonomy name of the wrapped error.
func (e *AppError) Kind() string { return Kind(e.Err) }

// MarshalJSON keeps the error text and kind, which the plain struct tags drop.
func (e AppError) MarshalJSON() ([]byte, error) {
	type alias AppError
	var errText string
	if e.Err != nil {
		errText = e.Err.Error()
	}
	return json.Marshal(struct {
		alias
		Kind  string `json:"kind"`
		Error string `json:"error,omitempty"`
	}{alias: alias(e), Kind: Kind(e.Err), Error: errText})
}

// FileErrorMap collects errors per file id. Failed marks files that could not be ingested at all.
type FileErrorMap struct {
	Errors map[int][]AppError
	Failed map[int]bool
	Mu     sync.Mutex
}

func NewFileErrorMap() *FileErrorMap {
	return &FileErrorMap{Errors: make(map[int][]AppError), Failed: make(map[int]bool)}
}

func (m *FileErrorMap) Get(fileID int) []AppError {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return append([]AppError(nil), m.Errors[fileID]...)
}

// PracticeJob is the unit of work handed to an ingestion worker: every file of one
// practice, in chronological order.
type PracticeJob struct {
	PracticeKey string
	Files       []FileInfo
}
