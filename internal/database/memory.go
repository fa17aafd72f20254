package database

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gpazo-prog/scraper-enargas/internal/models"
)

type statKey struct {
	practiceID int
	regionID   int
	date       time.Time
}

type memoryFileRecord struct {
	ID       int
	Name     string
	Status   string
	Checksum string
	DataDate time.Time
	Errors   any
}

// MemoryDBManager keeps everything in process memory. It backs dry runs and tests and
// enforces the same catalog references and uniqueness as the SQL stores.
type MemoryDBManager struct {
	mu       sync.RWMutex
	catalogs map[models.CatalogKind]map[int]string
	nextID   map[models.CatalogKind]int
	stats    map[statKey]models.StatRecord
	files    []memoryFileRecord
}

func NewMemoryDBManager() *MemoryDBManager {
	return &MemoryDBManager{
		catalogs: map[models.CatalogKind]map[int]string{
			models.PracticeCatalog: {},
			models.RegionCatalog:   {},
		},
		nextID: map[models.CatalogKind]int{
			models.PracticeCatalog: 1,
			models.RegionCatalog:   1,
		},
		stats: make(map[statKey]models.StatRecord),
	}
}

func (m *MemoryDBManager) Close() {}

func (m *MemoryDBManager) CreateTables(context.Context) error { return nil }

func (m *MemoryDBManager) SeedCatalog(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, entry := range models.RegionSeed() {
		if _, ok := m.catalogs[models.RegionCatalog][entry.ID]; !ok {
			m.catalogs[models.RegionCatalog][entry.ID] = entry.Name
		}
		if entry.ID >= m.nextID[models.RegionCatalog] {
			m.nextID[models.RegionCatalog] = entry.ID + 1
		}
	}
	name, ok := m.catalogs[models.RegionCatalog][models.TotalRegionID]
	return checkTotalRegion(name, ok)
}

func (m *MemoryDBManager) FindCatalogID(_ context.Context, kind models.CatalogKind, name string) (int, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.findLocked(kind, name)
	return id, ok, nil
}

func (m *MemoryDBManager) findLocked(kind models.CatalogKind, name string) (int, bool) {
	best := 0
	for id, n := range m.catalogs[kind] {
		if strings.EqualFold(n, name) && (best == 0 || id < best) {
			best = id
		}
	}
	return best, best != 0
}

func (m *MemoryDBManager) InsertCatalogEntry(_ context.Context, kind models.CatalogKind, name string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.findLocked(kind, name); ok {
		return id, nil
	}
	id := m.nextID[kind]
	m.nextID[kind]++
	m.catalogs[kind][id] = name
	return id, nil
}

// AddCatalogEntry inserts an entry with a fixed id.
func (m *MemoryDBManager) AddCatalogEntry(kind models.CatalogKind, id int, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalogs[kind][id] = name
	if id >= m.nextID[kind] {
		m.nextID[kind] = id + 1
	}
}

func (m *MemoryDBManager) LatestBefore(_ context.Context, practiceID, regionID int, date time.Time) (*models.StatRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	day := dateOnly(date)
	var latest *models.StatRecord
	for k, rec := range m.stats {
		if k.practiceID != practiceID || k.regionID != regionID || !k.date.Before(day) {
			continue
		}
		if latest == nil || k.date.After(latest.Date) {
			r := rec
			latest = &r
		}
	}
	return latest, nil
}

func (m *MemoryDBManager) checkLocked(rec models.StatRecord) error {
	if _, ok := m.catalogs[models.PracticeCatalog][rec.PracticeID]; !ok {
		return fmt.Errorf("%w: practice %d does not exist", models.ErrUpsertConflict, rec.PracticeID)
	}
	if _, ok := m.catalogs[models.RegionCatalog][rec.RegionID]; !ok {
		return fmt.Errorf("%w: region %d does not exist", models.ErrUpsertConflict, rec.RegionID)
	}
	if rec.Cumulative < 0 {
		return fmt.Errorf("%w: negative cumulative %d", models.ErrUpsertConflict, rec.Cumulative)
	}
	return nil
}

func (m *MemoryDBManager) putLocked(rec models.StatRecord) {
	rec.Date = dateOnly(rec.Date)
	m.stats[statKey{rec.PracticeID, rec.RegionID, rec.Date}] = rec
}

func (m *MemoryDBManager) UpsertStats(_ context.Context, records []models.StatRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, rec := range records {
		if err := m.checkLocked(rec); err != nil {
			return fmt.Errorf("batch row %d: %w", i, err)
		}
	}
	for _, rec := range records {
		m.putLocked(rec)
	}
	return nil
}

func (m *MemoryDBManager) UpsertStat(_ context.Context, rec models.StatRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkLocked(rec); err != nil {
		return err
	}
	m.putLocked(rec)
	return nil
}

// Stats returns every stored record ordered by practice, date and region.
func (m *MemoryDBManager) Stats() []models.StatRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.StatRecord, 0, len(m.stats))
	for _, rec := range m.stats {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.PracticeID != b.PracticeID {
			return a.PracticeID < b.PracticeID
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.RegionID < b.RegionID
	})
	return out
}

func (m *MemoryDBManager) InsertFileRecord(_ context.Context, fileName string, _ time.Time, status, checksum string, dataDate time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := len(m.files) + 1
	m.files = append(m.files, memoryFileRecord{ID: id, Name: fileName, Status: status, Checksum: checksum, DataDate: dateOnly(dataDate)})
	return id, nil
}

func (m *MemoryDBManager) UpdateFileStatus(_ context.Context, fileID int, status string, errors any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fileID < 1 || fileID > len(m.files) {
		return fmt.Errorf("file record %d not found", fileID)
	}
	m.files[fileID-1].Status = status
	m.files[fileID-1].Errors = errors
	return nil
}

// FileStatus returns the ledger status of the latest record for fileName.
func (m *MemoryDBManager) FileStatus(fileName string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.files) - 1; i >= 0; i-- {
		if m.files[i].Name == fileName {
			return m.files[i].Status, true
		}
	}
	return "", false
}

func (m *MemoryDBManager) IsFileAlreadyProcessed(_ context.Context, fileName, checksum string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.files {
		if f.Name == fileName && f.Checksum == checksum && f.Status == FileStatusDone {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryDBManager) GetStats(_ context.Context, practice string, date time.Time) ([]models.StatView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	practiceID, ok := m.findLocked(models.PracticeCatalog, practice)
	if !ok {
		return nil, nil
	}
	day := dateOnly(date)
	var views []models.StatView
	for k, rec := range m.stats {
		if k.practiceID != practiceID || !k.date.Equal(day) {
			continue
		}
		views = append(views, models.StatView{
			Practice:   m.catalogs[models.PracticeCatalog][practiceID],
			Region:     m.catalogs[models.RegionCatalog][k.regionID],
			RegionID:   k.regionID,
			Date:       rec.Date,
			Cumulative: rec.Cumulative,
			Daily:      rec.Daily,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].RegionID < views[j].RegionID })
	return views, nil
}

func (m *MemoryDBManager) LatestDate(_ context.Context, practice string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	practiceID, ok := m.findLocked(models.PracticeCatalog, practice)
	if !ok {
		return time.Time{}, false, nil
	}
	var latest time.Time
	for k := range m.stats {
		if k.practiceID == practiceID && k.date.After(latest) {
			latest = k.date
		}
	}
	return latest, !latest.IsZero(), nil
}
