package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gpazo-prog/scraper-enargas/internal/models"
	"github.com/gpazo-prog/scraper-enargas/pkg/logger"
	_ "modernc.org/sqlite"
)

// SQLite stores dates as TEXT in this layout so they sort and compare lexically.
const sqliteDateLayout = "2006-01-02"

type SQLiteDBManager struct {
	db  *sql.DB
	log logger.Logger
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(ctx context.Context, path string, timeout time.Duration, log logger.Logger) (*SQLiteDBManager, error) {
	if log == nil {
		log = logger.NewNop()
	}

	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite %s: %v", models.ErrStoreConnection, path, err)
	}
	// One writer at a time; concurrent workers queue on the pool instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: sqlite %s: %v", models.ErrStoreConnection, path, err)
	}

	return &SQLiteDBManager{db: db, log: log.Named("sqlite")}, nil
}

func (m *SQLiteDBManager) Close() {
	if err := m.db.Close(); err != nil {
		m.log.Error(context.Background(), "error closing sqlite database", logger.Error(err))
	}
}

func (m *SQLiteDBManager) CreateTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS practicas (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			nombre TEXT NOT NULL UNIQUE COLLATE NOCASE
		);`,
		`CREATE TABLE IF NOT EXISTS provincias (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			nombre TEXT NOT NULL UNIQUE COLLATE NOCASE
		);`,
		`CREATE TABLE IF NOT EXISTS estadisticas_diarias (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			practica_id INTEGER NOT NULL REFERENCES practicas(id),
			provincia_id INTEGER NOT NULL REFERENCES provincias(id),
			fecha TEXT NOT NULL,
			acumulado INTEGER NOT NULL CHECK (acumulado >= 0),
			diario INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL,
			UNIQUE (practica_id, provincia_id, fecha)
		);`,
		`CREATE TABLE IF NOT EXISTS file_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_name TEXT NOT NULL,
			processed_at TEXT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('DONE', 'DONE_WITH_ERRORS', 'PROCESSING', 'FATAL')),
			checksum TEXT,
			data_date TEXT,
			errors TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_file_records_name_checksum ON file_records (file_name, checksum, status);`,
	}

	for _, query := range queries {
		if _, err := m.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("error creating schema: %w", err)
		}
	}
	return nil
}

func (m *SQLiteDBManager) SeedCatalog(ctx context.Context) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, entry := range models.RegionSeed() {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO provincias (id, nombre) VALUES (?, ?);`, entry.ID, entry.Name); err != nil {
			return fmt.Errorf("error seeding region %q: %w", entry.Name, err)
		}
	}

	var totalName string
	if err := tx.QueryRowContext(ctx, `SELECT nombre FROM provincias WHERE id = ?;`, models.TotalRegionID).Scan(&totalName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return checkTotalRegion("", false)
		}
		return fmt.Errorf("error reading total region: %w", err)
	}
	if err := checkTotalRegion(totalName, true); err != nil {
		return err
	}
	return tx.Commit()
}

func (m *SQLiteDBManager) FindCatalogID(ctx context.Context, kind models.CatalogKind, name string) (int, bool, error) {
	// nombre is COLLATE NOCASE, which folds ASCII only.
	query := fmt.Sprintf(`SELECT id FROM %s WHERE nombre = ? ORDER BY id LIMIT 1;`, catalogTable(kind))

	var id int
	err := m.db.QueryRowContext(ctx, query, name).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("error finding %s %q: %w", kind, name, err)
	}
	return id, true, nil
}

func (m *SQLiteDBManager) InsertCatalogEntry(ctx context.Context, kind models.CatalogKind, name string) (int, error) {
	query := fmt.Sprintf(`INSERT INTO %s (nombre) VALUES (?)
	ON CONFLICT (nombre) DO UPDATE SET nombre = nombre
	RETURNING id;`, catalogTable(kind))

	var id int
	if err := m.db.QueryRowContext(ctx, query, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("error inserting %s %q: %w", kind, name, err)
	}
	m.log.Info(ctx, "catalog entry created", logger.String("kind", kind.String()), logger.String("name", name), logger.Int("id", id))
	return id, nil
}

func (m *SQLiteDBManager) LatestBefore(ctx context.Context, practiceID, regionID int, date time.Time) (*models.StatRecord, error) {
	query := `
	SELECT fecha, acumulado, diario
	FROM estadisticas_diarias
	WHERE practica_id = ? AND provincia_id = ? AND fecha < ?
	ORDER BY fecha DESC
	LIMIT 1;`

	rec := models.StatRecord{PracticeID: practiceID, RegionID: regionID}
	var fecha string
	err := m.db.QueryRowContext(ctx, query, practiceID, regionID, date.Format(sqliteDateLayout)).Scan(&fecha, &rec.Cumulative, &rec.Daily)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error querying latest record: %w", err)
	}
	if rec.Date, err = time.Parse(sqliteDateLayout, fecha); err != nil {
		return nil, fmt.Errorf("error parsing stored date %q: %w", fecha, err)
	}
	return &rec, nil
}

const sqliteUpsertStatQuery = `
	INSERT INTO estadisticas_diarias (practica_id, provincia_id, fecha, acumulado, diario, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (practica_id, provincia_id, fecha)
	DO UPDATE SET acumulado = excluded.acumulado,
		diario = excluded.diario,
		updated_at = excluded.updated_at;`

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func sqliteUpsert(ctx context.Context, db sqlExecer, rec models.StatRecord) error {
	_, err := db.ExecContext(ctx, sqliteUpsertStatQuery,
		rec.PracticeID, rec.RegionID, rec.Date.Format(sqliteDateLayout), rec.Cumulative, rec.Daily,
		time.Now().UTC().Format(time.RFC3339))
	return err
}

func (m *SQLiteDBManager) UpsertStats(ctx context.Context, records []models.StatRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for i, rec := range records {
		if err := sqliteUpsert(ctx, tx, rec); err != nil {
			return fmt.Errorf("%w: batch row %d: %v", models.ErrUpsertConflict, i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

func (m *SQLiteDBManager) UpsertStat(ctx context.Context, rec models.StatRecord) error {
	if err := sqliteUpsert(ctx, m.db, rec); err != nil {
		return fmt.Errorf("%w: %v", models.ErrUpsertConflict, err)
	}
	return nil
}

func (m *SQLiteDBManager) InsertFileRecord(ctx context.Context, fileName string, processedAt time.Time, status, checksum string, dataDate time.Time) (int, error) {
	res, err := m.db.ExecContext(ctx,
		`INSERT INTO file_records (file_name, processed_at, status, checksum, data_date) VALUES (?, ?, ?, ?, ?);`,
		fileName, processedAt.UTC().Format(time.RFC3339), status, checksum, dataDate.Format(sqliteDateLayout))
	if err != nil {
		return 0, fmt.Errorf("error inserting file record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("error reading file record id: %w", err)
	}
	return int(id), nil
}

func (m *SQLiteDBManager) UpdateFileStatus(ctx context.Context, fileID int, status string, errs any) error {
	var payload any
	if errs != nil {
		raw, err := json.Marshal(errs)
		if err != nil {
			return fmt.Errorf("error encoding file errors: %w", err)
		}
		payload = string(raw)
	}

	if _, err := m.db.ExecContext(ctx, `UPDATE file_records SET status = ?, errors = ? WHERE id = ?;`, status, payload, fileID); err != nil {
		return fmt.Errorf("error updating file status: %w", err)
	}
	return nil
}

func (m *SQLiteDBManager) IsFileAlreadyProcessed(ctx context.Context, fileName, checksum string) (bool, error) {
	var id int
	err := m.db.QueryRowContext(ctx, `SELECT id FROM file_records WHERE file_name = ? AND checksum = ? AND status = 'DONE' LIMIT 1;`, fileName, checksum).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("error finding file record by checksum: %w", err)
	}
	return true, nil
}

func (m *SQLiteDBManager) GetStats(ctx context.Context, practice string, date time.Time) ([]models.StatView, error) {
	query := `
	SELECT p.nombre, r.nombre, e.provincia_id, e.fecha, e.acumulado, e.diario
	FROM estadisticas_diarias e
	JOIN practicas p ON p.id = e.practica_id
	JOIN provincias r ON r.id = e.provincia_id
	WHERE p.nombre = ? AND e.fecha = ?
	ORDER BY e.provincia_id;`

	rows, err := m.db.QueryContext(ctx, query, practice, date.Format(sqliteDateLayout))
	if err != nil {
		return nil, fmt.Errorf("error querying stats: %w", err)
	}
	defer rows.Close()

	var views []models.StatView
	for rows.Next() {
		var (
			v     models.StatView
			fecha string
		)
		if err := rows.Scan(&v.Practice, &v.Region, &v.RegionID, &fecha, &v.Cumulative, &v.Daily); err != nil {
			return nil, fmt.Errorf("error scanning stats: %w", err)
		}
		if v.Date, err = time.Parse(sqliteDateLayout, fecha); err != nil {
			return nil, fmt.Errorf("error parsing stored date %q: %w", fecha, err)
		}
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}
	return views, nil
}

func (m *SQLiteDBManager) LatestDate(ctx context.Context, practice string) (time.Time, bool, error) {
	query := `
	SELECT MAX(e.fecha)
	FROM estadisticas_diarias e
	JOIN practicas p ON p.id = e.practica_id
	WHERE p.nombre = ?;`

	var latest sql.NullString
	if err := m.db.QueryRowContext(ctx, query, practice).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("error querying latest date: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	d, err := time.Parse(sqliteDateLayout, latest.String)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("error parsing stored date %q: %w", latest.String, err)
	}
	return d, true, nil
}
