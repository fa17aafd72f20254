package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gpazo-prog/scraper-enargas/internal/models"
	"github.com/gpazo-prog/scraper-enargas/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectDB opens a pool and pings it; both must succeed within timeout.
func ConnectDB(ctx context.Context, connStr string, timeout time.Duration) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid connection string: %v", models.ErrStoreConnection, err)
	}
	cfg.ConnConfig.ConnectTimeout = timeout

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dbpool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to connect to database: %v", models.ErrStoreConnection, err)
	}
	if err := dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("%w: unable to reach database: %v", models.ErrStoreConnection, err)
	}

	return dbpool, nil
}

type PostgresDBManager struct {
	dbpool *pgxpool.Pool
	log    logger.Logger
}

func NewPostgresDBManager(pool *pgxpool.Pool, log logger.Logger) *PostgresDBManager {
	if log == nil {
		log = logger.NewNop()
	}
	return &PostgresDBManager{dbpool: pool, log: log.Named("postgres")}
}

func (m *PostgresDBManager) Close() {
	m.dbpool.Close()
}

func (m *PostgresDBManager) CreateTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS practicas (
			id SERIAL PRIMARY KEY,
			nombre VARCHAR(255) NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS provincias (
			id SERIAL PRIMARY KEY,
			nombre VARCHAR(255) NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS estadisticas_diarias (
			id BIGSERIAL PRIMARY KEY,
			practica_id INTEGER NOT NULL REFERENCES practicas(id),
			provincia_id INTEGER NOT NULL REFERENCES provincias(id),
			fecha DATE NOT NULL,
			acumulado BIGINT NOT NULL CHECK (acumulado >= 0),
			diario BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (practica_id, provincia_id, fecha)
		);`,
		// Older deployments created the table without the daily column.
		`ALTER TABLE estadisticas_diarias ADD COLUMN IF NOT EXISTS diario BIGINT NOT NULL DEFAULT 0;`,
		`ALTER TABLE estadisticas_diarias ADD COLUMN IF NOT EXISTS updated_at TIMESTAMPTZ NOT NULL DEFAULT now();`,
		`CREATE TABLE IF NOT EXISTS file_records (
			id SERIAL PRIMARY KEY,
			file_name VARCHAR(255) NOT NULL,
			processed_at TIMESTAMP NOT NULL,
			status VARCHAR(50) NOT NULL CHECK (status IN ('DONE', 'DONE_WITH_ERRORS', 'PROCESSING', 'FATAL')),
			checksum VARCHAR(64),
			data_date DATE,
			errors jsonb
		);`,
		`CREATE INDEX IF NOT EXISTS idx_file_records_name_checksum ON file_records (file_name, checksum, status);`,
	}

	for _, query := range queries {
		if _, err := m.dbpool.Exec(ctx, query); err != nil {
			return fmt.Errorf("error creating schema: %w", err)
		}
	}
	return nil
}

func (m *PostgresDBManager) SeedCatalog(ctx context.Context) error {
	tx, err := m.dbpool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}

	for _, entry := range models.RegionSeed() {
		_, err := tx.Exec(ctx, `INSERT INTO provincias (id, nombre) VALUES ($1, $2) ON CONFLICT DO NOTHING;`, entry.ID, entry.Name)
		if err != nil {
			m.rollback(ctx, tx)
			return fmt.Errorf("error seeding region %q: %w", entry.Name, err)
		}
	}

	var totalName string
	if err := tx.QueryRow(ctx, `SELECT nombre FROM provincias WHERE id = $1;`, models.TotalRegionID).Scan(&totalName); err != nil {
		m.rollback(ctx, tx)
		if errors.Is(err, pgx.ErrNoRows) {
			return checkTotalRegion("", false)
		}
		return fmt.Errorf("error reading total region: %w", err)
	}
	if err := checkTotalRegion(totalName, true); err != nil {
		m.rollback(ctx, tx)
		return err
	}

	// Explicit ids bypass the sequence; move it past them so lazily created entries never collide.
	for _, table := range []string{"provincias", "practicas"} {
		query := fmt.Sprintf(`SELECT setval(pg_get_serial_sequence('%s', 'id'), GREATEST((SELECT COALESCE(MAX(id), 0) FROM %s), 1));`,
			table, pgx.Identifier{table}.Sanitize())
		if _, err := tx.Exec(ctx, query); err != nil {
			m.rollback(ctx, tx)
			return fmt.Errorf("error advancing %s sequence: %w", table, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

func (m *PostgresDBManager) FindCatalogID(ctx context.Context, kind models.CatalogKind, name string) (int, bool, error) {
	query := fmt.Sprintf(`SELECT id FROM %s WHERE lower(nombre) = lower($1) ORDER BY id LIMIT 1;`,
		pgx.Identifier{catalogTable(kind)}.Sanitize())

	var id int
	err := m.dbpool.QueryRow(ctx, query, name).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("error finding %s %q: %w", kind, name, err)
	}
	return id, true, nil
}

func (m *PostgresDBManager) InsertCatalogEntry(ctx context.Context, kind models.CatalogKind, name string) (int, error) {
	// The no-op update makes RETURNING yield the id when a concurrent run inserted it first.
	query := fmt.Sprintf(`
	INSERT INTO %s (nombre) VALUES ($1)
	ON CONFLICT (nombre) DO UPDATE SET nombre = EXCLUDED.nombre
	RETURNING id;`, pgx.Identifier{catalogTable(kind)}.Sanitize())

	var id int
	if err := m.dbpool.QueryRow(ctx, query, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("error inserting %s %q: %w", kind, name, err)
	}
	m.log.Info(ctx, "catalog entry created", logger.String("kind", kind.String()), logger.String("name", name), logger.Int("id", id))
	return id, nil
}

func (m *PostgresDBManager) LatestBefore(ctx context.Context, practiceID, regionID int, date time.Time) (*models.StatRecord, error) {
	query := `
	SELECT fecha, acumulado, diario
	FROM estadisticas_diarias
	WHERE practica_id = $1 AND provincia_id = $2 AND fecha < $3
	ORDER BY fecha DESC
	LIMIT 1;`

	rec := models.StatRecord{PracticeID: practiceID, RegionID: regionID}
	err := m.dbpool.QueryRow(ctx, query, practiceID, regionID, dateOnly(date)).Scan(&rec.Date, &rec.Cumulative, &rec.Daily)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("error querying latest record: %w", err)
	}
	rec.Date = dateOnly(rec.Date)
	return &rec, nil
}

const upsertStatQuery = `
	INSERT INTO estadisticas_diarias (practica_id, provincia_id, fecha, acumulado, diario, updated_at)
	VALUES ($1, $2, $3, $4, $5, now())
	ON CONFLICT (practica_id, provincia_id, fecha)
	DO UPDATE SET acumulado = EXCLUDED.acumulado,
		diario = EXCLUDED.diario,
		updated_at = EXCLUDED.updated_at;`

func (m *PostgresDBManager) UpsertStats(ctx context.Context, records []models.StatRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := m.dbpool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(upsertStatQuery, rec.PracticeID, rec.RegionID, dateOnly(rec.Date), rec.Cumulative, rec.Daily)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range records {
		if _, err := results.Exec(); err != nil {
			results.Close()
			m.rollback(ctx, tx)
			return fmt.Errorf("%w: batch row %d: %v", models.ErrUpsertConflict, i, err)
		}
	}
	if err := results.Close(); err != nil {
		m.rollback(ctx, tx)
		return fmt.Errorf("%w: %v", models.ErrUpsertConflict, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}
	return nil
}

func (m *PostgresDBManager) UpsertStat(ctx context.Context, rec models.StatRecord) error {
	_, err := m.dbpool.Exec(ctx, upsertStatQuery, rec.PracticeID, rec.RegionID, dateOnly(rec.Date), rec.Cumulative, rec.Daily)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrUpsertConflict, err)
	}
	return nil
}

func (m *PostgresDBManager) InsertFileRecord(ctx context.Context, fileName string, processedAt time.Time, status, checksum string, dataDate time.Time) (int, error) {
	query := `
	INSERT INTO file_records (file_name, processed_at, status, checksum, data_date)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id;`

	var fileID int
	err := m.dbpool.QueryRow(ctx, query, fileName, processedAt, status, checksum, dateOnly(dataDate)).Scan(&fileID)
	if err != nil {
		return 0, fmt.Errorf("error inserting file record: %w", err)
	}

	return fileID, nil
}

func (m *PostgresDBManager) UpdateFileStatus(ctx context.Context, fileID int, status string, errors any) error {
	query := `
	UPDATE file_records
	SET status = $1,
		errors = $2
	WHERE id = $3;`

	_, err := m.dbpool.Exec(ctx, query, status, errors, fileID)
	if err != nil {
		return fmt.Errorf("error updating file status: %w", err)
	}

	return nil
}

func (m *PostgresDBManager) IsFileAlreadyProcessed(ctx context.Context, fileName, checksum string) (bool, error) {
	query := `
	SELECT id
	FROM file_records
	WHERE file_name = $1 AND checksum = $2 AND status = 'DONE'
	LIMIT 1;`

	var id int
	err := m.dbpool.QueryRow(ctx, query, fileName, checksum).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("error finding file record by checksum: %w", err)
	}

	return true, nil
}

func (m *PostgresDBManager) GetStats(ctx context.Context, practice string, date time.Time) ([]models.StatView, error) {
	query := `
	SELECT p.nombre, r.nombre, e.provincia_id, e.fecha, e.acumulado, e.diario
	FROM estadisticas_diarias e
	JOIN practicas p ON p.id = e.practica_id
	JOIN provincias r ON r.id = e.provincia_id
	WHERE lower(p.nombre) = lower($1) AND e.fecha = $2
	ORDER BY e.provincia_id;`

	rows, err := m.dbpool.Query(ctx, query, practice, dateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("error querying stats: %w", err)
	}

	views, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.StatView, error) {
		var v models.StatView
		err := row.Scan(&v.Practice, &v.Region, &v.RegionID, &v.Date, &v.Cumulative, &v.Daily)
		v.Date = dateOnly(v.Date)
		return v, err
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning stats: %w", err)
	}
	return views, nil
}

func (m *PostgresDBManager) LatestDate(ctx context.Context, practice string) (time.Time, bool, error) {
	query := `
	SELECT MAX(e.fecha)
	FROM estadisticas_diarias e
	JOIN practicas p ON p.id = e.practica_id
	WHERE lower(p.nombre) = lower($1);`

	var latest *time.Time
	if err := m.dbpool.QueryRow(ctx, query, practice).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("error querying latest date: %w", err)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return dateOnly(*latest), true, nil
}

func (m *PostgresDBManager) rollback(ctx context.Context, tx pgx.Tx) {
	if rx := tx.Rollback(ctx); rx != nil {
		m.log.Error(ctx, "error rolling back transaction", logger.Error(rx))
	}
}
