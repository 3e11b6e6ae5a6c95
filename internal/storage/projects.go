package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marcboeker/go-duckdb"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/roomify/backend/internal/models"
)

// Driver selects the SQL engine behind SQLStore.
type Driver string

const (
	DriverDuckDB Driver = "duckdb"
	DriverSQLite Driver = "sqlite"
)

// ParseDriver maps a config value to a Driver.
func ParseDriver(s string) (Driver, error) {
	switch Driver(strings.ToLower(strings.TrimSpace(s))) {
	case "", DriverDuckDB:
		return DriverDuckDB, nil
	case DriverSQLite, "sqlite3":
		return DriverSQLite, nil
	default:
		return "", fmt.Errorf("unknown store driver %q", s)
	}
}

// ErrProjectNotFound is returned by Get for unknown ids.
var ErrProjectNotFound = errors.New("project not found")

// ProjectStore persists project records.
type ProjectStore interface {
	Save(ctx context.Context, req models.SaveRequest) (*models.ProjectRecord, error)
	Get(ctx context.Context, id string) (*models.ProjectRecord, error)
	List(ctx context.Context, limit int) ([]models.ProjectRecord, error)
	Close() error
}

// SQLStore implements ProjectStore on DuckDB or SQLite.
type SQLStore struct {
	db     *sql.DB
	driver Driver
	path   string
	log    zerolog.Logger
}

const projectsSchema = `
	CREATE TABLE IF NOT EXISTS projects (
		id             VARCHAR PRIMARY KEY,
		name           VARCHAR NOT NULL,
		source_image   VARCHAR NOT NULL,
		rendered_image VARCHAR,
		visibility     VARCHAR NOT NULL,
		timestamp      BIGINT NOT NULL
	)
`

// OpenProjectStore opens (creating if needed) the project database at path.
func OpenProjectStore(d Driver, path string, log zerolog.Logger) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	var (
		db  *sql.DB
		err error
	)
	switch d {
	case DriverDuckDB:
		db, err = openDuckDB(path, log)
	case DriverSQLite:
		db, err = openSQLite(path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", d)
	}
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(projectsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating projects table: %w", err)
	}

	log.Info().Str("driver", string(d)).Str("path", path).Msg("project store opened")
	return &SQLStore{db: db, driver: d, path: path, log: log}, nil
}

func openDuckDB(path string, log zerolog.Logger) (*sql.DB, error) {
	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				log.Warn().Err(err).Str("pragma", pragma).Msg("duckdb pragma failed")
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}
	return sql.OpenDB(connector), nil
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	return db, nil
}

// Save inserts the record and returns the stored copy.
func (s *SQLStore) Save(ctx context.Context, req models.SaveRequest) (*models.ProjectRecord, error) {
	item := req.Item
	if item.ID == "" {
		return nil, errors.New("project id is required")
	}
	vis := req.Visibility
	if vis == "" {
		vis = models.VisibilityPrivate
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, source_image, rendered_image, visibility, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.Name, item.SourceImage, nullString(item.RenderedImage), string(vis), item.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting project %s: %w", item.ID, err)
	}
	return &item, nil
}

// Get loads one record.
func (s *SQLStore) Get(ctx context.Context, id string) (*models.ProjectRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, source_image, rendered_image, timestamp FROM projects WHERE id = ?`, id)
	rec, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading project %s: %w", id, err)
	}
	return rec, nil
}

// List returns up to limit records, newest first. limit <= 0 means all.
func (s *SQLStore) List(ctx context.Context, limit int) ([]models.ProjectRecord, error) {
	query := `SELECT id, name, source_image, rendered_image, timestamp FROM projects ORDER BY timestamp DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	defer rows.Close()

	var out []models.ProjectRecord
	for rows.Next() {
		rec, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Driver returns the engine in use.
func (s *SQLStore) Driver() Driver {
	return s.driver
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(sc scanner) (*models.ProjectRecord, error) {
	var (
		rec      models.ProjectRecord
		rendered sql.NullString
	)
	if err := sc.Scan(&rec.ID, &rec.Name, &rec.SourceImage, &rendered, &rec.Timestamp); err != nil {
		return nil, err
	}
	rec.RenderedImage = rendered.String
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
