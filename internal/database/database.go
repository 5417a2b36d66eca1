package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"bundle-deployer/internal/logger"
	"bundle-deployer/internal/models"
)

const createTable = `
CREATE TABLE IF NOT EXISTS deployments (
	id TEXT PRIMARY KEY,
	project TEXT NOT NULL,
	environment TEXT NOT NULL,
	store_id TEXT NOT NULL,
	object_key TEXT NOT NULL,
	status TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	lifecycle_event TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deployments_project_env ON deployments (project, environment);`

// Open opens the SQLite database at dbPath and creates the schema.
func Open(dbPath string) (*sql.DB, error) {
	log := logger.WithModule("database").WithField("path", dbPath)
	log.Info("Initializing database connection")

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Info("Database tables initialized")

	return db, nil
}

// InitDB opens the database and exits the process on failure.
func InitDB(dbPath string) *sql.DB {
	db, err := Open(dbPath)
	if err != nil {
		logger.WithModule("database").WithError(err).Fatal("Failed to initialize database")
	}
	return db
}

func InsertDeployment(db *sql.DB, rec models.DeploymentRecord) error {
	stmt, err := db.Prepare(`INSERT INTO deployments
		(id, project, environment, store_id, object_key, status, message, lifecycle_event, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(rec.ID, rec.Project, rec.Environment, rec.StoreID, rec.ObjectKey,
		string(rec.Status), rec.Message, string(rec.LifecycleEvent), rec.CreatedAt.UTC(), rec.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert deployment: %w", err)
	}
	return nil
}

func UpdateDeploymentStatus(db *sql.DB, id string, status models.Status, message string, phase models.Phase, at time.Time) error {
	stmt, err := db.Prepare(`UPDATE deployments
		SET status = ?, message = ?, lifecycle_event = ?, updated_at = ?
		WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(string(status), message, string(phase), at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update deployment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const selectColumns = `SELECT id, project, environment, store_id, object_key, status, message, lifecycle_event, created_at, updated_at FROM deployments`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (models.DeploymentRecord, error) {
	var rec models.DeploymentRecord
	var status, phase string
	err := row.Scan(&rec.ID, &rec.Project, &rec.Environment, &rec.StoreID, &rec.ObjectKey,
		&status, &rec.Message, &phase, &rec.CreatedAt, &rec.UpdatedAt)
	rec.Status = models.Status(status)
	rec.LifecycleEvent = models.Phase(phase)
	return rec, err
}

func GetDeployment(db *sql.DB, id string) (models.DeploymentRecord, error) {
	return scanRecord(db.QueryRow(selectColumns+` WHERE id = ?`, id))
}

// ListDeployments returns records newest first. Empty filters match everything.
func ListDeployments(db *sql.DB, project, environment string) ([]models.DeploymentRecord, error) {
	rows, err := db.Query(selectColumns+`
		WHERE (? = '' OR project = ?) AND (? = '' OR environment = ?)
		ORDER BY created_at DESC, rowid DESC`, project, project, environment, environment)
	if err != nil {
		return nil, fmt.Errorf("failed to query deployments: %w", err)
	}
	defer rows.Close()

	var records []models.DeploymentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Recorder persists deployment progress for the orchestrator.
type Recorder struct {
	db *sql.DB
}

func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db}
}

func (r *Recorder) Begin(rec models.DeploymentRecord) error {
	return InsertDeployment(r.db, rec)
}

func (r *Recorder) Update(event models.DeploymentEvent) error {
	return UpdateDeploymentStatus(r.db, event.DeploymentID, event.Status, event.Message, event.LifecycleEvent, event.Timestamp)
}
