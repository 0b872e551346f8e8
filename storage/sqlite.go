package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"closet_backup/models"
)

// SQLiteStore holds operational data: run history, run logs, per-closet
// stats, and the command queue the daemon polls.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS backup_runs (
		id INTEGER PRIMARY KEY,
		closet_id TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		links_found INTEGER,
		pages_fetched INTEGER,
		listings_new INTEGER,
		listings_updated INTEGER,
		listings_skipped INTEGER,
		errors_count INTEGER
	);

	CREATE TABLE IF NOT EXISTS backup_logs (
		id INTEGER PRIMARY KEY,
		run_id INTEGER,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		closet_id TEXT
	);

	CREATE TABLE IF NOT EXISTS closet_stats (
		closet_id TEXT PRIMARY KEY,
		last_run_at DATETIME,
		last_run_status TEXT,
		total_backed_up INTEGER,
		success_rate REAL,
		avg_run_duration_sec INTEGER
	);

	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_logs_run ON backup_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON backup_runs(status, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateRun(run *models.BackupRun) (int64, error) {
	result, err := s.db.Exec(`
		INSERT INTO backup_runs (closet_id, started_at, status, links_found, pages_fetched,
			listings_new, listings_updated, listings_skipped, errors_count)
		VALUES (?, ?, ?, 0, 0, 0, 0, 0, 0)`,
		run.ClosetID, run.StartedAt, run.Status)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(run *models.BackupRun) error {
	_, err := s.db.Exec(`
		UPDATE backup_runs SET finished_at = ?, status = ?, links_found = ?, pages_fetched = ?,
			listings_new = ?, listings_updated = ?, listings_skipped = ?, errors_count = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.LinksFound, run.PagesFetched,
		run.ListingsNew, run.ListingsUpdated, run.ListingsSkipped, run.ErrorsCount, run.ID)
	return err
}

func (s *SQLiteStore) Log(runID *int64, level models.LogLevel, message, closetID string) error {
	_, err := s.db.Exec(`
		INSERT INTO backup_logs (run_id, timestamp, level, message, closet_id)
		VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now(), level, message, closetID)
	return err
}

// UpdateClosetStats recomputes the per-closet aggregate row from run history.
func (s *SQLiteStore) UpdateClosetStats(closetID string, totalBackedUp int) error {
	_, err := s.db.Exec(`
		INSERT INTO closet_stats (closet_id, last_run_at, last_run_status, total_backed_up,
			success_rate, avg_run_duration_sec)
		SELECT
			?,
			(SELECT started_at FROM backup_runs WHERE closet_id = ? ORDER BY started_at DESC LIMIT 1),
			(SELECT status FROM backup_runs WHERE closet_id = ? ORDER BY started_at DESC LIMIT 1),
			?,
			(SELECT CAST(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) AS REAL) /
				NULLIF(COUNT(*), 0) FROM backup_runs WHERE closet_id = ?),
			(SELECT AVG(CAST((julianday(finished_at) - julianday(started_at)) * 86400 AS INTEGER))
				FROM backup_runs WHERE closet_id = ? AND finished_at IS NOT NULL)
		ON CONFLICT(closet_id) DO UPDATE SET
			last_run_at = excluded.last_run_at,
			last_run_status = excluded.last_run_status,
			total_backed_up = excluded.total_backed_up,
			success_rate = excluded.success_rate,
			avg_run_duration_sec = excluded.avg_run_duration_sec`,
		closetID, closetID, closetID, totalBackedUp, closetID, closetID)
	return err
}

func (s *SQLiteStore) GetClosetStats(closetID string) (*models.ClosetStats, error) {
	row := s.db.QueryRow(`
		SELECT closet_id, last_run_at, last_run_status, total_backed_up, success_rate, avg_run_duration_sec
		FROM closet_stats WHERE closet_id = ?`, closetID)

	var st models.ClosetStats
	var lastStatus sql.NullString
	var successRate sql.NullFloat64
	var avgDur sql.NullInt64
	err := row.Scan(&st.ClosetID, &st.LastRunAt, &lastStatus, &st.TotalBackedUp, &successRate, &avgDur)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.LastRunStatus = lastStatus.String
	st.SuccessRate = successRate.Float64
	st.AvgRunDurationSec = int(avgDur.Int64)
	return &st, nil
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, COALESCE(params, '{}'), created_at
		FROM commands WHERE processed_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var cmd models.Command
		var params string
		if err := rows.Scan(&cmd.ID, &cmd.Command, &params, &cmd.CreatedAt); err != nil {
			return nil, err
		}
		cmd.Params = json.RawMessage(params)
		cmds = append(cmds, cmd)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

func (s *SQLiteStore) ParseCommandParams(cmd *models.Command) (*models.CommandParams, error) {
	params := &models.CommandParams{}
	if len(cmd.Params) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(cmd.Params, params); err != nil {
		return nil, err
	}
	return params, nil
}
