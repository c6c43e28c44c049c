package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hkjang/codelens/internal/analysis"
	_ "modernc.org/sqlite"
)

// Compile-time assertion: *SQLiteSink satisfies Store.
var _ Store = (*SQLiteSink)(nil)

// SQLiteSink implements Store on a SQLite database file. Timestamps are
// stored as RFC 3339 text and result sources as a JSON array, so rows stay
// readable with any sqlite3 shell.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (or creates) a SQLite-backed sink at the given path.
// Creates parent directories if needed. Enables WAL mode and a busy timeout.
func NewSQLiteSink(ctx context.Context, dbPath string) (*SQLiteSink, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create sink directory: %w", err)
	}

	// Note: modernc.org/sqlite doesn't support _foreign_keys in the
	// connection string, so it is enabled with a PRAGMA below.
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open sink database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	// One connection serializes writers; WAL and the busy timeout cover
	// the rest.
	db.SetMaxOpenConns(1)

	s := &SQLiteSink{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize sink schema: %w", err)
	}
	return s, nil
}

// initSchema creates all required tables if they don't exist.
func (s *SQLiteSink) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS executions (
		id            TEXT PRIMARY KEY,
		root          TEXT NOT NULL,
		status        TEXT NOT NULL,
		error         TEXT NOT NULL DEFAULT '',
		file_count    INTEGER NOT NULL DEFAULT 0,
		finding_count INTEGER NOT NULL DEFAULT 0,
		started_at    TEXT NOT NULL,
		completed_at  TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_executions_started_at ON executions(started_at);

	CREATE TABLE IF NOT EXISTS stage_executions (
		execution_id TEXT NOT NULL,
		stage        INTEGER NOT NULL,
		status       TEXT NOT NULL,
		progress     INTEGER NOT NULL DEFAULT 0,
		message      TEXT NOT NULL DEFAULT '',
		error        TEXT NOT NULL DEFAULT '',
		started_at   TEXT,
		completed_at TEXT,
		PRIMARY KEY (execution_id, stage),
		FOREIGN KEY (execution_id) REFERENCES executions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS results (
		execution_id  TEXT NOT NULL,
		id            TEXT NOT NULL,
		file_path     TEXT NOT NULL,
		line_start    INTEGER NOT NULL,
		line_end      INTEGER NOT NULL,
		language      TEXT NOT NULL DEFAULT '',
		main_category TEXT NOT NULL,
		sub_category  TEXT NOT NULL,
		rule_id       TEXT NOT NULL DEFAULT '',
		severity      TEXT NOT NULL,
		message       TEXT NOT NULL,
		suggestion    TEXT NOT NULL DEFAULT '',
		confidence    REAL NOT NULL,
		deterministic INTEGER NOT NULL,
		sources       TEXT NOT NULL,
		position      INTEGER NOT NULL,
		created_at    TEXT NOT NULL,
		PRIMARY KEY (execution_id, id),
		FOREIGN KEY (execution_id) REFERENCES executions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_results_position ON results(execution_id, position);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// --- Writes ---

// SaveExecution upserts an execution record keyed by ID.
func (s *SQLiteSink) SaveExecution(ctx context.Context, rec analysis.ExecutionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (id, root, status, error, file_count, finding_count, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			root = excluded.root,
			status = excluded.status,
			error = excluded.error,
			file_count = excluded.file_count,
			finding_count = excluded.finding_count,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`, rec.ID, rec.Root, string(rec.Status), rec.Error, rec.FileCount, rec.FindingCount,
		timeText(rec.StartedAt), nullTimeText(rec.CompletedAt))
	if err != nil {
		return fmt.Errorf("save execution %s: %w", rec.ID, err)
	}
	return nil
}

// SaveStageExecution upserts stage bookkeeping keyed by (executionID, stage).
func (s *SQLiteSink) SaveStageExecution(ctx context.Context, se analysis.StageExecution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stage_executions (execution_id, stage, status, progress, message, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(execution_id, stage) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			message = excluded.message,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`, se.ExecutionID, int(se.Stage), string(se.Status), se.Progress, se.Message, se.Error,
		nullTimeText(se.StartedAt), nullTimeText(se.CompletedAt))
	if err != nil {
		return fmt.Errorf("save stage %s/%s: %w", se.ExecutionID, se.Stage, err)
	}
	return nil
}

// SaveResults upserts results keyed by (executionID, resultID) in a single
// transaction. The slice index is stored as each row's position so reads
// preserve the order of the most recent save.
func (s *SQLiteSink) SaveResults(ctx context.Context, executionID string, results []analysis.NormalizedResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, r := range results {
		sources, err := encodeSources(r.Sources)
		if err != nil {
			return fmt.Errorf("encode sources for result %s: %w", r.ID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO results (execution_id, id, file_path, line_start, line_end, language,
				main_category, sub_category, rule_id, severity, message, suggestion,
				confidence, deterministic, sources, position, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(execution_id, id) DO UPDATE SET
				file_path = excluded.file_path,
				line_start = excluded.line_start,
				line_end = excluded.line_end,
				language = excluded.language,
				main_category = excluded.main_category,
				sub_category = excluded.sub_category,
				rule_id = excluded.rule_id,
				severity = excluded.severity,
				message = excluded.message,
				suggestion = excluded.suggestion,
				confidence = excluded.confidence,
				deterministic = excluded.deterministic,
				sources = excluded.sources,
				position = excluded.position,
				created_at = excluded.created_at
		`, executionID, r.ID, r.FilePath, r.LineStart, r.LineEnd, string(r.Language),
			string(r.MainCategory), r.SubCategory, r.RuleID, string(r.Severity), r.Message, r.Suggestion,
			r.Confidence, r.Deterministic, sources, i, timeText(r.CreatedAt))
		if err != nil {
			return fmt.Errorf("save result %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit results: %w", err)
	}
	return nil
}

// --- Reads ---

// Execution returns the record for executionID, or nil if not found.
func (s *SQLiteSink) Execution(ctx context.Context, executionID string) (*analysis.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, root, status, error, file_count, finding_count, started_at, completed_at
		FROM executions WHERE id = ?
	`, executionID)

	rec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load execution %s: %w", executionID, err)
	}
	return &rec, nil
}

// Executions returns all execution records, newest first.
func (s *SQLiteSink) Executions(ctx context.Context) ([]analysis.ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, root, status, error, file_count, finding_count, started_at, completed_at
		FROM executions ORDER BY started_at DESC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []analysis.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// StageExecutions returns stage bookkeeping for executionID in stage order.
func (s *SQLiteSink) StageExecutions(ctx context.Context, executionID string) ([]analysis.StageExecution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_id, stage, status, progress, message, error, started_at, completed_at
		FROM stage_executions WHERE execution_id = ? ORDER BY stage ASC
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list stages for %s: %w", executionID, err)
	}
	defer rows.Close()

	var out []analysis.StageExecution
	for rows.Next() {
		var (
			se                     analysis.StageExecution
			stage                  int
			status                 string
			startedAt, completedAt sql.NullString
		)
		if err := rows.Scan(&se.ExecutionID, &stage, &status, &se.Progress, &se.Message, &se.Error,
			&startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan stage execution: %w", err)
		}
		se.Stage = analysis.Stage(stage)
		se.Status = analysis.StageStatus(status)
		if se.StartedAt, err = parseNullTime(startedAt); err != nil {
			return nil, fmt.Errorf("parse stage started_at: %w", err)
		}
		if se.CompletedAt, err = parseNullTime(completedAt); err != nil {
			return nil, fmt.Errorf("parse stage completed_at: %w", err)
		}
		out = append(out, se)
	}
	return out, rows.Err()
}

// Results returns the results for executionID in last-saved order.
func (s *SQLiteSink) Results(ctx context.Context, executionID string) ([]analysis.NormalizedResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_path, line_start, line_end, language, main_category, sub_category,
			rule_id, severity, message, suggestion, confidence, deterministic, sources, created_at
		FROM results WHERE execution_id = ? ORDER BY position ASC
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("list results for %s: %w", executionID, err)
	}
	defer rows.Close()

	var out []analysis.NormalizedResult
	for rows.Next() {
		var (
			r                                                    analysis.NormalizedResult
			language, mainCategory, severity, sources, createdAt string
		)
		if err := rows.Scan(&r.ID, &r.FilePath, &r.LineStart, &r.LineEnd, &language, &mainCategory,
			&r.SubCategory, &r.RuleID, &severity, &r.Message, &r.Suggestion,
			&r.Confidence, &r.Deterministic, &sources, &createdAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.ExecutionID = executionID
		r.Language = analysis.Language(language)
		r.MainCategory = analysis.MainCategory(mainCategory)
		r.Severity = analysis.Severity(severity)
		if r.Sources, err = decodeSources(sources); err != nil {
			return nil, fmt.Errorf("decode sources for result %s: %w", r.ID, err)
		}
		if r.CreatedAt, err = parseTimeText(createdAt); err != nil {
			return nil, fmt.Errorf("parse result created_at: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// --- Encoding helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (analysis.ExecutionRecord, error) {
	var (
		rec         analysis.ExecutionRecord
		status      string
		startedAt   string
		completedAt sql.NullString
	)
	err := row.Scan(&rec.ID, &rec.Root, &status, &rec.Error, &rec.FileCount, &rec.FindingCount,
		&startedAt, &completedAt)
	if err != nil {
		return analysis.ExecutionRecord{}, err
	}
	rec.Status = analysis.ExecutionStatus(status)
	if rec.StartedAt, err = parseTimeText(startedAt); err != nil {
		return analysis.ExecutionRecord{}, fmt.Errorf("parse started_at: %w", err)
	}
	if rec.CompletedAt, err = parseNullTime(completedAt); err != nil {
		return analysis.ExecutionRecord{}, fmt.Errorf("parse completed_at: %w", err)
	}
	return rec, nil
}

func timeText(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTimeText(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeText(*t)
}

func parseTimeText(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func encodeSources(sources []analysis.AgentType) (string, error) {
	b, err := json.Marshal(sources)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeSources(text string) ([]analysis.AgentType, error) {
	var out []analysis.AgentType
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, err
	}
	return out, nil
}
