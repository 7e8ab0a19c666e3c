package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"revq/internal/config"
	"revq/internal/review"
)

//go:embed schema.sql
var schemaSQL string

// Analysis is one completed analysis on record.
type Analysis struct {
	ID           int64
	RequestID    int64
	DiffRevision int
	Method       string
	Model        string
	Summary      string
	IssueCount   int
	Fake         bool
	SessionID    string
	CreatedAt    time.Time
}

// Store manages the analyses tables.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.Database.Path)
}

// OpenPath connects to the database at the given path and ensures the
// ledger schema exists. The file may already hold the queue tables.
func OpenPath(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save records a completed analysis and its comments, returning the new
// analysis id.
func (s *Store) Save(ctx context.Context, result review.Result, method, model, sessionID string, fake bool) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin save tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO analyses (
            request_id, diff_revision, method, model, summary,
            issue_count, fake, session_id, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.RequestID,
		result.DiffRevision,
		method,
		model,
		result.Summary,
		result.IssueCount(),
		boolToInt(fake),
		sessionID,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert analysis: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	for _, comment := range result.Comments {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO analysis_comments (analysis_id, file_path, line, message, severity, suggestion)
             VALUES (?, ?, ?, ?, ?, ?)`,
			id,
			comment.FilePath,
			comment.Line,
			comment.Message,
			string(comment.Severity),
			comment.Suggestion,
		); err != nil {
			return 0, fmt.Errorf("insert comment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit save: %w", err)
	}
	return id, nil
}

// Find returns the newest analysis for the given request and revision, or
// nil when none is on record.
func (s *Store) Find(ctx context.Context, requestID int64, diffRevision int) (*Analysis, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, request_id, diff_revision, method, model, summary, issue_count, fake, session_id, created_at
         FROM analyses
         WHERE request_id = ? AND diff_revision = ?
         ORDER BY id DESC LIMIT 1`,
		requestID,
		diffRevision,
	)
	analysis, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find analysis: %w", err)
	}
	return analysis, nil
}

// HasReal reports whether a non-fake analysis exists for the given request
// and revision. Fake records never count.
func (s *Store) HasReal(ctx context.Context, requestID int64, diffRevision int) (bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT 1 FROM analyses WHERE request_id = ? AND diff_revision = ? AND fake = 0 LIMIT 1`,
		requestID,
		diffRevision,
	)
	var one int
	err := row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check analysis: %w", err)
	}
	return true, nil
}

// Comments returns the stored comments for an analysis.
func (s *Store) Comments(ctx context.Context, analysisID int64) ([]review.Comment, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT file_path, line, message, severity, suggestion
         FROM analysis_comments WHERE analysis_id = ? ORDER BY id`,
		analysisID,
	)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var comments []review.Comment
	for rows.Next() {
		var (
			comment    review.Comment
			severity   string
			suggestion sql.NullString
		)
		if err := rows.Scan(&comment.FilePath, &comment.Line, &comment.Message, &severity, &suggestion); err != nil {
			return nil, err
		}
		comment.Severity = review.ParseSeverity(severity)
		comment.Suggestion = suggestion.String
		comments = append(comments, comment)
	}
	return comments, rows.Err()
}

// DeleteFakes removes all fake analyses and their comments.
func (s *Store) DeleteFakes(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM analyses WHERE fake = 1`)
	if err != nil {
		return 0, fmt.Errorf("delete fake analyses: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns total and fake analysis counts.
func (s *Store) Stats(ctx context.Context) (total, fake int, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(1), COALESCE(SUM(fake), 0) FROM analyses`)
	if err := row.Scan(&total, &fake); err != nil {
		return 0, 0, fmt.Errorf("ledger stats: %w", err)
	}
	return total, fake, nil
}

func scanAnalysis(scanner interface{ Scan(dest ...any) error }) (*Analysis, error) {
	var (
		analysis   Analysis
		model      sql.NullString
		summary    sql.NullString
		fake       int
		sessionID  sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(
		&analysis.ID,
		&analysis.RequestID,
		&analysis.DiffRevision,
		&analysis.Method,
		&model,
		&summary,
		&analysis.IssueCount,
		&fake,
		&sessionID,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	analysis.Model = model.String
	analysis.Summary = summary.String
	analysis.Fake = fake != 0
	analysis.SessionID = sessionID.String
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		analysis.CreatedAt = created
	}
	return &analysis, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
