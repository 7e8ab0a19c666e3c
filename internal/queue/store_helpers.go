package queue

import (
	"database/sql"
	"errors"
	"time"
)

const itemColumns = "id, request_id, diff_revision, status, repository, author, summary, branch, base_commit, analysis_id, error_message, created_at, updated_at, last_synced_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id           int64
		requestID    int64
		diffRevision int
		statusStr    string
		repository   sql.NullString
		author       sql.NullString
		summary      sql.NullString
		branch       sql.NullString
		baseCommit   sql.NullString
		analysisID   sql.NullInt64
		errorMessage sql.NullString
		createdRaw   sql.NullString
		updatedRaw   sql.NullString
		syncedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&requestID,
		&diffRevision,
		&statusStr,
		&repository,
		&author,
		&summary,
		&branch,
		&baseCommit,
		&analysisID,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&syncedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:           id,
		RequestID:    requestID,
		DiffRevision: diffRevision,
		Status:       Status(statusStr),
		Repository:   repository.String,
		Author:       author.String,
		Summary:      summary.String,
		Branch:       branch.String,
		BaseCommit:   baseCommit.String,
		ErrorMessage: errorMessage.String,
	}
	if analysisID.Valid {
		value := analysisID.Int64
		item.AnalysisID = &value
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		item.UpdatedAt = updated
	}
	if synced, err := parseTimeString(syncedRaw.String); err == nil {
		item.LastSyncedAt = synced
	}
	return item, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
