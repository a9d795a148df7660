// Package storage is the gateway's view of the host event-log store:
// activity rows plus the append-only activity log that carries meeting
// creation events and imported-recording references.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)
)

// Activity log event types, mirroring the host's log vocabulary.
const (
	LogEventCreate = "Create"
	LogEventImport = "Import"
	LogEventDelete = "Delete"
)

// Activity types. TypeAll activities have both a room and a recordings
// section; the *Only types restrict the instance to one of the two.
const (
	TypeAll           = 0
	TypeRoomOnly      = 1
	TypeRecordingOnly = 2
)

// Activity is one conferencing activity instance inside a course.
type Activity struct {
	ID                 int64
	CourseID           int64
	Name               string
	Type               int
	MeetingID          string
	Intro              string
	OpeningTime        int64 // unix seconds, 0 = no opening time
	ClosingTime        int64 // unix seconds, 0 = no closing time
	GroupMode          int   // 0 none, 1 separate groups, 2 visible groups
	RecordingsHTML     bool
	RecordingsDeleted  bool // include meeting ids of deleted activities
	RecordingsImported bool // show only imported references
	RecordingsPreview  bool
}

// ImportRow is one imported-recording reference. Meta carries the serialized
// recording as stored at import time; Protected overrides the recording's
// protection flag when the column is set.
type ImportRow struct {
	ID         string
	CourseID   int64
	ActivityID int64
	MeetingID  string
	RecordID   string
	Protected  sql.NullString
	Meta       []byte
	CreatedAt  time.Time
}

// Store provides SQLite persistence for activities and the activity log.
type Store struct {
	db *sql.DB
}

// Open initializes the store at dbPath and runs schema migrations.
// WAL mode and a busy timeout are set for the read-heavy workload.
func Open(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS activities (
		id INTEGER PRIMARY KEY,
		course_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		type INTEGER NOT NULL DEFAULT 0,
		meeting_id TEXT NOT NULL,
		intro TEXT NOT NULL DEFAULT '',
		opening_time INTEGER NOT NULL DEFAULT 0,
		closing_time INTEGER NOT NULL DEFAULT 0,
		group_mode INTEGER NOT NULL DEFAULT 0,
		recordings_html INTEGER NOT NULL DEFAULT 0,
		recordings_deleted INTEGER NOT NULL DEFAULT 0,
		recordings_imported INTEGER NOT NULL DEFAULT 0,
		recordings_preview INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS activity_logs (
		id TEXT PRIMARY KEY,
		course_id INTEGER NOT NULL,
		activity_id INTEGER NOT NULL,
		meeting_id TEXT NOT NULL DEFAULT '',
		record_id TEXT NOT NULL DEFAULT '',
		log TEXT NOT NULL,
		meta TEXT NOT NULL DEFAULT '',
		protected TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activities_course ON activities(course_id);
	CREATE INDEX IF NOT EXISTS idx_logs_course_log ON activity_logs(course_id, log);
	CREATE INDEX IF NOT EXISTS idx_logs_activity ON activity_logs(activity_id);
	CREATE INDEX IF NOT EXISTS idx_logs_record ON activity_logs(record_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ErrNotFound is returned when a requested activity does not exist.
var ErrNotFound = sql.ErrNoRows

// Activity retrieves one activity by id.
func (s *Store) Activity(ctx context.Context, id int64) (*Activity, error) {
	query := `
	SELECT id, course_id, name, type, meeting_id, intro, opening_time, closing_time,
	       group_mode, recordings_html, recordings_deleted, recordings_imported, recordings_preview
	FROM activities WHERE id = ?
	`
	var a Activity
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.CourseID, &a.Name, &a.Type, &a.MeetingID, &a.Intro,
		&a.OpeningTime, &a.ClosingTime, &a.GroupMode,
		&a.RecordingsHTML, &a.RecordingsDeleted, &a.RecordingsImported, &a.RecordingsPreview,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// InsertActivity stores an activity row. Used by provisioning and tests.
func (s *Store) InsertActivity(ctx context.Context, a *Activity) error {
	query := `
	INSERT INTO activities (id, course_id, name, type, meeting_id, intro, opening_time, closing_time,
		group_mode, recordings_html, recordings_deleted, recordings_imported, recordings_preview)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.CourseID, a.Name, a.Type, a.MeetingID, a.Intro, a.OpeningTime, a.ClosingTime,
		a.GroupMode, a.RecordingsHTML, a.RecordingsDeleted, a.RecordingsImported, a.RecordingsPreview,
	)
	return err
}

// InsertLog appends one activity log row. An empty ID is replaced with a
// fresh uuid; the generated id is written back to the row.
func (s *Store) InsertLog(ctx context.Context, row *ImportRow, event string) error {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	query := `
	INSERT INTO activity_logs (id, course_id, activity_id, meeting_id, record_id, log, meta, protected, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		row.ID, row.CourseID, row.ActivityID, row.MeetingID, row.RecordID,
		event, string(row.Meta), row.Protected, row.CreatedAt.Format(time.RFC3339),
	)
	return err
}

// MeetingIDs resolves the meeting ids whose recordings a view should fetch.
// With subset true, only the given activity's meeting; otherwise every other
// activity of the course. Only meetings with a create event that requested
// recording are returned, plus (when includeDeleted is set) meetings of
// deleted activities that left recordings behind.
func (s *Store) MeetingIDs(ctx context.Context, courseID, activityID int64, subset, includeDeleted bool) ([]string, error) {
	activityIDs, err := s.activityIDs(ctx, courseID, activityID, subset)
	if err != nil {
		return nil, err
	}
	if includeDeleted {
		deleted, err := s.deletedActivityIDs(ctx, courseID, activityID, subset)
		if err != nil {
			return nil, err
		}
		activityIDs = append(activityIDs, deleted...)
	}
	if len(activityIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(activityIDs)), ",")
	query := fmt.Sprintf(`
	SELECT DISTINCT meeting_id FROM activity_logs
	WHERE activity_id IN (%s) AND log = ? AND meta LIKE '%%"record"%%' AND meta LIKE '%%true%%'
	`, placeholders)

	args := make([]any, 0, len(activityIDs)+1)
	for _, id := range activityIDs {
		args = append(args, id)
	}
	args = append(args, LogEventCreate)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var mid string
		if err := rows.Scan(&mid); err != nil {
			return nil, err
		}
		out = append(out, mid)
	}
	return out, rows.Err()
}

func (s *Store) activityIDs(ctx context.Context, courseID, activityID int64, subset bool) ([]int64, error) {
	query := `SELECT id FROM activities WHERE course_id = ?`
	args := []any{courseID}
	if activityID != 0 {
		if subset {
			query = `SELECT id FROM activities WHERE id = ?`
			args = []any{activityID}
		} else {
			query += ` AND id <> ?`
			args = append(args, activityID)
		}
	}
	return s.queryIDs(ctx, query, args...)
}

func (s *Store) deletedActivityIDs(ctx context.Context, courseID, activityID int64, subset bool) ([]int64, error) {
	query := `
	SELECT DISTINCT activity_id FROM activity_logs
	WHERE log = ? AND meta LIKE '%has_recordings%' AND meta LIKE '%true%' AND course_id = ?
	`
	args := []any{LogEventDelete, courseID}
	if activityID != 0 {
		if subset {
			query = `
			SELECT DISTINCT activity_id FROM activity_logs
			WHERE log = ? AND meta LIKE '%has_recordings%' AND meta LIKE '%true%' AND activity_id = ?
			`
			args = []any{LogEventDelete, activityID}
		} else {
			query += ` AND activity_id <> ?`
			args = append(args, activityID)
		}
	}
	return s.queryIDs(ctx, query, args...)
}

func (s *Store) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ImportRows returns the imported-recording references visible to a view:
// the given activity's own imports when subset is true, otherwise imports of
// every other activity in the course.
func (s *Store) ImportRows(ctx context.Context, courseID, activityID int64, subset bool) ([]ImportRow, error) {
	query := `
	SELECT id, course_id, activity_id, meeting_id, record_id, meta, protected, created_at
	FROM activity_logs WHERE log = ? AND course_id = ?
	`
	args := []any{LogEventImport, courseID}
	if activityID != 0 {
		if subset {
			query = `
			SELECT id, course_id, activity_id, meeting_id, record_id, meta, protected, created_at
			FROM activity_logs WHERE log = ? AND activity_id = ?
			`
			args = []any{LogEventImport, activityID}
		} else {
			query += ` AND activity_id <> ?`
			args = append(args, activityID)
		}
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ImportRow
	for rows.Next() {
		var r ImportRow
		var meta, createdAt string
		if err := rows.Scan(&r.ID, &r.CourseID, &r.ActivityID, &r.MeetingID, &r.RecordID, &meta, &r.Protected, &createdAt); err != nil {
			return nil, err
		}
		r.Meta = []byte(meta)
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			r.CreatedAt = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountImports counts the import references pointing at one record id.
func (s *Store) CountImports(ctx context.Context, recordID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT id) FROM activity_logs WHERE log = ? AND record_id = ?`,
		LogEventImport, recordID,
	).Scan(&n)
	return n, err
}

// CountAllImports counts every import reference; used for the metrics gauge.
func (s *Store) CountAllImports(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM activity_logs WHERE log = ?`, LogEventImport,
	).Scan(&n)
	return n, err
}
