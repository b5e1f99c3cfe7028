package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Sentinel errors, checkable with errors.Is().
var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable wraps I/O level store failures. Callers surface these
	// through the worker/scanner log path, not to the end user.
	ErrUnavailable = errors.New("store unavailable")
)

const schema = `
CREATE TABLE IF NOT EXISTS libraries (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	path TEXT NOT NULL,
	enabled INTEGER DEFAULT 1,
	scan_interval INTEGER DEFAULT 3600,
	last_scan TEXT,
	created_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS queue (
	id TEXT PRIMARY KEY,
	library_id TEXT,
	file_path TEXT NOT NULL,
	file_size INTEGER DEFAULT 0,
	status TEXT DEFAULT 'pending',
	progress INTEGER DEFAULT 0,
	fps REAL DEFAULT 0,
	eta TEXT DEFAULT '',
	added_at TEXT DEFAULT CURRENT_TIMESTAMP,
	started_at TEXT,
	finished_at TEXT,
	error_msg TEXT,
	original_size INTEGER DEFAULT 0,
	new_size INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS history (
	id TEXT PRIMARY KEY,
	library_id TEXT,
	file_path TEXT NOT NULL,
	original_size INTEGER DEFAULT 0,
	new_size INTEGER DEFAULT 0,
	duration_seconds INTEGER DEFAULT 0,
	status TEXT DEFAULT 'success',
	error_msg TEXT,
	finished_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queue_status ON queue(status);
CREATE INDEX IF NOT EXISTS idx_queue_path ON queue(file_path);
CREATE INDEX IF NOT EXISTS idx_history_path ON history(file_path);
CREATE INDEX IF NOT EXISTS idx_history_finished ON history(finished_at);
`

// Queue and history statuses. Error and success are terminal: the queue row
// is deleted and the outcome lives in history.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusError      = "error"
	StatusSuccess    = "success"
)

// Library is a watched media directory.
type Library struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Path         string `json:"path"`
	Enabled      bool   `json:"enabled"`
	ScanInterval int    `json:"scan_interval"`
	LastScan     string `json:"last_scan"`
	CreatedAt    string `json:"created_at"`
}

// QueueJob is one row in the work queue.
type QueueJob struct {
	ID           string  `json:"id"`
	LibraryID    string  `json:"library_id"`
	FilePath     string  `json:"file_path"`
	FileSize     int64   `json:"file_size"`
	Status       string  `json:"status"`
	Progress     int     `json:"progress"`
	FPS          float64 `json:"fps"`
	ETA          string  `json:"eta"`
	AddedAt      string  `json:"added_at"`
	StartedAt    string  `json:"started_at"`
	FinishedAt   string  `json:"finished_at"`
	ErrorMsg     string  `json:"error_msg"`
	OriginalSize int64   `json:"original_size"`
	NewSize      int64   `json:"new_size"`
}

// QueueRow is a queue job joined with its library name for list endpoints.
type QueueRow struct {
	QueueJob
	LibraryName string `json:"library_name"`
}

// HistoryEntry is one append-only outcome record.
type HistoryEntry struct {
	ID              string `json:"id"`
	LibraryID       string `json:"library_id"`
	FilePath        string `json:"file_path"`
	OriginalSize    int64  `json:"original_size"`
	NewSize         int64  `json:"new_size"`
	DurationSeconds int64  `json:"duration_seconds"`
	Status          string `json:"status"`
	ErrorMsg        string `json:"error_msg"`
	FinishedAt      string `json:"finished_at"`
}

// HistoryRow is a history entry joined with its library name.
type HistoryRow struct {
	HistoryEntry
	LibraryName string `json:"library_name"`
}

// Stats backs the /api/stats endpoint.
type Stats struct {
	Pending         int   `json:"pending"`
	Processing      int   `json:"processing"`
	DoneToday       int   `json:"done_today"`
	Errors          int   `json:"errors"`
	SavedBytes      int64 `json:"saved_bytes"`
	ActiveLibraries int   `json:"active_libraries"`
}

// Store is the single authority for persisted state. The sql.DB pool hands
// out short-lived connections per operation; nothing holds a connection
// across a transcode.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (and if needed creates) the database at dbPath, applies the
// schema and seeds default settings.
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	defaults := map[string]string{
		"max_workers":        "1",
		"language":           "en",
		"conversion_profile": "nvenc_max",
		"audio_codec":        "copy",
	}
	for key, value := range defaults {
		if _, err := db.Exec("INSERT OR IGNORE INTO settings (key, value) VALUES (?, ?)", key, value); err != nil {
			db.Close()
			return nil, fmt.Errorf("seed settings: %w", err)
		}
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

func nowUTC() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// ── Libraries ────────────────────────────────────────────────────────────────

// CreateLibrary inserts a new enabled library and returns its id.
func (s *Store) CreateLibrary(name, path string, scanInterval int) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		"INSERT INTO libraries (id, name, path, scan_interval) VALUES (?, ?, ?, ?)",
		id, name, path, scanInterval,
	)
	if err != nil {
		return "", unavailable("create library", err)
	}
	return id, nil
}

// UpdateLibrary rewrites the mutable fields of a library.
func (s *Store) UpdateLibrary(id, name, path string, scanInterval int, enabled bool) error {
	_, err := s.db.Exec(
		"UPDATE libraries SET name=?, path=?, scan_interval=?, enabled=? WHERE id=?",
		name, path, scanInterval, boolToInt(enabled), id,
	)
	if err != nil {
		return unavailable("update library", err)
	}
	return nil
}

// DeleteLibrary removes a library. Queue and history rows keep their
// library_id; deletion does not cascade.
func (s *Store) DeleteLibrary(id string) error {
	_, err := s.db.Exec("DELETE FROM libraries WHERE id=?", id)
	if err != nil {
		return unavailable("delete library", err)
	}
	return nil
}

// Library returns one library by id, or ErrNotFound.
func (s *Store) Library(id string) (*Library, error) {
	row := s.db.QueryRow(
		"SELECT id, name, path, enabled, scan_interval, last_scan, created_at FROM libraries WHERE id=?", id)
	lib, err := scanLibrary(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get library", err)
	}
	return lib, nil
}

// Libraries returns all libraries ordered by name.
func (s *Store) Libraries() ([]Library, error) {
	return s.queryLibraries("SELECT id, name, path, enabled, scan_interval, last_scan, created_at FROM libraries ORDER BY name")
}

// EnabledLibraries returns all enabled libraries ordered by name.
func (s *Store) EnabledLibraries() ([]Library, error) {
	return s.queryLibraries("SELECT id, name, path, enabled, scan_interval, last_scan, created_at FROM libraries WHERE enabled=1 ORDER BY name")
}

func (s *Store) queryLibraries(query string) ([]Library, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, unavailable("list libraries", err)
	}
	defer rows.Close()

	var libs []Library
	for rows.Next() {
		lib, err := scanLibrary(rows)
		if err != nil {
			return nil, unavailable("scan library row", err)
		}
		libs = append(libs, *lib)
	}
	return libs, rows.Err()
}

// TouchLastScan records the current UTC instant as the library's last scan.
func (s *Store) TouchLastScan(id string) error {
	_, err := s.db.Exec("UPDATE libraries SET last_scan=? WHERE id=?", nowUTC(), id)
	if err != nil {
		return unavailable("touch last scan", err)
	}
	return nil
}

// ── Settings ─────────────────────────────────────────────────────────────────

// Setting returns a setting value, or def when missing or unreadable.
func (s *Store) Setting(key, def string) string {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key=?", key).Scan(&value)
	if err != nil {
		return def
	}
	return value
}

// SetSetting writes a setting key.
func (s *Store) SetSetting(key, value string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return unavailable("set setting", err)
	}
	return nil
}

// Settings returns all settings as a key→value map.
func (s *Store) Settings() (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, unavailable("list settings", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, unavailable("scan setting", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// MaxWorkers returns the configured worker count clamped to [1,3].
func (s *Store) MaxWorkers() int {
	n, err := strconv.Atoi(s.Setting("max_workers", "1"))
	if err != nil {
		return 1
	}
	if n < 1 {
		return 1
	}
	if n > 3 {
		return 3
	}
	return n
}

// ── Queue ────────────────────────────────────────────────────────────────────

// Enqueue inserts a pending queue row and returns its id. The insert commits
// before this returns, so a waking worker sees it.
func (s *Store) Enqueue(libraryID, filePath string, fileSize int64) (string, error) {
	id := uuid.NewString()
	_, err := s.db.Exec(
		"INSERT INTO queue (id, library_id, file_path, file_size, status) VALUES (?, ?, ?, ?, 'pending')",
		id, nullString(libraryID), filePath, fileSize,
	)
	if err != nil {
		return "", unavailable("enqueue", err)
	}
	return id, nil
}

// QueueJobByID returns one queue row, or ErrNotFound.
func (s *Store) QueueJobByID(id string) (*QueueJob, error) {
	row := s.db.QueryRow(selectQueue+" WHERE id=?", id)
	job, err := scanQueueJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("get queue job", err)
	}
	return job, nil
}

// DeleteQueueJob removes a queue row. Deleting a missing row is not an error.
func (s *Store) DeleteQueueJob(id string) error {
	_, err := s.db.Exec("DELETE FROM queue WHERE id=?", id)
	if err != nil {
		return unavailable("delete queue job", err)
	}
	return nil
}

// HasQueued reports whether a pending or processing row exists for the path.
func (s *Store) HasQueued(filePath string) (bool, error) {
	var id string
	err := s.db.QueryRow(
		"SELECT id FROM queue WHERE file_path=? AND status IN ('pending','processing') LIMIT 1", filePath,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, unavailable("check queued", err)
	}
	return true, nil
}

// NextPending returns the oldest pending job whose id is not in exclude, in
// insertion order, or nil when none qualifies.
func (s *Store) NextPending(exclude []string) (*QueueJob, error) {
	query := selectQueue + " WHERE status='pending'"
	args := make([]any, 0, len(exclude))
	if len(exclude) > 0 {
		query += " AND id NOT IN (?" + strings.Repeat(",?", len(exclude)-1) + ")"
		for _, id := range exclude {
			args = append(args, id)
		}
	}
	query += " ORDER BY added_at ASC, rowid ASC LIMIT 1"

	row := s.db.QueryRow(query, args...)
	job, err := scanQueueJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable("next pending", err)
	}
	return job, nil
}

// MarkProcessing promotes a pending row to processing, recording the
// original size and start instant.
func (s *Store) MarkProcessing(id string, originalSize int64) error {
	res, err := s.db.Exec(
		"UPDATE queue SET status='processing', started_at=?, original_size=? WHERE id=? AND status='pending'",
		nowUTC(), originalSize, id,
	)
	if err != nil {
		return unavailable("mark processing", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("mark processing", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateJobProgress commits live progress for a running job.
func (s *Store) UpdateJobProgress(id string, progress int, fps float64, eta string) error {
	_, err := s.db.Exec("UPDATE queue SET progress=?, fps=?, eta=? WHERE id=?", progress, fps, eta, id)
	if err != nil {
		return unavailable("update progress", err)
	}
	return nil
}

// QueueByStatus returns up to 100 rows with the given status, newest first.
func (s *Store) QueueByStatus(status string) ([]QueueRow, error) {
	rows, err := s.db.Query(selectQueueJoined+
		" WHERE q.status=? ORDER BY q.added_at DESC LIMIT 100", status)
	if err != nil {
		return nil, unavailable("queue by status", err)
	}
	return collectQueueRows(rows)
}

// QueueDefault returns the default queue view: processing rows first, then
// pending in insertion order, capped at 200. Failed jobs live in history
// only, so they never show up here.
func (s *Store) QueueDefault() ([]QueueRow, error) {
	rows, err := s.db.Query(selectQueueJoined +
		" WHERE q.status IN ('pending','processing') ORDER BY q.status DESC, q.added_at ASC, q.rowid ASC LIMIT 200")
	if err != nil {
		return nil, unavailable("queue default", err)
	}
	return collectQueueRows(rows)
}

// ProcessingJobs returns every row currently marked processing. Used by
// startup recovery.
func (s *Store) ProcessingJobs() ([]QueueJob, error) {
	rows, err := s.db.Query(selectQueue + " WHERE status='processing'")
	if err != nil {
		return nil, unavailable("processing jobs", err)
	}
	defer rows.Close()

	var out []QueueJob
	for rows.Next() {
		job, err := scanQueueJob(rows)
		if err != nil {
			return nil, unavailable("scan queue row", err)
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

// ResetToPending returns an interrupted job to the pending state with
// progress, fps and eta cleared and started_at nulled.
func (s *Store) ResetToPending(id string) error {
	_, err := s.db.Exec(
		"UPDATE queue SET status='pending', progress=0, fps=0, eta='', started_at=NULL WHERE id=?", id)
	if err != nil {
		return unavailable("reset to pending", err)
	}
	return nil
}

// ── History ──────────────────────────────────────────────────────────────────

// AppendHistory inserts an outcome record. History rows are never mutated
// after insert. A missing id or finished_at is filled in.
func (s *Store) AppendHistory(e HistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.FinishedAt == "" {
		e.FinishedAt = nowUTC()
	}
	_, err := s.db.Exec(
		"INSERT INTO history (id, library_id, file_path, original_size, new_size, duration_seconds, status, error_msg, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		e.ID, nullString(e.LibraryID), e.FilePath, e.OriginalSize, e.NewSize,
		e.DurationSeconds, e.Status, nullString(e.ErrorMsg), e.FinishedAt,
	)
	if err != nil {
		return unavailable("append history", err)
	}
	return nil
}

// HasSuccess reports whether a successful history row exists for the path.
func (s *Store) HasSuccess(filePath string) (bool, error) {
	var id string
	err := s.db.QueryRow(
		"SELECT id FROM history WHERE file_path=? AND status='success' LIMIT 1", filePath,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, unavailable("check history", err)
	}
	return true, nil
}

// Recent returns the most recent successful entries, newest first.
func (s *Store) Recent(limit int) ([]HistoryRow, error) {
	rows, err := s.db.Query(selectHistoryJoined+
		" WHERE h.status='success' ORDER BY h.finished_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, unavailable("recent history", err)
	}
	return collectHistoryRows(rows)
}

// SuccessRows returns every successful history entry with library names,
// the raw material for savings aggregation.
func (s *Store) SuccessRows() ([]HistoryRow, error) {
	rows, err := s.db.Query(selectHistoryJoined + " WHERE h.status='success'")
	if err != nil {
		return nil, unavailable("success rows", err)
	}
	return collectHistoryRows(rows)
}

// History returns one page of history, newest first, plus the total count.
func (s *Store) History(page, perPage int) (int, []HistoryRow, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM history").Scan(&total); err != nil {
		return 0, nil, unavailable("count history", err)
	}

	rows, err := s.db.Query(selectHistoryJoined+
		" ORDER BY h.finished_at DESC LIMIT ? OFFSET ?", perPage, (page-1)*perPage)
	if err != nil {
		return 0, nil, unavailable("page history", err)
	}
	items, err := collectHistoryRows(rows)
	return total, items, err
}

// ClearHistory removes every history row.
func (s *Store) ClearHistory() error {
	_, err := s.db.Exec("DELETE FROM history")
	if err != nil {
		return unavailable("clear history", err)
	}
	return nil
}

// ── Aggregates ───────────────────────────────────────────────────────────────

// StatsCounts computes the dashboard counters.
func (s *Store) StatsCounts() (Stats, error) {
	var st Stats
	steps := []struct {
		query string
		dest  any
	}{
		{"SELECT COUNT(*) FROM queue WHERE status='pending'", &st.Pending},
		{"SELECT COUNT(*) FROM queue WHERE status='processing'", &st.Processing},
		{"SELECT COUNT(*) FROM history WHERE status='success' AND date(finished_at)=date('now')", &st.DoneToday},
		{"SELECT COUNT(*) FROM history WHERE status='error'", &st.Errors},
		{"SELECT COALESCE(SUM(original_size-new_size), 0) FROM history WHERE status='success'", &st.SavedBytes},
		{"SELECT COUNT(*) FROM libraries WHERE enabled=1", &st.ActiveLibraries},
	}
	for _, step := range steps {
		if err := s.db.QueryRow(step.query).Scan(step.dest); err != nil {
			return st, unavailable("stats", err)
		}
	}
	return st, nil
}

// ── Row scanning helpers ─────────────────────────────────────────────────────

const selectQueue = "SELECT id, library_id, file_path, file_size, status, progress, fps, eta, added_at, started_at, finished_at, error_msg, original_size, new_size FROM queue"

const selectQueueJoined = "SELECT q.id, q.library_id, q.file_path, q.file_size, q.status, q.progress, q.fps, q.eta, q.added_at, q.started_at, q.finished_at, q.error_msg, q.original_size, q.new_size, l.name FROM queue q LEFT JOIN libraries l ON q.library_id = l.id"

const selectHistoryJoined = "SELECT h.id, h.library_id, h.file_path, h.original_size, h.new_size, h.duration_seconds, h.status, h.error_msg, h.finished_at, l.name FROM history h LEFT JOIN libraries l ON h.library_id = l.id"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLibrary(row rowScanner) (*Library, error) {
	var lib Library
	var enabled int
	var lastScan, createdAt sql.NullString
	if err := row.Scan(&lib.ID, &lib.Name, &lib.Path, &enabled, &lib.ScanInterval, &lastScan, &createdAt); err != nil {
		return nil, err
	}
	lib.Enabled = enabled != 0
	lib.LastScan = lastScan.String
	lib.CreatedAt = createdAt.String
	return &lib, nil
}

func scanQueueJob(row rowScanner) (*QueueJob, error) {
	var job QueueJob
	var libraryID, eta, startedAt, finishedAt, errorMsg sql.NullString
	err := row.Scan(
		&job.ID, &libraryID, &job.FilePath, &job.FileSize, &job.Status,
		&job.Progress, &job.FPS, &eta, &job.AddedAt, &startedAt, &finishedAt,
		&errorMsg, &job.OriginalSize, &job.NewSize,
	)
	if err != nil {
		return nil, err
	}
	job.LibraryID = libraryID.String
	job.ETA = eta.String
	job.StartedAt = startedAt.String
	job.FinishedAt = finishedAt.String
	job.ErrorMsg = errorMsg.String
	return &job, nil
}

func collectQueueRows(rows *sql.Rows) ([]QueueRow, error) {
	defer rows.Close()
	var out []QueueRow
	for rows.Next() {
		var r QueueRow
		var libraryID, eta, startedAt, finishedAt, errorMsg, libName sql.NullString
		err := rows.Scan(
			&r.ID, &libraryID, &r.FilePath, &r.FileSize, &r.Status,
			&r.Progress, &r.FPS, &eta, &r.AddedAt, &startedAt, &finishedAt,
			&errorMsg, &r.OriginalSize, &r.NewSize, &libName,
		)
		if err != nil {
			return nil, unavailable("scan queue row", err)
		}
		r.LibraryID = libraryID.String
		r.ETA = eta.String
		r.StartedAt = startedAt.String
		r.FinishedAt = finishedAt.String
		r.ErrorMsg = errorMsg.String
		r.LibraryName = libName.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func collectHistoryRows(rows *sql.Rows) ([]HistoryRow, error) {
	defer rows.Close()
	var out []HistoryRow
	for rows.Next() {
		var r HistoryRow
		var libraryID, errorMsg, libName sql.NullString
		err := rows.Scan(
			&r.ID, &libraryID, &r.FilePath, &r.OriginalSize, &r.NewSize,
			&r.DurationSeconds, &r.Status, &errorMsg, &r.FinishedAt, &libName,
		)
		if err != nil {
			return nil, unavailable("scan history row", err)
		}
		r.LibraryID = libraryID.String
		r.ErrorMsg = errorMsg.String
		r.LibraryName = libName.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
