// Package store persists tasks and task sources in SQLite or PostgreSQL.
// It owns the schema and migrations; callers only see plugin-level types.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/tasksync/internal/plugin"
	"github.com/randalmurphal/tasksync/internal/store/driver"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// Store is the SQL-backed implementation of plugin.TaskStore, plus the
// management operations the CLI needs (source CRUD, task listing).
type Store struct {
	drv driver.Driver
	dir string // data directory; attachments live under it
	log *slog.Logger
}

var _ plugin.TaskStore = (*Store)(nil)

// Options configures a Store.
type Options struct {
	Dialect string // "sqlite" (default) or "postgres"
	DSN     string // database path for sqlite, connection string for postgres
	DataDir string // directory for attachments and the default sqlite file
	Logger  *slog.Logger
}

// New opens the database, runs migrations, and returns a ready Store.
func New(opts Options) (*Store, error) {
	dialect, err := driver.ParseDialect(opts.Dialect)
	if err != nil {
		return nil, err
	}

	dir := opts.DataDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dsn := opts.DSN
	if dsn == "" && dialect == driver.DialectSQLite {
		dsn = filepath.Join(dir, "tasksync.db")
	}

	drv, err := driver.New(dialect)
	if err != nil {
		return nil, err
	}
	if err := drv.Open(dsn); err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Store{drv: drv, dir: dir, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = drv.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.drv.Close()
}

// migrate applies any schema files for the active dialect that are newer
// than the recorded version. Files are named <dialect>_NNN.sql.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.drv.Exec(ctx, `CREATE TABLE IF NOT EXISTS _migrations (version INTEGER PRIMARY KEY)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var current int
	row := s.drv.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM _migrations`)
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}

	prefix := string(s.drv.Dialect()) + "_"
	entries, err := fs.Glob(schemaFS, "schema/*.sql")
	if err != nil {
		return fmt.Errorf("list schema files: %w", err)
	}
	sort.Strings(entries)

	for _, name := range entries {
		base := filepath.Base(name)
		if !strings.HasPrefix(base, prefix) {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(strings.TrimPrefix(base, prefix), "%d.sql", &version); err != nil {
			return fmt.Errorf("bad schema file name %s: %w", base, err)
		}
		if version <= current {
			continue
		}

		ddl, err := schemaFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := s.drv.Exec(ctx, string(ddl)); err != nil {
			return fmt.Errorf("apply %s: %w", base, err)
		}
		if _, err := s.drv.Exec(ctx,
			fmt.Sprintf("INSERT INTO _migrations (version) VALUES (%s)", s.drv.Placeholder(1)),
			version); err != nil {
			return fmt.Errorf("record migration %d: %w", version, err)
		}
		s.log.Info("applied migration", "version", version, "dialect", s.drv.Dialect())
	}
	return nil
}

// AttachmentsDir returns the directory where a task's downloaded attachments
// are stored, creating it on first use.
func (s *Store) AttachmentsDir(taskID string) string {
	dir := filepath.Join(s.dir, "attachments", taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.log.Warn("create attachments dir failed", "task", taskID, "error", err)
	}
	return dir
}

const taskColumns = `id, external_id, source_id, source, title, description, type,
	priority, status, assignee, due_date, labels, attachments, output_fields,
	resolution, created_at, updated_at`

// GetTaskByExternalID returns the task linked to (sourceID, externalID), or
// nil when none exists.
func (s *Store) GetTaskByExternalID(ctx context.Context, sourceID, externalID string) (*plugin.Task, error) {
	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE source_id = %s AND external_id = %s`,
		taskColumns, s.drv.Placeholder(1), s.drv.Placeholder(2))

	t, err := s.scanTask(s.drv.QueryRow(ctx, query, sourceID, externalID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task by external id: %w", err)
	}
	return t, nil
}

// GetTask returns a task by local id, or nil when none exists.
func (s *Store) GetTask(ctx context.Context, id string) (*plugin.Task, error) {
	query := fmt.Sprintf(`SELECT %s FROM tasks WHERE id = %s`, taskColumns, s.drv.Placeholder(1))

	t, err := s.scanTask(s.drv.QueryRow(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListTasks returns tasks, optionally filtered by source id, newest first.
func (s *Store) ListTasks(ctx context.Context, sourceID string) ([]*plugin.Task, error) {
	query := fmt.Sprintf(`SELECT %s FROM tasks`, taskColumns)
	var args []any
	if sourceID != "" {
		query += fmt.Sprintf(` WHERE source_id = %s`, s.drv.Placeholder(1))
		args = append(args, sourceID)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := s.drv.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*plugin.Task
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CreateTask inserts a task, assigning an id when none is set, and returns
// the stored record.
func (s *Store) CreateTask(ctx context.Context, t *plugin.Task) (*plugin.Task, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Priority == "" {
		t.Priority = plugin.PriorityMedium
	}
	if t.Status == "" {
		t.Status = plugin.StatusNotStarted
	}
	if t.Type == "" {
		t.Type = "task"
	}

	placeholders := make([]string, 15)
	for i := range placeholders {
		placeholders[i] = s.drv.Placeholder(i + 1)
	}
	query := fmt.Sprintf(`INSERT INTO tasks (%s) VALUES (%s, %s, %s)`,
		taskColumns, strings.Join(placeholders, ", "), s.drv.Now(), s.drv.Now())

	_, err := s.drv.Exec(ctx, query,
		t.ID, t.ExternalID, t.SourceID, t.Source, t.Title, t.Description, t.Type,
		string(t.Priority), string(t.Status), t.Assignee, t.DueDate,
		marshalJSON(t.Labels), marshalJSON(t.Attachments), marshalJSON(t.OutputFields),
		t.Resolution)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return s.GetTask(ctx, t.ID)
}

// UpdateTask applies a partial update. Nil fields are left untouched.
func (s *Store) UpdateTask(ctx context.Context, id string, u plugin.TaskUpdate) error {
	var sets []string
	var args []any
	add := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = %s", column, s.drv.Placeholder(len(args)+1)))
		args = append(args, value)
	}

	if u.Title != nil {
		add("title", *u.Title)
	}
	if u.Description != nil {
		add("description", *u.Description)
	}
	if u.Type != nil {
		add("type", *u.Type)
	}
	if u.Priority != nil {
		add("priority", string(*u.Priority))
	}
	if u.Status != nil {
		add("status", string(*u.Status))
	}
	if u.Assignee != nil {
		add("assignee", *u.Assignee)
	}
	if u.DueDate != nil {
		add("due_date", *u.DueDate)
	}
	if u.Labels != nil {
		add("labels", marshalJSON(*u.Labels))
	}
	if u.Attachments != nil {
		add("attachments", marshalJSON(*u.Attachments))
	}
	if u.OutputFields != nil {
		add("output_fields", marshalJSON(*u.OutputFields))
	}
	if u.Resolution != nil {
		add("resolution", *u.Resolution)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = "+s.drv.Now())

	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id = %s`,
		strings.Join(sets, ", "), s.drv.Placeholder(len(args)+1))
	args = append(args, id)

	res, err := s.drv.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update task: no task with id %s", id)
	}
	return nil
}

// SaveTaskSource inserts or replaces a configured source instance.
func (s *Store) SaveTaskSource(ctx context.Context, src *plugin.TaskSource) error {
	if src.ID == "" {
		src.ID = uuid.New().String()
	}
	cfg, err := json.Marshal(src.Config)
	if err != nil {
		return fmt.Errorf("marshal source config: %w", err)
	}

	del := fmt.Sprintf(`DELETE FROM task_sources WHERE id = %s`, s.drv.Placeholder(1))
	if _, err := s.drv.Exec(ctx, del, src.ID); err != nil {
		return fmt.Errorf("save task source: %w", err)
	}
	ins := fmt.Sprintf(`INSERT INTO task_sources (id, name, plugin, config, last_synced_at)
		VALUES (%s, %s, %s, %s, %s)`,
		s.drv.Placeholder(1), s.drv.Placeholder(2), s.drv.Placeholder(3),
		s.drv.Placeholder(4), s.drv.Placeholder(5))

	var last any
	if src.LastSyncedAt != nil {
		last = src.LastSyncedAt.UTC().Format(time.RFC3339)
	}
	if _, err := s.drv.Exec(ctx, ins, src.ID, src.Name, src.Plugin, string(cfg), last); err != nil {
		return fmt.Errorf("save task source: %w", err)
	}
	return nil
}

// GetTaskSource returns a source by id.
func (s *Store) GetTaskSource(ctx context.Context, sourceID string) (*plugin.TaskSource, error) {
	query := fmt.Sprintf(`SELECT id, name, plugin, config, last_synced_at
		FROM task_sources WHERE id = %s`, s.drv.Placeholder(1))

	src, err := scanSource(s.drv.QueryRow(ctx, query, sourceID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task source %s: %w", sourceID, plugin.ErrNotConfigured)
	}
	if err != nil {
		return nil, fmt.Errorf("get task source: %w", err)
	}
	return src, nil
}

// ListTaskSources returns all configured sources ordered by name.
func (s *Store) ListTaskSources(ctx context.Context) ([]*plugin.TaskSource, error) {
	rows, err := s.drv.Query(ctx, `SELECT id, name, plugin, config, last_synced_at
		FROM task_sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list task sources: %w", err)
	}
	defer rows.Close()

	var sources []*plugin.TaskSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task source: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// UpdateTaskSourceLastSynced stamps the source's last successful sync time.
func (s *Store) UpdateTaskSourceLastSynced(ctx context.Context, sourceID string) error {
	query := fmt.Sprintf(`UPDATE task_sources SET last_synced_at = %s WHERE id = %s`,
		s.drv.Now(), s.drv.Placeholder(1))
	if _, err := s.drv.Exec(ctx, query, sourceID); err != nil {
		return fmt.Errorf("update last synced: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanTask(row rowScanner) (*plugin.Task, error) {
	var (
		t                              plugin.Task
		externalID, sourceID           sql.NullString
		priority, status               string
		labels, attachments, outFields string
		created, updated               timeVal
	)
	err := row.Scan(&t.ID, &externalID, &sourceID, &t.Source, &t.Title, &t.Description,
		&t.Type, &priority, &status, &t.Assignee, &t.DueDate,
		&labels, &attachments, &outFields, &t.Resolution, &created, &updated)
	if err != nil {
		return nil, err
	}

	t.ExternalID = externalID.String
	t.SourceID = sourceID.String
	t.Priority = plugin.Priority(priority)
	t.Status = plugin.Status(status)
	t.CreatedAt = created.t
	t.UpdatedAt = updated.t
	unmarshalJSON(labels, &t.Labels)
	unmarshalJSON(attachments, &t.Attachments)
	unmarshalJSON(outFields, &t.OutputFields)
	return &t, nil
}

func scanSource(row rowScanner) (*plugin.TaskSource, error) {
	var (
		src  plugin.TaskSource
		cfg  string
		last timeVal
	)
	if err := row.Scan(&src.ID, &src.Name, &src.Plugin, &cfg, &last); err != nil {
		return nil, err
	}
	unmarshalJSON(cfg, &src.Config)
	if src.Config == nil {
		src.Config = plugin.Config{}
	}
	if last.valid {
		t := last.t
		src.LastSyncedAt = &t
	}
	return &src, nil
}

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func unmarshalJSON(raw string, dest any) {
	if raw == "" {
		return
	}
	_ = json.Unmarshal([]byte(raw), dest)
}

// timeVal scans timestamps from either backend: pgx hands back time.Time,
// sqlite hands back the stored text.
type timeVal struct {
	t     time.Time
	valid bool
}

func (v *timeVal) Scan(src any) error {
	switch s := src.(type) {
	case nil:
		return nil
	case time.Time:
		v.t, v.valid = s, true
		return nil
	case string:
		return v.parse(s)
	case []byte:
		return v.parse(string(s))
	default:
		return fmt.Errorf("cannot scan %T as time", src)
	}
}

func (v *timeVal) parse(s string) error {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			v.t, v.valid = t, true
			return nil
		}
	}
	return fmt.Errorf("cannot parse time %q", s)
}
