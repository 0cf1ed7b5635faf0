// Package sqlitestore persists state records in SQLite.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/goliatone/go-autosplit/internal/hydrate"
	"github.com/goliatone/go-autosplit/pkg/state"
)

// DefaultTable holds records unless WithTable says otherwise.
const DefaultTable = "autosplit_state"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Option configures a Store.
type Option func(*config)

type config struct {
	table   string
	renames map[string]string
	strict  bool
	now     func() time.Time
}

// WithTable stores records in table instead of DefaultTable.
func WithTable(table string) Option {
	return func(c *config) {
		c.table = strings.TrimSpace(table)
	}
}

// WithRenamedFields migrates payloads written with older field names while
// loading. Keys are old names, values the current ones.
func WithRenamedFields(renames map[string]string) Option {
	return func(c *config) {
		if c.renames == nil {
			c.renames = map[string]string{}
		}
		for from, to := range renames {
			c.renames[from] = to
		}
	}
}

// WithStrictDecoding rejects stored payloads carrying unknown fields.
func WithStrictDecoding() Option {
	return func(c *config) { c.strict = true }
}

// WithClock replaces the clock used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.now = now
		}
	}
}

// Store is a state.Store backed by a SQLite table. Values are stored as
// JSON.
type Store[T any] struct {
	db      *sql.DB
	owned   bool
	table   string
	decoder *hydrate.Decoder[T]
	now     func() time.Time
}

var _ state.Store[struct{}] = (*Store[struct{}])(nil)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the SQLite database at path and prepares the table.
func Open[T any](ctx context.Context, path string, opts ...Option) (*Store[T], error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlitestore: storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: ping sqlite db: %w", err)
	}
	store, err := New[T](ctx, db, opts...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	store.owned = true
	return store, nil
}

// New uses an already open database. The caller keeps ownership of db.
func New[T any](ctx context.Context, db *sql.DB, opts ...Option) (*Store[T], error) {
	if db == nil {
		return nil, fmt.Errorf("sqlitestore: db is required")
	}
	cfg := config{table: DefaultTable, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if !tableName.MatchString(cfg.table) {
		return nil, fmt.Errorf("sqlitestore: invalid table name %q", cfg.table)
	}

	decoderOpts := []hydrate.DecoderOption[T]{}
	if len(cfg.renames) > 0 {
		decoderOpts = append(decoderOpts, hydrate.WithPreHook[T](hydrate.RenameKeys(cfg.renames)))
	}
	if cfg.strict {
		decoderOpts = append(decoderOpts, hydrate.WithDisallowUnknownFields[T]())
	}

	s := &Store[T]{
		db:      db,
		table:   cfg.table,
		decoder: hydrate.NewDecoder(decoderOpts...),
		now:     cfg.now,
	}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store[T]) migrate(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	namespace TEXT NOT NULL,
	key TEXT NOT NULL,
	payload TEXT NOT NULL,
	etag TEXT NOT NULL,
	snapshot_id TEXT NOT NULL DEFAULT '',
	extra TEXT,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, key)
)`, s.table)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("sqlitestore: create table %s: %w", s.table, err)
	}
	return nil
}

// Close closes the database when the store opened it.
func (s *Store[T]) Close() error {
	if s == nil || s.db == nil || !s.owned {
		return nil
	}
	return s.db.Close()
}

func (s *Store[T]) Load(ctx context.Context, ref state.Ref) (T, state.Meta, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, state.Meta{}, false, err
	}
	if _, err := ref.Identifier(); err != nil {
		return zero, state.Meta{}, false, err
	}
	ns, key := strings.TrimSpace(ref.Namespace), strings.TrimSpace(ref.Key)

	var (
		payload   string
		meta      state.Meta
		extra     sql.NullString
		updatedAt int64
	)
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`SELECT payload, etag, snapshot_id, extra, updated_at FROM %s WHERE namespace = ? AND key = ?`, s.table),
		ns, key)
	if err := row.Scan(&payload, &meta.ETag, &meta.SnapshotID, &extra, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return zero, state.Meta{}, false, nil
		}
		return zero, state.Meta{}, false, fmt.Errorf("sqlitestore: load %s/%s: %w", ns, key, err)
	}
	meta.UpdatedAt = fromMillis(updatedAt)
	if extra.Valid && extra.String != "" {
		if err := json.Unmarshal([]byte(extra.String), &meta.Extra); err != nil {
			return zero, state.Meta{}, false, fmt.Errorf("sqlitestore: decode meta for %s/%s: %w", ns, key, err)
		}
	}

	value, err := s.decoder.DecodeJSON(hydrate.Context{Namespace: ns, Key: key}, []byte(payload))
	if err != nil {
		return zero, state.Meta{}, false, err
	}
	return value, meta, true, nil
}

// Save inserts when expected.ETag is empty and otherwise updates only the
// row still carrying expected.ETag.
func (s *Store[T]) Save(ctx context.Context, ref state.Ref, value T, expected state.Meta) (state.Meta, error) {
	if err := ctx.Err(); err != nil {
		return state.Meta{}, err
	}
	if _, err := ref.Identifier(); err != nil {
		return state.Meta{}, err
	}
	ns, key := strings.TrimSpace(ref.Namespace), strings.TrimSpace(ref.Key)

	payload, err := json.Marshal(value)
	if err != nil {
		return state.Meta{}, fmt.Errorf("sqlitestore: encode %s/%s: %w", ns, key, err)
	}
	var extra sql.NullString
	if expected.Extra != nil {
		raw, err := json.Marshal(expected.Extra)
		if err != nil {
			return state.Meta{}, fmt.Errorf("sqlitestore: encode meta for %s/%s: %w", ns, key, err)
		}
		extra = sql.NullString{String: string(raw), Valid: true}
	}

	meta := state.Meta{
		SnapshotID: expected.SnapshotID,
		ETag:       state.NewETag(),
		UpdatedAt:  fromMillis(toMillis(s.now())),
		Extra:      expected.Extra,
	}

	if expected.ETag == "" {
		_, err := s.db.ExecContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (namespace, key, payload, etag, snapshot_id, extra, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`, s.table),
			ns, key, string(payload), meta.ETag, meta.SnapshotID, extra, toMillis(meta.UpdatedAt))
		if err != nil {
			if isConstraintViolation(err) {
				return state.Meta{}, fmt.Errorf("%w: %s/%s already exists", state.ErrETagMismatch, ns, key)
			}
			return state.Meta{}, fmt.Errorf("sqlitestore: insert %s/%s: %w", ns, key, err)
		}
		return meta, nil
	}

	var stored sql.NullString
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(
		`UPDATE %s SET payload = ?, etag = ?, snapshot_id = COALESCE(NULLIF(?, ''), snapshot_id), extra = COALESCE(?, extra), updated_at = ?
WHERE namespace = ? AND key = ? AND etag = ?
RETURNING snapshot_id, extra`, s.table),
		string(payload), meta.ETag, meta.SnapshotID, extra, toMillis(meta.UpdatedAt), ns, key, expected.ETag)
	if err := row.Scan(&meta.SnapshotID, &stored); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return state.Meta{}, fmt.Errorf("%w: %s/%s expected %q", state.ErrETagMismatch, ns, key, expected.ETag)
		}
		return state.Meta{}, fmt.Errorf("sqlitestore: update %s/%s: %w", ns, key, err)
	}
	if meta.Extra == nil && stored.Valid && stored.String != "" {
		if err := json.Unmarshal([]byte(stored.String), &meta.Extra); err != nil {
			return state.Meta{}, fmt.Errorf("sqlitestore: decode meta for %s/%s: %w", ns, key, err)
		}
	}
	return meta, nil
}

func isConstraintViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
