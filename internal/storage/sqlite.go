package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"onbid_bot/internal/model"
	"onbid_bot/migrations"
)

const timeLayout = time.RFC3339Nano

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := migrations.Run(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Load returns the state stored for keyword, or nil if there is none.
func (s *SQLite) Load(ctx context.Context, keyword string) (*model.SearchState, error) {
	var lastChecked string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_checked FROM search_states WHERE keyword = ?`, keyword,
	).Scan(&lastChecked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query state: %w", err)
	}

	checked, err := time.Parse(timeLayout, lastChecked)
	if err != nil {
		return nil, &CorruptError{Keyword: keyword, Err: fmt.Errorf("parse last_checked: %w", err)}
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT title, bid_date, link FROM items WHERE keyword = ? ORDER BY position`, keyword,
	)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	state := &model.SearchState{Keyword: keyword, LastChecked: checked, Items: []model.Item{}}
	for rows.Next() {
		var it model.Item
		if err := rows.Scan(&it.Title, &it.BidDate, &it.Link); err != nil {
			return nil, &CorruptError{Keyword: keyword, Err: fmt.Errorf("scan item: %w", err)}
		}
		state.Items = append(state.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return state, nil
}

// Merge unions items into the stored state for keyword in one transaction.
func (s *SQLite) Merge(ctx context.Context, keyword string, items []model.Item) (*model.SearchState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.merge(ctx, keyword, items, time.Now().UTC()); err != nil {
		return nil, &WriteError{Keyword: keyword, Err: err}
	}
	return s.Load(ctx, keyword)
}

func (s *SQLite) merge(ctx context.Context, keyword string, items []model.Item, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), -1) + 1 FROM items WHERE keyword = ?`, keyword,
	).Scan(&next); err != nil {
		return fmt.Errorf("query position: %w", err)
	}

	stamp := now.Format(timeLayout)
	for _, it := range items {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO items (keyword, title, bid_date, link, position, first_seen_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			keyword, it.Title, it.BidDate, it.Link, next, stamp,
		)
		if err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			next++
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO search_states (keyword, last_checked) VALUES (?, ?)
		 ON CONFLICT(keyword) DO UPDATE SET last_checked = excluded.last_checked`,
		keyword, stamp,
	); err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetSettings returns the saved settings or the defaults.
func (s *SQLite) GetSettings(ctx context.Context) (*model.Settings, error) {
	var (
		st        model.Settings
		isRunning int
		last      sql.NullString
		next      sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT keyword, interval_minutes, is_running, last_check, next_check FROM settings WHERE id = 1`,
	).Scan(&st.Keyword, &st.IntervalMinutes, &isRunning, &last, &next)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultSettings(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	st.IsRunning = isRunning == 1
	st.LastCheck = parseNullTime(last)
	st.NextCheck = parseNullTime(next)
	return &st, nil
}

// SaveSettings replaces the stored settings.
func (s *SQLite) SaveSettings(ctx context.Context, st *model.Settings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (id, keyword, interval_minutes, is_running, last_check, next_check)
		 VALUES (1, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   keyword = excluded.keyword,
		   interval_minutes = excluded.interval_minutes,
		   is_running = excluded.is_running,
		   last_check = excluded.last_check,
		   next_check = excluded.next_check`,
		st.Keyword, st.IntervalMinutes, boolToInt(st.IsRunning), formatNullTime(st.LastCheck), formatNullTime(st.NextCheck),
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	t, err := time.Parse(timeLayout, v.String)
	if err != nil {
		return nil
	}
	return &t
}

func formatNullTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(timeLayout)
	return &v
}
