// Package store implements the history store on SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"redtrack/internal/model"
	"redtrack/internal/store/migrations"
	"redtrack/internal/tracker"
)

// SQLiteStore implements the tracker.Store interface using SQLite.
// The schema's composite primary keys carry the uniqueness invariants:
// constraint violations on the time-keyed relations surface as
// tracker.ErrDuplicateTimestamp.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens a SQLite-backed history store.
// path can be a file path or ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenConnection opens and configures a SQLite connection with appropriate
// PRAGMAs. Exported for tools and tests that need a raw configured handle.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// Each pooled connection to ":memory:" would open its own empty
		// database; pin the pool to one connection.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	return db, nil
}

// Last-known-state reads

func (s *SQLiteStore) LastAccountSnapshot(account string) (*model.AccountSnapshot, error) {
	row := s.db.QueryRow(`
		SELECT username, observed_at, post_karma, comment_karma, total_karma
		FROM account_snapshots WHERE username = ?
		ORDER BY observed_at DESC LIMIT 1`, account)

	var snap model.AccountSnapshot
	err := row.Scan(&snap.Account, &snap.ObservedAt, &snap.PostKarma, &snap.CommentKarma, &snap.TotalKarma)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading last account snapshot: %w", err)
	}
	return &snap, nil
}

func (s *SQLiteStore) KnownItem(itemType model.ItemType, naturalID string) (*model.Item, error) {
	row := s.db.QueryRow(`
		SELECT item_type, natural_id, username, subreddit, title, url, permalink,
		       created_at, current_score, last_observed_at, local_image_path
		FROM items WHERE item_type = ? AND natural_id = ?`, itemType, naturalID)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading item: %w", err)
	}
	return item, nil
}

func (s *SQLiteStore) LastObservedScore(itemType model.ItemType, naturalID string) (*model.ScoreEntry, error) {
	row := s.db.QueryRow(`
		SELECT item_type, natural_id, observed_at, score
		FROM score_history WHERE item_type = ? AND natural_id = ?
		ORDER BY observed_at DESC LIMIT 1`, itemType, naturalID)

	var e model.ScoreEntry
	err := row.Scan(&e.ItemType, &e.NaturalID, &e.ObservedAt, &e.Score)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading last score: %w", err)
	}
	return &e, nil
}

// Fine-grained writes

func (s *SQLiteStore) AppendAccountSnapshot(snap model.AccountSnapshot) error {
	return appendAccountSnapshot(s.db, snap)
}

func (s *SQLiteStore) UpsertItem(item model.Item) error {
	return upsertItem(s.db, item)
}

func (s *SQLiteStore) AppendScoreHistory(e model.ScoreEntry) error {
	return appendScoreHistory(s.db, e)
}

// execer covers *sql.DB and *sql.Tx so the write helpers serve both the
// fine-grained operations and the atomic batches.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func appendAccountSnapshot(e execer, snap model.AccountSnapshot) error {
	_, err := e.Exec(`
		INSERT INTO account_snapshots (username, observed_at, post_karma, comment_karma, total_karma)
		VALUES (?, ?, ?, ?, ?)`,
		snap.Account, snap.ObservedAt.UTC(), snap.PostKarma, snap.CommentKarma, snap.TotalKarma)
	if err != nil {
		return wrapConstraint(err, "appending account snapshot")
	}
	return nil
}

func upsertItem(e execer, item model.Item) error {
	_, err := e.Exec(`
		INSERT INTO items (item_type, natural_id, username, subreddit, title, url, permalink,
		                   created_at, current_score, last_observed_at, local_image_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (item_type, natural_id) DO UPDATE SET
			current_score    = excluded.current_score,
			last_observed_at = excluded.last_observed_at,
			local_image_path = CASE WHEN items.local_image_path = ''
			                        THEN excluded.local_image_path
			                        ELSE items.local_image_path END`,
		item.Type, item.NaturalID, item.Account, item.Subreddit, item.Title, item.URL,
		item.Permalink, item.CreatedAt.UTC(), item.CurrentScore, item.LastObservedAt.UTC(),
		item.LocalImagePath)
	if err != nil {
		return fmt.Errorf("upserting item: %w", err)
	}
	return nil
}

func appendScoreHistory(e execer, entry model.ScoreEntry) error {
	_, err := e.Exec(`
		INSERT INTO score_history (item_type, natural_id, observed_at, score)
		VALUES (?, ?, ?, ?)`,
		entry.ItemType, entry.NaturalID, entry.ObservedAt.UTC(), entry.Score)
	if err != nil {
		return wrapConstraint(err, "appending score history")
	}
	return nil
}

// Apply executes one poll's writes in a single transaction: either all
// writes succeed or none are visible.
func (s *SQLiteStore) Apply(cs *tracker.ChangeSet) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if cs.Snapshot != nil {
		if err := appendAccountSnapshot(tx, *cs.Snapshot); err != nil {
			return err
		}
	}
	for _, item := range cs.NewItems {
		if err := upsertItem(tx, item); err != nil {
			return err
		}
	}
	for _, u := range cs.Updates {
		_, err := tx.Exec(`
			UPDATE items SET current_score = ?, last_observed_at = ?
			WHERE item_type = ? AND natural_id = ?`,
			u.Score, u.ObservedAt.UTC(), u.Type, u.NaturalID)
		if err != nil {
			return fmt.Errorf("updating item: %w", err)
		}
	}
	for _, e := range cs.Scores {
		if err := appendScoreHistory(tx, e); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// History reads

func (s *SQLiteStore) Accounts() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT username FROM account_snapshots
		UNION
		SELECT username FROM items
		ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var accounts []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *SQLiteStore) AccountSnapshots(account string) ([]model.AccountSnapshot, error) {
	return s.querySnapshots(`
		SELECT username, observed_at, post_karma, comment_karma, total_karma
		FROM account_snapshots WHERE username = ?
		ORDER BY observed_at ASC`, account)
}

func (s *SQLiteStore) AccountSnapshotsRange(account string, from, to time.Time) ([]model.AccountSnapshot, error) {
	return s.querySnapshots(`
		SELECT username, observed_at, post_karma, comment_karma, total_karma
		FROM account_snapshots
		WHERE username = ? AND observed_at >= ? AND observed_at <= ?
		ORDER BY observed_at ASC`, account, from.UTC(), to.UTC())
}

func (s *SQLiteStore) querySnapshots(query string, args ...any) ([]model.AccountSnapshot, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying account snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []model.AccountSnapshot
	for rows.Next() {
		var snap model.AccountSnapshot
		if err := rows.Scan(&snap.Account, &snap.ObservedAt, &snap.PostKarma, &snap.CommentKarma, &snap.TotalKarma); err != nil {
			return nil, fmt.Errorf("scanning account snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func (s *SQLiteStore) Items(account string) ([]model.Item, error) {
	rows, err := s.db.Query(`
		SELECT item_type, natural_id, username, subreddit, title, url, permalink,
		       created_at, current_score, last_observed_at, local_image_path
		FROM items WHERE username = ?
		ORDER BY created_at DESC`, account)
	if err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	var items []model.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func (s *SQLiteStore) ScoreHistory(itemType model.ItemType, naturalID string) ([]model.ScoreEntry, error) {
	rows, err := s.db.Query(`
		SELECT item_type, natural_id, observed_at, score
		FROM score_history WHERE item_type = ? AND natural_id = ?
		ORDER BY observed_at ASC`, itemType, naturalID)
	if err != nil {
		return nil, fmt.Errorf("querying score history: %w", err)
	}
	defer rows.Close()

	var entries []model.ScoreEntry
	for rows.Next() {
		var e model.ScoreEntry
		if err := rows.Scan(&e.ItemType, &e.NaturalID, &e.ObservedAt, &e.Score); err != nil {
			return nil, fmt.Errorf("scanning score entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CommitMerge writes a consolidated history in one transaction. Snapshots
// and items are upserted to their merged values; each item's score sequence
// is replaced wholesale with the merged, de-duplicated sequence. Replacing
// is what lets a merge collapse consecutive-duplicate runs that a legacy
// input store may contain.
func (s *SQLiteStore) CommitMerge(h *tracker.History) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	for _, snap := range h.Snapshots {
		_, err := tx.Exec(`
			INSERT INTO account_snapshots (username, observed_at, post_karma, comment_karma, total_karma)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (username, observed_at) DO UPDATE SET
				post_karma    = excluded.post_karma,
				comment_karma = excluded.comment_karma,
				total_karma   = excluded.total_karma`,
			snap.Account, snap.ObservedAt.UTC(), snap.PostKarma, snap.CommentKarma, snap.TotalKarma)
		if err != nil {
			return fmt.Errorf("merging account snapshot: %w", err)
		}
	}

	for _, item := range h.Items {
		_, err := tx.Exec(`
			INSERT INTO items (item_type, natural_id, username, subreddit, title, url, permalink,
			                   created_at, current_score, last_observed_at, local_image_path)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (item_type, natural_id) DO UPDATE SET
				username         = excluded.username,
				subreddit        = excluded.subreddit,
				title            = excluded.title,
				url              = excluded.url,
				permalink        = excluded.permalink,
				created_at       = excluded.created_at,
				current_score    = excluded.current_score,
				last_observed_at = excluded.last_observed_at,
				local_image_path = excluded.local_image_path`,
			item.Type, item.NaturalID, item.Account, item.Subreddit, item.Title, item.URL,
			item.Permalink, item.CreatedAt.UTC(), item.CurrentScore, item.LastObservedAt.UTC(),
			item.LocalImagePath)
		if err != nil {
			return fmt.Errorf("merging item: %w", err)
		}
	}

	for key, entries := range h.Scores {
		_, err := tx.Exec(`DELETE FROM score_history WHERE item_type = ? AND natural_id = ?`,
			key.Type, key.NaturalID)
		if err != nil {
			return fmt.Errorf("clearing score history: %w", err)
		}
		for _, e := range entries {
			if err := appendScoreHistory(tx, e); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing merge: %w", err)
	}
	return nil
}

// SetItemImagePath records an archived media path, only filling an empty one.
func (s *SQLiteStore) SetItemImagePath(itemType model.ItemType, naturalID string, path string) error {
	_, err := s.db.Exec(`
		UPDATE items SET local_image_path = ?
		WHERE item_type = ? AND natural_id = ? AND local_image_path = ''`,
		path, itemType, naturalID)
	if err != nil {
		return fmt.Errorf("setting image path: %w", err)
	}
	return nil
}

// Poll-run bookkeeping

func (s *SQLiteStore) CreatePollRun(account, operation string, startedAt time.Time) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO poll_runs (username, operation, started_at, status)
		VALUES (?, ?, ?, 'success')`,
		account, operation, startedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("creating poll run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading poll run id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) FinishPollRun(id int64, finishedAt time.Time, status string) error {
	_, err := s.db.Exec(`
		UPDATE poll_runs SET finished_at = ?, status = ? WHERE id = ?`,
		finishedAt.UTC(), status, id)
	if err != nil {
		return fmt.Errorf("finishing poll run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListPollRuns(limit int) ([]model.PollRun, error) {
	rows, err := s.db.Query(`
		SELECT id, username, operation, started_at, finished_at, status
		FROM poll_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing poll runs: %w", err)
	}
	defer rows.Close()

	var runs []model.PollRun
	for rows.Next() {
		var run model.PollRun
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.Account, &run.Operation, &run.StartedAt, &finished, &run.Status); err != nil {
			return nil, fmt.Errorf("scanning poll run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			run.FinishedAt = &t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteStore) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.Check(s.db)
}

// MigrateUp brings the schema to the latest version.
func (s *SQLiteStore) MigrateUp() error {
	return migrations.Up(s.db)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem(row scanner) (*model.Item, error) {
	var item model.Item
	err := row.Scan(&item.Type, &item.NaturalID, &item.Account, &item.Subreddit, &item.Title,
		&item.URL, &item.Permalink, &item.CreatedAt, &item.CurrentScore, &item.LastObservedAt,
		&item.LocalImagePath)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// wrapConstraint maps SQLite uniqueness violations on the time-keyed
// relations to the duplicate-timestamp sentinel.
func wrapConstraint(err error, op string) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%s: %w", op, tracker.ErrDuplicateTimestamp)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Compile-time check that SQLiteStore implements tracker.Store.
var _ tracker.Store = (*SQLiteStore)(nil)
