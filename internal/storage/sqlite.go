// Package storage persists users, subscriptions, and run outcomes in SQLite.
package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "briefwire.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Users ---

// UpsertUserByEmail finds or creates the user with the given email. The given
// id is only used when the user does not exist yet.
func (s *Store) UpsertUserByEmail(id, email string) (User, error) {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO users (id, email, created_at) VALUES (?, ?, ?)
		ON CONFLICT(email) DO NOTHING`,
		id, email, now.Format(time.RFC3339),
	)
	if err != nil {
		return User{}, err
	}
	return s.GetUserByEmail(email)
}

func (s *Store) GetUser(id string) (User, error) {
	return s.scanUser(s.db.QueryRow(`SELECT id, email, created_at FROM users WHERE id = ?`, id))
}

func (s *Store) GetUserByEmail(email string) (User, error) {
	return s.scanUser(s.db.QueryRow(`SELECT id, email, created_at FROM users WHERE email = ?`, email))
}

func (s *Store) scanUser(row *sql.Row) (User, error) {
	var u User
	var createdAt string
	err := row.Scan(&u.ID, &u.Email, &createdAt)
	if err == sql.ErrNoRows {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	if u.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return User{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return u, nil
}

// --- Subscriptions ---

const subscriptionColumns = `id, user_id, topics_json, sources_json, frequency, cron,
	item_count, tone, enabled, require_approval, created_at, updated_at`

func (s *Store) CreateSubscription(rec SubscriptionRecord) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.Exec(`
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.TopicsJSON, rec.SourcesJSON, rec.Frequency, rec.Cron,
		rec.ItemCount, rec.Tone, rec.Enabled, rec.RequireApproval, now, now,
	)
	return err
}

func (s *Store) GetSubscription(id string) (SubscriptionRecord, error) {
	row := s.db.QueryRow(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id)
	return scanSubscription(row.Scan)
}

func (s *Store) UpdateSubscription(rec SubscriptionRecord) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`
		UPDATE subscriptions
		SET topics_json = ?, sources_json = ?, frequency = ?, cron = ?,
			item_count = ?, tone = ?, enabled = ?, require_approval = ?, updated_at = ?
		WHERE id = ?`,
		rec.TopicsJSON, rec.SourcesJSON, rec.Frequency, rec.Cron,
		rec.ItemCount, rec.Tone, rec.Enabled, rec.RequireApproval, now, rec.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListSubscriptionsByUser(userID string) ([]SubscriptionRecord, error) {
	rows, err := s.db.Query(`SELECT `+subscriptionColumns+`
		FROM subscriptions WHERE user_id = ? ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	return collectSubscriptions(rows)
}

// ListDueSubscriptions returns the subscriptions due for a run. Schedule
// evaluation is not implemented; every enabled subscription is due.
func (s *Store) ListDueSubscriptions() ([]SubscriptionRecord, error) {
	rows, err := s.db.Query(`SELECT ` + subscriptionColumns + `
		FROM subscriptions WHERE enabled = 1 ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	return collectSubscriptions(rows)
}

func collectSubscriptions(rows *sql.Rows) ([]SubscriptionRecord, error) {
	defer rows.Close()
	var results []SubscriptionRecord
	for rows.Next() {
		rec, err := scanSubscription(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func scanSubscription(scan func(...any) error) (SubscriptionRecord, error) {
	var rec SubscriptionRecord
	var createdAt, updatedAt string
	err := scan(&rec.ID, &rec.UserID, &rec.TopicsJSON, &rec.SourcesJSON, &rec.Frequency, &rec.Cron,
		&rec.ItemCount, &rec.Tone, &rec.Enabled, &rec.RequireApproval, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return SubscriptionRecord{}, ErrNotFound
	}
	if err != nil {
		return SubscriptionRecord{}, err
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return SubscriptionRecord{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return SubscriptionRecord{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return rec, nil
}

// --- Runs ---

func (s *Store) SaveRun(rec RunRecord) error {
	var sentAt any
	if !rec.SentAt.IsZero() {
		sentAt = rec.SentAt.UTC().Format(time.RFC3339)
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (id, subscription_id, status, subject, html, text, items_json, errors_json,
			candidate_count, selected_count, used_model, started_at, finished_at, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SubscriptionID, rec.Status, rec.Subject, rec.HTML, rec.Text,
		rec.ItemsJSON, rec.ErrorsJSON, rec.CandidateCount, rec.SelectedCount, rec.UsedModel,
		rec.StartedAt.UTC().Format(time.RFC3339), rec.FinishedAt.UTC().Format(time.RFC3339), sentAt,
	)
	return err
}

func (s *Store) GetRun(id string) (RunRecord, error) {
	row := s.db.QueryRow(`SELECT id, subscription_id, status, subject, html, text, items_json, errors_json,
		candidate_count, selected_count, used_model, started_at, finished_at, sent_at
		FROM runs WHERE id = ?`, id)
	return scanRun(row.Scan)
}

func (s *Store) ListRunsBySubscription(subscriptionID string, limit int) ([]RunRecord, error) {
	rows, err := s.db.Query(`SELECT id, subscription_id, status, subject, html, text, items_json, errors_json,
		candidate_count, selected_count, used_model, started_at, finished_at, sent_at
		FROM runs WHERE subscription_id = ? ORDER BY started_at DESC LIMIT ?`, subscriptionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// MarkRunSent records the send time and flips the run status to sent.
func (s *Store) MarkRunSent(id string, at time.Time) error {
	res, err := s.db.Exec(`UPDATE runs SET status = 'sent', sent_at = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanRun(scan func(...any) error) (RunRecord, error) {
	var rec RunRecord
	var startedAt, finishedAt string
	var sentAt sql.NullString
	err := scan(&rec.ID, &rec.SubscriptionID, &rec.Status, &rec.Subject, &rec.HTML, &rec.Text,
		&rec.ItemsJSON, &rec.ErrorsJSON, &rec.CandidateCount, &rec.SelectedCount, &rec.UsedModel,
		&startedAt, &finishedAt, &sentAt)
	if err == sql.ErrNoRows {
		return RunRecord{}, ErrNotFound
	}
	if err != nil {
		return RunRecord{}, err
	}
	if rec.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return RunRecord{}, fmt.Errorf("parsing started_at: %w", err)
	}
	if rec.FinishedAt, err = time.Parse(time.RFC3339, finishedAt); err != nil {
		return RunRecord{}, fmt.Errorf("parsing finished_at: %w", err)
	}
	if sentAt.Valid {
		if rec.SentAt, err = time.Parse(time.RFC3339, sentAt.String); err != nil {
			return RunRecord{}, fmt.Errorf("parsing sent_at: %w", err)
		}
	}
	return rec, nil
}
