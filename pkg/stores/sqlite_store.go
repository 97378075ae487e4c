package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/stanchionhq/stanchion/pkg/faults"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DefaultBusyTimeout bounds how long a handle waits for a lock held by a
// concurrent writer before failing.
const DefaultBusyTimeout = 5 * time.Second

// SQLiteStore implements the state store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	BusyTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, faults.NewConfigError("store path is required", nil).WithField("Path")
	}

	// Set defaults
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = DefaultBusyTimeout
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// openHandle opens a SQLite handle configured for concurrent-safe access:
// write-ahead logging and a bounded busy timeout so conflicting external
// access waits instead of failing immediately.
func openHandle(ctx context.Context, path string, busyTimeout time.Duration) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL&_txlock=immediate",
		path, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, faults.NewDatabaseError("failed to open store", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, faults.NewDatabaseError("failed to ping store", err)
	}

	return db, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	db, err := openHandle(ctx, s.path, s.cfg.BusyTimeout)
	if err != nil {
		return err
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return faults.NewDatabaseError("failed to enable foreign keys", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return faults.NewDatabaseError("failed to close store", err)
		}
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return faults.NewDatabaseError("store not initialized", nil)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return faults.NewDatabaseError("failed to create migration source", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return faults.NewDatabaseError("failed to create migration driver", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return faults.NewDatabaseError("failed to create migration instance", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return faults.NewDatabaseError("failed to run migrations", err)
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return faults.NewDatabaseError("store not initialized", nil)
	}
	if err := s.db.PingContext(ctx); err != nil {
		return faults.NewDatabaseError("store health check failed", err)
	}
	return nil
}

// Path returns the filesystem path of the store.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Session operations

// PutSession inserts or replaces a session by account.
func PutSession(ctx context.Context, q Querier, session *Session) error {
	query := `
		INSERT INTO sessions (id, account, access_token, refresh_token, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		session.ID,
		session.Account,
		session.AccessToken,
		session.RefreshToken,
		session.ExpiresAt,
		session.CreatedAt,
		session.UpdatedAt,
	)

	if err != nil {
		return faults.NewDatabaseError("failed to put session", err)
	}

	return nil
}

// GetSession retrieves a session by account.
func GetSession(ctx context.Context, q Querier, account string) (*Session, error) {
	query := `
		SELECT id, account, access_token, refresh_token, expires_at, created_at, updated_at
		FROM sessions
		WHERE account = ?
	`

	session := &Session{}
	err := q.QueryRowContext(ctx, query, account).Scan(
		&session.ID,
		&session.Account,
		&session.AccessToken,
		&session.RefreshToken,
		&session.ExpiresAt,
		&session.CreatedAt,
		&session.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, faults.NewDatabaseError("session not found: "+account, err)
	}
	if err != nil {
		return nil, faults.NewDatabaseError("failed to get session", err)
	}

	return session, nil
}

// ListSessions lists all sessions ordered by account.
func ListSessions(ctx context.Context, q Querier) ([]*Session, error) {
	query := `
		SELECT id, account, access_token, refresh_token, expires_at, created_at, updated_at
		FROM sessions
		ORDER BY account ASC
	`

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, faults.NewDatabaseError("failed to list sessions", err)
	}
	defer rows.Close()

	sessions := []*Session{}
	for rows.Next() {
		session := &Session{}
		err := rows.Scan(
			&session.ID,
			&session.Account,
			&session.AccessToken,
			&session.RefreshToken,
			&session.ExpiresAt,
			&session.CreatedAt,
			&session.UpdatedAt,
		)
		if err != nil {
			return nil, faults.NewDatabaseError("failed to scan session", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, faults.NewDatabaseError("error iterating sessions", err)
	}

	return sessions, nil
}

// DeleteSession deletes a session by account.
func DeleteSession(ctx context.Context, q Querier, account string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM sessions WHERE account = ?`, account)
	if err != nil {
		return faults.NewDatabaseError("failed to delete session", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return faults.NewDatabaseError("failed to get rows affected", err)
	}

	if rows == 0 {
		return faults.NewDatabaseError("session not found: "+account, nil)
	}

	return nil
}

// Machine identity operations

// ReplaceIdentity swaps the singleton machine identity row.
func ReplaceIdentity(ctx context.Context, q Querier, identity *MachineIdentity) error {
	query := `
		INSERT INTO machine_identity (singleton, machine_id, device_id, sqm_id, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(singleton) DO UPDATE SET
			machine_id = excluded.machine_id,
			device_id = excluded.device_id,
			sqm_id = excluded.sqm_id,
			updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		identity.MachineID,
		identity.DeviceID,
		identity.SQMID,
		identity.UpdatedAt,
	)

	if err != nil {
		return faults.NewDatabaseError("failed to replace machine identity", err)
	}

	return nil
}

// GetIdentity retrieves the machine identity, if one has been written.
func GetIdentity(ctx context.Context, q Querier) (*MachineIdentity, error) {
	query := `SELECT machine_id, device_id, sqm_id, updated_at FROM machine_identity WHERE singleton = 1`

	identity := &MachineIdentity{}
	err := q.QueryRowContext(ctx, query).Scan(
		&identity.MachineID,
		&identity.DeviceID,
		&identity.SQMID,
		&identity.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, faults.NewDatabaseError("machine identity not set", err)
	}
	if err != nil {
		return nil, faults.NewDatabaseError("failed to get machine identity", err)
	}

	return identity, nil
}

// Usage counter operations

// AddUsage increments a named counter, creating it on first use.
func AddUsage(ctx context.Context, q Querier, name string, delta int64) error {
	query := `
		INSERT INTO usage_counters (name, used, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			used = used + excluded.used,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := q.ExecContext(ctx, query, name, delta); err != nil {
		return faults.NewDatabaseError("failed to add usage", err)
	}

	return nil
}

// SetUsageLimit sets the quota for a named counter, creating it if needed.
func SetUsageLimit(ctx context.Context, q Querier, name string, limit int64) error {
	query := `
		INSERT INTO usage_counters (name, max_allowed, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			max_allowed = excluded.max_allowed,
			updated_at = CURRENT_TIMESTAMP
	`

	if _, err := q.ExecContext(ctx, query, name, limit); err != nil {
		return faults.NewDatabaseError("failed to set usage limit", err)
	}

	return nil
}

// GetUsage retrieves a usage counter by name.
func GetUsage(ctx context.Context, q Querier, name string) (*UsageCounter, error) {
	query := `SELECT name, used, max_allowed, updated_at FROM usage_counters WHERE name = ?`

	counter := &UsageCounter{}
	err := q.QueryRowContext(ctx, query, name).Scan(
		&counter.Name,
		&counter.Used,
		&counter.Limit,
		&counter.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, faults.NewDatabaseError("usage counter not found: "+name, err)
	}
	if err != nil {
		return nil, faults.NewDatabaseError("failed to get usage counter", err)
	}

	return counter, nil
}

// ResetUsage zeroes a named counter.
func ResetUsage(ctx context.Context, q Querier, name string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE usage_counters SET used = 0, updated_at = CURRENT_TIMESTAMP WHERE name = ?`, name)
	if err != nil {
		return faults.NewDatabaseError("failed to reset usage", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return faults.NewDatabaseError("failed to get rows affected", err)
	}

	if rows == 0 {
		return faults.NewDatabaseError("usage counter not found: "+name, nil)
	}

	return nil
}

// Pool-backed convenience methods used by read-only callers.

// GetSession retrieves a session by account from the pool.
func (s *SQLiteStore) GetSession(ctx context.Context, account string) (*Session, error) {
	return GetSession(ctx, s.db, account)
}

// ListSessions lists all sessions from the pool.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*Session, error) {
	return ListSessions(ctx, s.db)
}

// GetIdentity retrieves the machine identity from the pool.
func (s *SQLiteStore) GetIdentity(ctx context.Context) (*MachineIdentity, error) {
	return GetIdentity(ctx, s.db)
}

// GetUsage retrieves a usage counter from the pool.
func (s *SQLiteStore) GetUsage(ctx context.Context, name string) (*UsageCounter, error) {
	return GetUsage(ctx, s.db, name)
}
