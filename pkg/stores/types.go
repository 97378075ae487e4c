package stores

import (
	"context"
	"database/sql"
	"time"
)

// Session represents a stored account session with its tokens.
type Session struct {
	ID           string     `json:"id"`
	Account      string     `json:"account"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// MachineIdentity is the singleton set of machine identifiers the tool
// manages. ReplaceIdentity swaps the whole row atomically.
type MachineIdentity struct {
	MachineID string    `json:"machine_id"`
	DeviceID  string    `json:"device_id"`
	SQMID     string    `json:"sqm_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UsageCounter tracks consumption against a named quota.
type UsageCounter struct {
	Name      string    `json:"name"`
	Used      int64     `json:"used"`
	Limit     int64     `json:"limit"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Querier is the query surface shared by the connection pool and open
// transactions. Both *sql.DB and *sql.Tx satisfy it.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
