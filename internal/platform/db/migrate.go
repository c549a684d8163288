package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migration is one versioned schema change. Migrations are compiled in so
// the binary is self-contained.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// MigrationStatus reports whether a migration has been applied.
type MigrationStatus struct {
	Version   int
	Name      string
	Applied   bool
	AppliedAt *time.Time
}

// Migrations is the ordered schema of the authorization and consent core.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "audit_event",
		SQL: `
CREATE TABLE IF NOT EXISTS audit_event (
    id UUID PRIMARY KEY,
    recorded TIMESTAMPTZ NOT NULL,
    principal_id TEXT NOT NULL,
    principal_role TEXT NOT NULL,
    action TEXT NOT NULL,
    resource_type TEXT NOT NULL,
    resource_id TEXT NOT NULL DEFAULT '',
    result TEXT NOT NULL,
    risk_level TEXT NOT NULL,
    correlation_id UUID NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_event_recorded ON audit_event (recorded);
CREATE INDEX IF NOT EXISTS idx_audit_event_principal ON audit_event (principal_id);
REVOKE UPDATE, DELETE ON audit_event FROM PUBLIC;`,
	},
	{
		Version: 2,
		Name:    "patient_consent",
		SQL: `
CREATE TABLE IF NOT EXISTS patient_consent (
    id UUID PRIMARY KEY,
    patient_id TEXT NOT NULL,
    version INTEGER NOT NULL,
    consent_type TEXT NOT NULL,
    status TEXT NOT NULL,
    data_categories JSONB NOT NULL,
    scope JSONB NOT NULL,
    flags JSONB NOT NULL,
    granted_at TIMESTAMPTZ,
    expires_at TIMESTAMPTZ,
    revoked_at TIMESTAMPTZ,
    revoked_reason TEXT NOT NULL DEFAULT '',
    created_by TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    UNIQUE (patient_id, consent_type, version)
);
CREATE INDEX IF NOT EXISTS idx_patient_consent_patient ON patient_consent (patient_id, consent_type);
CREATE INDEX IF NOT EXISTS idx_patient_consent_due ON patient_consent (status, expires_at);`,
	},
}

// Migrator applies the compiled-in migrations.
type Migrator struct {
	pool *pgxpool.Pool
}

// NewMigrator creates a Migrator.
func NewMigrator(pool *pgxpool.Pool) *Migrator {
	return &Migrator{pool: pool}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS _migrations (
    version INTEGER PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    applied_at TIMESTAMPTZ DEFAULT NOW()
)`
	if _, err := m.pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("create _migrations table: %w", err)
	}
	return nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.pool.Query(ctx, `SELECT version, applied_at FROM _migrations`)
	if err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, err
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

// Up applies pending migrations in order and returns how many ran.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range Migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		if _, err := m.pool.Exec(ctx, mig.SQL); err != nil {
			return count, fmt.Errorf("apply migration %d (%s): %w", mig.Version, mig.Name, err)
		}
		if _, err := m.pool.Exec(ctx,
			`INSERT INTO _migrations (version, name) VALUES ($1, $2)`,
			mig.Version, mig.Name); err != nil {
			return count, fmt.Errorf("record migration %d: %w", mig.Version, err)
		}
		count++
	}
	return count, nil
}

// Status reports each migration and whether it has been applied.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(Migrations))
	for _, mig := range Migrations {
		s := MigrationStatus{Version: mig.Version, Name: mig.Name}
		if at, ok := applied[mig.Version]; ok {
			s.Applied = true
			s.AppliedAt = &at
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}
