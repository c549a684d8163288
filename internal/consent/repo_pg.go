package consent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPG persists consents in PostgreSQL. Categories, scope, and
// flags are stored as JSONB documents; lifecycle fields are columns so the
// sweep query can use an index on (status, expires_at).
type RepositoryPG struct {
	pool *pgxpool.Pool
}

// NewRepositoryPG creates a repository backed by the given pool.
func NewRepositoryPG(pool *pgxpool.Pool) *RepositoryPG {
	return &RepositoryPG{pool: pool}
}

const consentCols = `id, patient_id, version, consent_type, status,
	data_categories, scope, flags,
	granted_at, expires_at, revoked_at, revoked_reason,
	created_by, created_at, updated_at`

func scanConsent(row pgx.Row) (*Consent, error) {
	var (
		c          Consent
		categories []byte
		scope      []byte
		flags      []byte
	)
	err := row.Scan(
		&c.ID, &c.PatientID, &c.Version, &c.Type, &c.Status,
		&categories, &scope, &flags,
		&c.GrantedAt, &c.ExpiresAt, &c.RevokedAt, &c.RevokedReason,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(categories, &c.DataCategories); err != nil {
		return nil, fmt.Errorf("decode data categories: %w", err)
	}
	if err := json.Unmarshal(scope, &c.Scope); err != nil {
		return nil, fmt.Errorf("decode scope: %w", err)
	}
	if err := json.Unmarshal(flags, &c.Flags); err != nil {
		return nil, fmt.Errorf("decode flags: %w", err)
	}
	return &c, nil
}

func encodeConsent(c *Consent) (categories, scope, flags []byte, err error) {
	if categories, err = json.Marshal(c.DataCategories); err != nil {
		return nil, nil, nil, fmt.Errorf("encode data categories: %w", err)
	}
	if scope, err = json.Marshal(c.Scope); err != nil {
		return nil, nil, nil, fmt.Errorf("encode scope: %w", err)
	}
	if flags, err = json.Marshal(c.Flags); err != nil {
		return nil, nil, nil, fmt.Errorf("encode flags: %w", err)
	}
	return categories, scope, flags, nil
}

func (r *RepositoryPG) Insert(ctx context.Context, c *Consent) error {
	categories, scope, flags, err := encodeConsent(c)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO patient_consent (
			id, patient_id, version, consent_type, status,
			data_categories, scope, flags,
			granted_at, expires_at, revoked_at, revoked_reason,
			created_by, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	_, err = r.pool.Exec(ctx, q,
		c.ID, c.PatientID, c.Version, c.Type, c.Status,
		categories, scope, flags,
		c.GrantedAt, c.ExpiresAt, c.RevokedAt, c.RevokedReason,
		c.CreatedBy, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert consent: %w", err)
	}
	return nil
}

func (r *RepositoryPG) Get(ctx context.Context, id uuid.UUID) (*Consent, error) {
	q := fmt.Sprintf("SELECT %s FROM patient_consent WHERE id = $1", consentCols)
	return scanConsent(r.pool.QueryRow(ctx, q, id))
}

func (r *RepositoryPG) Update(ctx context.Context, c *Consent) error {
	categories, scope, flags, err := encodeConsent(c)
	if err != nil {
		return err
	}
	const q = `
		UPDATE patient_consent SET
			status = $2, data_categories = $3, scope = $4, flags = $5,
			granted_at = $6, expires_at = $7, revoked_at = $8,
			revoked_reason = $9, updated_at = $10
		WHERE id = $1`
	tag, err := r.pool.Exec(ctx, q,
		c.ID, c.Status, categories, scope, flags,
		c.GrantedAt, c.ExpiresAt, c.RevokedAt, c.RevokedReason, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update consent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RepositoryPG) MaxVersion(ctx context.Context, patientID string, t Type) (int, error) {
	const q = `
		SELECT COALESCE(MAX(version), 0)
		FROM patient_consent
		WHERE patient_id = $1 AND consent_type = $2`
	var max int
	if err := r.pool.QueryRow(ctx, q, patientID, t).Scan(&max); err != nil {
		return 0, fmt.Errorf("max consent version: %w", err)
	}
	return max, nil
}

func (r *RepositoryPG) ListByPatient(ctx context.Context, patientID string, t *Type) ([]*Consent, error) {
	q := fmt.Sprintf("SELECT %s FROM patient_consent WHERE patient_id = $1", consentCols)
	args := []interface{}{patientID}
	if t != nil {
		q += " AND consent_type = $2"
		args = append(args, *t)
	}
	q += " ORDER BY version DESC, created_at DESC"

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	defer rows.Close()

	var consents []*Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		consents = append(consents, c)
	}
	return consents, rows.Err()
}

func (r *RepositoryPG) ListGrantedDue(ctx context.Context, now time.Time) ([]*Consent, error) {
	q := fmt.Sprintf(
		"SELECT %s FROM patient_consent WHERE status = $1 AND expires_at <= $2", consentCols)
	rows, err := r.pool.Query(ctx, q, StatusGranted, now)
	if err != nil {
		return nil, fmt.Errorf("list due consents: %w", err)
	}
	defer rows.Close()

	var due []*Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, c)
	}
	return due, rows.Err()
}
