package issuance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultPostgresTable = "cnw_nodelock_issuance"

// PostgresOption configures a PostgresRegistry.
type PostgresOption func(*PostgresRegistry)

// WithTableName sets the PostgreSQL table name. Default: "cnw_nodelock_issuance".
func WithTableName(name string) PostgresOption {
	return func(r *PostgresRegistry) {
		r.tableName = name
	}
}

// PostgresRegistry implements Registry using PostgreSQL.
type PostgresRegistry struct {
	pool      *pgxpool.Pool
	tableName string
	owned     bool
}

// NewPostgresRegistry creates a PostgreSQL-backed registry. It creates the
// table and its index on initialization. The caller keeps ownership of pool.
func NewPostgresRegistry(ctx context.Context, pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresRegistry, error) {
	r := &PostgresRegistry{
		pool:      pool,
		tableName: defaultPostgresTable,
	}
	for _, opt := range opts {
		opt(r)
	}
	if !validIdentifier.MatchString(r.tableName) {
		return nil, fmt.Errorf("invalid table name %q: must match [a-zA-Z_][a-zA-Z0-9_]*", r.tableName)
	}
	if err := r.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}
	return r, nil
}

func (r *PostgresRegistry) ensureTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			license_id   TEXT PRIMARY KEY,
			contact_id   TEXT NOT NULL DEFAULT '',
			fingerprint  TEXT NOT NULL,
			issued_at    TIMESTAMPTZ NOT NULL,
			valid_from   TIMESTAMPTZ,
			valid_to     TIMESTAMPTZ,
			holder       TEXT NOT NULL DEFAULT '',
			organization TEXT NOT NULL DEFAULT '',
			blob         TEXT NOT NULL,
			recorded_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_%s_fingerprint_issued
			ON %s (fingerprint, issued_at);
	`, r.tableName, r.tableName, r.tableName)
	_, err := r.pool.Exec(ctx, query)
	return err
}

const postgresColumns = `license_id, contact_id, fingerprint, issued_at, valid_from, valid_to,
	holder, organization, blob, recorded_at`

func (r *PostgresRegistry) Register(ctx context.Context, rec Record) (*Record, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (`+postgresColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (license_id) DO UPDATE SET
			contact_id = EXCLUDED.contact_id,
			fingerprint = EXCLUDED.fingerprint,
			issued_at = EXCLUDED.issued_at,
			valid_from = EXCLUDED.valid_from,
			valid_to = EXCLUDED.valid_to,
			holder = EXCLUDED.holder,
			organization = EXCLUDED.organization,
			blob = EXCLUDED.blob
		RETURNING recorded_at
	`, r.tableName)

	err := r.pool.QueryRow(ctx, query,
		rec.LicenseID, rec.ContactID, rec.Fingerprint, rec.IssuedAt, rec.ValidFrom, rec.ValidTo,
		rec.Holder, rec.Organization, rec.Blob, time.Now().UTC(),
	).Scan(&rec.RecordedAt)
	if err != nil {
		return nil, fmt.Errorf("register issuance: %w", err)
	}
	return &rec, nil
}

func (r *PostgresRegistry) Get(ctx context.Context, licenseID string) (*Record, error) {
	query := fmt.Sprintf(`SELECT `+postgresColumns+` FROM %s WHERE license_id = $1`, r.tableName)
	rec, err := scanRecord(r.pool.QueryRow(ctx, query, licenseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get issuance: %w", err)
	}
	return &rec, nil
}

func (r *PostgresRegistry) ListByFingerprint(ctx context.Context, fingerprint string) ([]Record, error) {
	query := fmt.Sprintf(`
		SELECT `+postgresColumns+`
		FROM %s WHERE fingerprint = $1 ORDER BY issued_at, license_id
	`, r.tableName)

	rows, err := r.pool.Query(ctx, query, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("list issuance: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issuance: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *PostgresRegistry) Count(ctx context.Context, fingerprint string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE fingerprint = $1`, r.tableName)
	var count int
	if err := r.pool.QueryRow(ctx, query, fingerprint).Scan(&count); err != nil {
		return 0, fmt.Errorf("count issuance: %w", err)
	}
	return count, nil
}

func (r *PostgresRegistry) Delete(ctx context.Context, licenseID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE license_id = $1`, r.tableName)
	if _, err := r.pool.Exec(ctx, query, licenseID); err != nil {
		return fmt.Errorf("delete issuance: %w", err)
	}
	return nil
}

func (r *PostgresRegistry) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	query := fmt.Sprintf(`DELETE FROM %s WHERE valid_to IS NOT NULL AND valid_to < $1`, r.tableName)
	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune issuance: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Close closes the pool only when the registry opened it itself.
func (r *PostgresRegistry) Close(_ context.Context) error {
	if r.owned {
		r.pool.Close()
	}
	return nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(&rec.LicenseID, &rec.ContactID, &rec.Fingerprint, &rec.IssuedAt,
		&rec.ValidFrom, &rec.ValidTo, &rec.Holder, &rec.Organization, &rec.Blob, &rec.RecordedAt)
	return rec, err
}
