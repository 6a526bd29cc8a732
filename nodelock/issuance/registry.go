// Package issuance keeps a ledger of issued licenses so a license server
// can answer which licenses were granted to a machine and prune those that
// have run out.
package issuance

import (
	"context"
	"errors"
	"regexp"
	"time"
)

// ErrNotFound is returned when no record exists for a license id.
var ErrNotFound = errors.New("issuance record not found")

// validIdentifier matches safe table, collection and key prefix names.
var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Record describes one issued license.
type Record struct {
	LicenseID    string     `json:"license_id" bson:"license_id"`
	ContactID    string     `json:"contact_id" bson:"contact_id"`
	Fingerprint  string     `json:"fingerprint" bson:"fingerprint"`
	IssuedAt     time.Time  `json:"issued_at" bson:"issued_at"`
	ValidFrom    *time.Time `json:"valid_from,omitempty" bson:"valid_from,omitempty"`
	ValidTo      *time.Time `json:"valid_to,omitempty" bson:"valid_to,omitempty"`
	Holder       string     `json:"holder" bson:"holder"`
	Organization string     `json:"organization" bson:"organization"`
	Blob         string     `json:"blob" bson:"blob"`
	RecordedAt   time.Time  `json:"recorded_at" bson:"recorded_at"`
}

// expiredBefore reports whether the record's validity ended before cutoff.
func (r Record) expiredBefore(cutoff time.Time) bool {
	return r.ValidTo != nil && r.ValidTo.Before(cutoff)
}

// Registry stores issuance records.
type Registry interface {
	// Register creates or replaces the record for rec.LicenseID. The first
	// RecordedAt of a license id is kept.
	Register(ctx context.Context, rec Record) (*Record, error)

	// Get returns the record of a license id or ErrNotFound.
	Get(ctx context.Context, licenseID string) (*Record, error)

	// ListByFingerprint returns every record for a fingerprint digest,
	// oldest issue first.
	ListByFingerprint(ctx context.Context, fingerprint string) ([]Record, error)

	// Count returns the number of records for a fingerprint digest.
	Count(ctx context.Context, fingerprint string) (int, error)

	// Delete removes a record. Deleting an unknown id is not an error.
	Delete(ctx context.Context, licenseID string) error

	// Prune removes records whose validity ended before cutoff and returns
	// how many were removed. Records without an end are kept.
	Prune(ctx context.Context, cutoff time.Time) (int, error)

	// Close releases any resources held by the registry.
	Close(ctx context.Context) error
}
