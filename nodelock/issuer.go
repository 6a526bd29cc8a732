package nodelock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/CloudNativeWorks/cnw-nodelock-sdk/nodelock/issuance"
)

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithRegistry records every issued license in r.
func WithRegistry(r issuance.Registry) IssuerOption {
	return func(i *Issuer) {
		i.registry = r
	}
}

// WithIssuerLogger sets the issuer's logger.
func WithIssuerLogger(l *slog.Logger) IssuerOption {
	return func(i *Issuer) {
		i.logger = l
	}
}

// WithIssuerClock overrides time.Now for license creation times.
func WithIssuerClock(clock func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.clock = clock
	}
}

// WithIssuerMetrics counts issued licenses on metrics.
func WithIssuerMetrics(m *Metrics) IssuerOption {
	return func(i *Issuer) {
		i.metrics = m
	}
}

// Issuer is the license server side: it reads contacts, prepares licenses
// bound to the contact's machine and signs them.
type Issuer struct {
	contacts *ContactReader
	licenses *LicenseWriter
	registry issuance.Registry
	logger   *slog.Logger
	clock    func() time.Time
	metrics  *Metrics
}

// NewIssuer creates an issuer. The channel must hold the private key.
func NewIssuer(ch *Channel, opts ...IssuerOption) (*Issuer, error) {
	contacts, err := NewContactReader(ch)
	if err != nil {
		return nil, err
	}
	licenses, err := NewLicenseWriter(ch)
	if err != nil {
		return nil, err
	}
	i := &Issuer{
		contacts: contacts,
		licenses: licenses,
		logger:   slog.Default().With("component", "nodelock-issuer"),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// ReadContact decrypts and decodes a contact blob.
func (i *Issuer) ReadContact(blob string) (*Contact, error) {
	return i.contacts.FromString(blob)
}

// ReadContactFile reads a contact from path.
func (i *Issuer) ReadContactFile(path string) (*Contact, error) {
	return i.contacts.FromFile(path)
}

// NewLicense prepares an unfrozen license bound to the contact's machine.
// The caller adds validity, versions, end user and features before Issue.
func (i *Issuer) NewLicense(c *Contact) (*License, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: contact", ErrNilArgument)
	}
	l := NewLicense(newTokenID(), i.clock().UTC())
	for probe, value := range c.hardware {
		l.hardware[probe] = value
	}
	l.origin = c.ID()
	return l, nil
}

// Issue signs l and returns the license blob. With a registry configured
// the issuance is recorded before the blob is returned.
func (i *Issuer) Issue(ctx context.Context, l *License) (string, error) {
	blob, err := i.licenses.ToString(l)
	if err != nil {
		return "", err
	}
	if i.registry != nil {
		rec := issuanceRecord(l, blob)
		if _, err := i.registry.Register(ctx, rec); err != nil {
			return "", fmt.Errorf("record issuance: %w", err)
		}
	}
	i.metrics.licenseIssued()
	i.logger.Info("License issued",
		slog.String("license_id", l.ID()),
		slog.Int("hardware_entries", l.HardwareLen()),
		slog.Int("features", len(l.features)),
	)
	return blob, nil
}

// IssueToFile signs l and writes the blob to path.
func (i *Issuer) IssueToFile(ctx context.Context, path string, l *License) error {
	blob, err := i.Issue(ctx, l)
	if err != nil {
		return err
	}
	return writeFile(path, blob)
}

func issuanceRecord(l *License, blob string) issuance.Record {
	rec := issuance.Record{
		LicenseID:   l.ID(),
		ContactID:   l.origin,
		Fingerprint: FingerprintDigest(l.hardware),
		IssuedAt:    l.CreationTime(),
		Blob:        blob,
	}
	if from := l.validity.From(); !from.IsZero() {
		rec.ValidFrom = &from
	}
	if to := l.validity.To(); !to.IsZero() {
		rec.ValidTo = &to
	}
	if u, ok := l.EndUser(); ok {
		rec.Holder = u.FullName
		rec.Organization = u.Organization
	}
	return rec
}
