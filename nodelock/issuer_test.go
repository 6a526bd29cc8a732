package nodelock

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CloudNativeWorks/cnw-nodelock-sdk/nodelock/issuance"
)

type failingRegistry struct {
	*issuance.MemoryRegistry
}

func (failingRegistry) Register(context.Context, issuance.Record) (*issuance.Record, error) {
	return nil, errors.New("registry unavailable")
}

func requestBlob(t *testing.T, env Environment) (*Contact, string) {
	t.Helper()
	contact, err := NewContact(env)
	require.NoError(t, err)
	w, err := NewContactWriter(clientChannel(t))
	require.NoError(t, err)
	blob, err := w.ToString(contact)
	require.NoError(t, err)
	return contact, blob
}

func TestIssuer_IssueAndRecord(t *testing.T) {
	ctx := context.Background()
	registry := issuance.NewMemoryRegistry()
	metrics, err := NewMetrics(nil)
	require.NoError(t, err)
	issuer, err := NewIssuer(serverChannel(t),
		WithRegistry(registry),
		WithIssuerClock(fixedClock(testCreated)),
		WithIssuerMetrics(metrics),
	)
	require.NoError(t, err)

	contact, blob := requestBlob(t, staticEnv(testHardware, versionPtr("1.2"), testCreated))
	got, err := issuer.ReadContact(blob)
	require.NoError(t, err)
	assert.Equal(t, contact.ID(), got.ID())

	lic, err := issuer.NewLicense(got)
	require.NoError(t, err)
	assert.NotEqual(t, contact.ID(), lic.ID())
	assert.True(t, lic.CreationTime().Equal(testCreated))
	assert.Equal(t, testHardware, lic.RequiredHardware())
	require.NoError(t, lic.SetValidity(MustInterval(testCreated, testCreated.AddDate(0, 0, 30))))
	require.NoError(t, lic.SetEndUser(EndUser{FullName: "Jane Doe", Organization: "Acme"}))
	require.NoError(t, lic.SetFeature(10, 1))

	licBlob, err := issuer.Issue(ctx, lic)
	require.NoError(t, err)

	rec, err := registry.Get(ctx, lic.ID())
	require.NoError(t, err)
	assert.Equal(t, contact.ID(), rec.ContactID)
	assert.Equal(t, FingerprintDigest(testHardware), rec.Fingerprint)
	assert.Equal(t, licBlob, rec.Blob)
	assert.Equal(t, "Jane Doe", rec.Holder)
	assert.Equal(t, "Acme", rec.Organization)
	require.NotNil(t, rec.ValidTo)
	assert.True(t, rec.ValidTo.Equal(testCreated.AddDate(0, 0, 30)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.issued))

	// The client verifies the issued license on the requesting machine.
	reader, err := NewLicenseReader(clientChannel(t),
		WithReaderEnvironment(staticEnv(testHardware, versionPtr("1.2"), testCreated.Add(time.Hour))))
	require.NoError(t, err)
	installed, err := reader.FromString(licBlob)
	require.NoError(t, err)
	assert.True(t, installed.IsValid())
}

func TestIssuer_IssueToFile(t *testing.T) {
	issuer, err := NewIssuer(serverChannel(t))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "request.txt")
	w, err := NewContactWriter(clientChannel(t))
	require.NoError(t, err)
	contact, err := NewContact(staticEnv(testHardware, nil, testCreated))
	require.NoError(t, err)
	require.NoError(t, w.ToFile(path, contact))

	got, err := issuer.ReadContactFile(path)
	require.NoError(t, err)
	lic, err := issuer.NewLicense(got)
	require.NoError(t, err)

	licPath := filepath.Join(t.TempDir(), "product.lic")
	require.NoError(t, issuer.IssueToFile(context.Background(), licPath, lic))

	reader, err := NewLicenseReader(clientChannel(t))
	require.NoError(t, err)
	installed, err := reader.FromFile(licPath)
	require.NoError(t, err)
	assert.Equal(t, lic.ID(), installed.ID())
}

func TestIssuer_Errors(t *testing.T) {
	_, err := NewIssuer(nil)
	assert.ErrorIs(t, err, ErrNilArgument)

	issuer, err := NewIssuer(serverChannel(t))
	require.NoError(t, err)
	_, err = issuer.NewLicense(nil)
	assert.ErrorIs(t, err, ErrNilArgument)

	clientSide, err := NewIssuer(clientChannel(t))
	require.NoError(t, err)
	_, err = clientSide.Issue(context.Background(), NewLicense("lic-1", testCreated))
	assert.ErrorIs(t, err, ErrSigningUnavailable)

	failing, err := NewIssuer(serverChannel(t), WithRegistry(failingRegistry{issuance.NewMemoryRegistry()}))
	require.NoError(t, err)
	_, err = failing.Issue(context.Background(), NewLicense("lic-1", testCreated))
	assert.ErrorContains(t, err, "record issuance")
}

func TestIssuer_RetryAfterFailedRecord(t *testing.T) {
	ctx := context.Background()
	_, blob := requestBlob(t, staticEnv(testHardware, versionPtr("1.2"), testCreated))

	failing, err := NewIssuer(serverChannel(t), WithRegistry(failingRegistry{issuance.NewMemoryRegistry()}))
	require.NoError(t, err)
	contact, err := failing.ReadContact(blob)
	require.NoError(t, err)
	lic, err := failing.NewLicense(contact)
	require.NoError(t, err)
	_, err = failing.Issue(ctx, lic)
	require.Error(t, err)

	// The contact id travels with the license, not with the issuer.
	registry := issuance.NewMemoryRegistry()
	issuer, err := NewIssuer(serverChannel(t), WithRegistry(registry))
	require.NoError(t, err)
	_, err = issuer.Issue(ctx, lic)
	require.NoError(t, err)
	rec, err := registry.Get(ctx, lic.ID())
	require.NoError(t, err)
	assert.Equal(t, contact.ID(), rec.ContactID)
}
