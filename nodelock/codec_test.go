package nodelock

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreated = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestTextCodec_EncodeContact(t *testing.T) {
	c := RestoreContact("c-1", testCreated, testHardware, versionPtr("2.1"))

	got, err := TextCodec{}.EncodeContact(c)
	require.NoError(t, err)

	want := "[Contact]\n" +
		"Contact.Format=1\n" +
		"Contact.Id=c-1\n" +
		"Contact.Creation=2024-06-01T12:00:00Z\n" +
		"Product.Version=2.1\n" +
		"\n" +
		"[Hardware]\n" +
		"cpu.model=X1\n" +
		"machine.id=4c4c4544-0042\n" +
		"net.mac=00:11:22:33:44:55\n" +
		"os.platform=linux/amd64\n"
	assert.Equal(t, want, got)
}

func TestTextCodec_ContactRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		version *Version
		hw      map[string]string
	}{
		{"full", versionPtr("3.2.1.7"), testHardware},
		{"unknown version", nil, testHardware},
		{"no hardware", versionPtr("1.0"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := RestoreContact("c-1", testCreated.Add(123456789), tt.hw, tt.version)
			text, err := TextCodec{}.EncodeContact(in)
			require.NoError(t, err)

			out, err := TextCodec{}.DecodeContact(text)
			require.NoError(t, err)
			assert.Equal(t, in.ID(), out.ID())
			assert.True(t, in.CreationTime().Equal(out.CreationTime()))
			assert.Equal(t, in.RequiredHardware(), out.RequiredHardware())
			assert.Equal(t, in.SoftwareVersion(), out.SoftwareVersion())
		})
	}
}

func fullLicense(t *testing.T) *License {
	t.Helper()
	l := NewLicense("lic-1", testCreated)
	for k, v := range testHardware {
		require.NoError(t, l.SetRequiredHardware(k, v))
	}
	require.NoError(t, l.SetValidity(MustInterval(testCreated, testCreated.AddDate(1, 0, 0))))
	require.NoError(t, l.SetMinimumVersion(MustParseVersion("1.0")))
	require.NoError(t, l.SetMaximumVersion(MustParseVersion("1.9.9")))
	require.NoError(t, l.SetEndUser(EndUser{
		FullName:     "Jane Doe",
		Organization: "Acme",
		Address:      "1 Main St",
		PhoneNumber:  "+1 555 0100",
		EMailAddress: "jane@example.com",
		Notes:        "a=b; c",
	}))
	require.NoError(t, l.SetFeature(10, 1))
	require.NoError(t, l.SetFeature(2, 0))
	require.NoError(t, l.SetFeature(-5, 250))
	return l
}

func TestTextCodec_LicenseRoundTrip(t *testing.T) {
	t.Run("all fields", func(t *testing.T) {
		in := fullLicense(t)
		text, err := TextCodec{}.EncodeLicense(in)
		require.NoError(t, err)
		assert.Contains(t, text, "[Features]\n-5=250\n2=0\n10=1\n")

		out, err := TextCodec{}.DecodeLicense(text)
		require.NoError(t, err)
		assert.Equal(t, in.ID(), out.ID())
		assert.True(t, in.CreationTime().Equal(out.CreationTime()))
		assert.True(t, in.Validity().Equal(out.Validity()))
		assert.Equal(t, in.MinimumVersion(), out.MinimumVersion())
		assert.Equal(t, in.MaximumVersion(), out.MaximumVersion())
		assert.Equal(t, in.RequiredHardware(), out.RequiredHardware())
		assert.Equal(t, in.Features(), out.Features())
		inUser, _ := in.EndUser()
		outUser, ok := out.EndUser()
		require.True(t, ok)
		assert.Equal(t, inUser, outUser)
		assert.False(t, out.Frozen())

		again, err := TextCodec{}.EncodeLicense(out)
		require.NoError(t, err)
		assert.Equal(t, text, again)
	})

	t.Run("optional fields unset", func(t *testing.T) {
		in := NewLicense("lic-2", testCreated)
		text, err := TextCodec{}.EncodeLicense(in)
		require.NoError(t, err)

		out, err := TextCodec{}.DecodeLicense(text)
		require.NoError(t, err)
		assert.True(t, out.Validity().IsUnbounded())
		assert.Nil(t, out.MinimumVersion())
		assert.Nil(t, out.MaximumVersion())
		_, ok := out.EndUser()
		assert.False(t, ok)
		assert.Empty(t, out.Features())
		assert.Empty(t, out.RequiredHardware())

		// The optional fields can still be set once after decoding.
		assert.NoError(t, out.SetValidity(MustInterval(testCreated, time.Time{})))
	})

	t.Run("open ended validity", func(t *testing.T) {
		in := NewLicense("lic-3", testCreated)
		require.NoError(t, in.SetValidity(MustInterval(time.Time{}, testCreated)))
		text, err := TextCodec{}.EncodeLicense(in)
		require.NoError(t, err)
		out, err := TextCodec{}.DecodeLicense(text)
		require.NoError(t, err)
		assert.True(t, out.Validity().From().IsZero())
		assert.True(t, out.Validity().To().Equal(testCreated))
	})
}

func TestTextCodec_DecodeTolerance(t *testing.T) {
	text := "; issued by hand\r\n" +
		"[license]\r\n" +
		"license.format = 1\r\n" +
		"LICENSE.ID=lic-9\r\n" +
		"License.Creation=2024-06-01T12:00:00Z\r\n" +
		"Some.Future.Key=whatever\r\n" +
		"\r\n" +
		"[HARDWARE]\r\n" +
		"cpu.model=X1\r\n" +
		"[Features]\r\n" +
		" 7 = 3 \r\n" +
		"[Extra]\r\n" +
		"unused=1\r\n"

	l, err := TextCodec{}.DecodeLicense(text)
	require.NoError(t, err)
	assert.Equal(t, "lic-9", l.ID())
	assert.Equal(t, map[string]string{"cpu.model": "X1"}, l.RequiredHardware())
	v, ok := l.Feature(7)
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestTextCodec_DecodeErrors(t *testing.T) {
	const head = "[License]\nLicense.Format=1\nLicense.Id=lic-1\nLicense.Creation=2024-06-01T12:00:00Z\n"

	tests := []struct {
		name string
		text string
		want error
	}{
		{"empty", "", ErrUnknownFormat},
		{"wrong head section", "[Contact]\nContact.Format=1\n", ErrUnknownFormat},
		{"missing format", "[License]\nLicense.Id=x\n", ErrUnknownFormat},
		{"future format", strings.Replace(head, "Format=1", "Format=2", 1), ErrUnknownFormat},
		{"bad header", "[License\n", ErrMalformedContent},
		{"line without separator", head + "garbage\n", ErrMalformedContent},
		{"entry before section", "a=b\n" + head, ErrMalformedContent},
		{"empty id", strings.Replace(head, "lic-1", " ", 1), ErrMalformedContent},
		{"bad creation", strings.Replace(head, "2024-06-01T12:00:00Z", "yesterday", 1), ErrMalformedContent},
		{"bad version", head + "Product.Version.Minimum=1.x\n", ErrMalformedContent},
		{"reversed validity", head + "Validity.From=2024-06-02T00:00:00Z\nValidity.To=2024-06-01T00:00:00Z\n", ErrMalformedContent},
		{"bad feature id", head + "[Features]\nreports=1\n", ErrMalformedContent},
		{"bad feature value", head + "[Features]\n1=yes\n", ErrMalformedContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := TextCodec{}.DecodeLicense(tt.text)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, IsLicensingError(err))
			assert.False(t, IsUsageError(err))
		})
	}
}

func TestTextCodec_DecodeContactErrors(t *testing.T) {
	_, err := TextCodec{}.DecodeContact("[License]\nLicense.Format=1\n")
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = TextCodec{}.DecodeContact("[Contact]\nContact.Format=1\nContact.Creation=2024-06-01T12:00:00Z\n")
	assert.ErrorIs(t, err, ErrMalformedContent)
}

func TestTextCodec_Unrepresentable(t *testing.T) {
	tests := []struct {
		name  string
		probe string
		value string
	}{
		{"newline in value", "cpu.model", "X1\nX2"},
		{"equals in key", "a=b", "1"},
		{"section-like key", "[x]", "1"},
		{"comment-like key", ";x", "1"},
		{"padded key", " cpu ", "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := RestoreContact("c-1", testCreated, map[string]string{tt.probe: tt.value}, nil)
			_, err := TextCodec{}.EncodeContact(c)
			assert.ErrorIs(t, err, ErrUnrepresentable)
			assert.True(t, IsUsageError(err))
		})
	}

	t.Run("keys equal ignoring case", func(t *testing.T) {
		c := RestoreContact("c-1", testCreated, map[string]string{"CPU": "a", "cpu": "b"}, nil)
		_, err := TextCodec{}.EncodeContact(c)
		assert.ErrorIs(t, err, ErrUnrepresentable)
	})

	l := NewLicense("lic-1", testCreated)
	require.NoError(t, l.SetEndUser(EndUser{Notes: "line one\r\nline two"}))
	_, err := TextCodec{}.EncodeLicense(l)
	assert.ErrorIs(t, err, ErrUnrepresentable)
}

func TestTextCodec_NilArguments(t *testing.T) {
	_, err := TextCodec{}.EncodeContact(nil)
	assert.ErrorIs(t, err, ErrNilArgument)
	_, err = TextCodec{}.EncodeLicense(nil)
	assert.ErrorIs(t, err, ErrNilArgument)
}
