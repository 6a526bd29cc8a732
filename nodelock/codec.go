package nodelock

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// FormatVersion is the format tag written into and required from every
// encoded contact and license.
const FormatVersion = "1"

// Section names and keys of the text format.
const (
	sectionContact  = "Contact"
	sectionLicense  = "License"
	sectionHardware = "Hardware"
	sectionFeatures = "Features"

	keyContactFormat   = "Contact.Format"
	keyContactID       = "Contact.Id"
	keyContactCreation = "Contact.Creation"
	keyProductVersion  = "Product.Version"

	keyLicenseFormat   = "License.Format"
	keyLicenseID       = "License.Id"
	keyLicenseCreation = "License.Creation"
	keyMinimumVersion  = "Product.Version.Minimum"
	keyMaximumVersion  = "Product.Version.Maximum"
	keyValidFrom       = "Validity.From"
	keyValidTo         = "Validity.To"

	keyFullName     = "EndUser.FullName"
	keyOrganization = "EndUser.Organization"
	keyAddress      = "EndUser.Address"
	keyPhoneNumber  = "EndUser.PhoneNumber"
	keyEMailAddress = "EndUser.EMailAddress"
	keyNotes        = "EndUser.Notes"
)

// ContactCodec converts contacts to and from text.
type ContactCodec interface {
	EncodeContact(c *Contact) (string, error)
	DecodeContact(text string) (*Contact, error)
}

// LicenseCodec converts licenses to and from text.
type LicenseCodec interface {
	EncodeLicense(l *License) (string, error)
	DecodeLicense(text string) (*License, error)
}

// TextCodec is the INI-style text format. Encoding is deterministic:
// hardware and feature entries are written in sorted key order.
type TextCodec struct{}

var (
	_ ContactCodec = TextCodec{}
	_ LicenseCodec = TextCodec{}
)

// EncodeContact renders c as text.
func (TextCodec) EncodeContact(c *Contact) (string, error) {
	if c == nil {
		return "", fmt.Errorf("%w: contact", ErrNilArgument)
	}
	doc := newINIDocument()
	head := doc.addSection(sectionContact)
	w := sectionWriter{s: head}
	w.set(keyContactFormat, FormatVersion)
	w.set(keyContactID, c.ID())
	w.set(keyContactCreation, formatTimestamp(c.CreationTime()))
	w.set(keyProductVersion, formatVersion(c.SoftwareVersion()))
	if w.err != nil {
		return "", w.err
	}
	if err := writeHardware(doc, c.hardware); err != nil {
		return "", err
	}
	return doc.String(), nil
}

// DecodeContact parses text produced by EncodeContact.
func (TextCodec) DecodeContact(text string) (*Contact, error) {
	doc, err := parseINI(text)
	if err != nil {
		return nil, err
	}
	head, err := headSection(doc, sectionContact, keyContactFormat)
	if err != nil {
		return nil, err
	}
	r := sectionReader{s: head}
	id := r.id(keyContactID)
	created := r.timestamp(keyContactCreation)
	version := r.version(keyProductVersion)
	if r.err != nil {
		return nil, r.err
	}
	return RestoreContact(id, created, readHardware(doc), version), nil
}

// EncodeLicense renders l as text.
func (TextCodec) EncodeLicense(l *License) (string, error) {
	if l == nil {
		return "", fmt.Errorf("%w: license", ErrNilArgument)
	}
	doc := newINIDocument()
	head := doc.addSection(sectionLicense)
	w := sectionWriter{s: head}
	w.set(keyLicenseFormat, FormatVersion)
	w.set(keyLicenseID, l.ID())
	w.set(keyLicenseCreation, formatTimestamp(l.CreationTime()))
	w.set(keyMinimumVersion, formatVersion(l.minVersion))
	w.set(keyMaximumVersion, formatVersion(l.maxVersion))
	w.set(keyValidFrom, formatTimestamp(l.validity.From()))
	w.set(keyValidTo, formatTimestamp(l.validity.To()))
	if u, ok := l.EndUser(); ok {
		w.set(keyFullName, u.FullName)
		w.set(keyOrganization, u.Organization)
		w.set(keyAddress, u.Address)
		w.set(keyPhoneNumber, u.PhoneNumber)
		w.set(keyEMailAddress, u.EMailAddress)
		w.set(keyNotes, u.Notes)
	}
	if w.err != nil {
		return "", w.err
	}
	if err := writeHardware(doc, l.hardware); err != nil {
		return "", err
	}
	features := doc.addSection(sectionFeatures)
	ids := make([]int, 0, len(l.features))
	for id := range l.features {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		features.put(strconv.Itoa(id), strconv.Itoa(l.features[id]))
	}
	return doc.String(), nil
}

// DecodeLicense parses text produced by EncodeLicense. The result is not
// frozen and has no environment bound.
func (TextCodec) DecodeLicense(text string) (*License, error) {
	doc, err := parseINI(text)
	if err != nil {
		return nil, err
	}
	head, err := headSection(doc, sectionLicense, keyLicenseFormat)
	if err != nil {
		return nil, err
	}
	r := sectionReader{s: head}
	id := r.id(keyLicenseID)
	created := r.timestamp(keyLicenseCreation)
	minVersion := r.version(keyMinimumVersion)
	maxVersion := r.version(keyMaximumVersion)
	from := r.timestamp(keyValidFrom)
	to := r.timestamp(keyValidTo)
	if r.err != nil {
		return nil, r.err
	}

	l := NewLicense(id, created)
	l.hardware = readHardware(doc)
	if minVersion != nil {
		l.minVersion = minVersion
	}
	if maxVersion != nil {
		l.maxVersion = maxVersion
	}
	if !from.IsZero() || !to.IsZero() {
		iv, err := NewInterval(from, to)
		if err != nil {
			return nil, fmt.Errorf("%w: validity window ends before it begins", ErrMalformedContent)
		}
		l.validity = iv
		l.validitySet = true
	}
	if u, ok := readEndUser(head); ok {
		l.endUser = &u
	}

	err = doc.section(sectionFeatures).each(func(key, value string) error {
		fid, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return fmt.Errorf("%w: feature id %q", ErrMalformedContent, key)
		}
		fval, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%w: feature %d value %q", ErrMalformedContent, fid, value)
		}
		l.features[fid] = fval
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func headSection(doc *iniDocument, name, formatKey string) (*iniSection, error) {
	head := doc.section(name)
	if head == nil {
		return nil, fmt.Errorf("%w: missing [%s] section", ErrUnknownFormat, name)
	}
	format, _ := head.get(formatKey)
	if strings.TrimSpace(format) != FormatVersion {
		return nil, fmt.Errorf("%w: %s=%q", ErrUnknownFormat, formatKey, format)
	}
	return head, nil
}

func writeHardware(doc *iniDocument, hardware map[string]string) error {
	s := doc.addSection(sectionHardware)
	keys := make([]string, 0, len(hardware))
	for k := range hardware {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := s.set(k, hardware[k]); err != nil {
			return err
		}
	}
	return nil
}

func readHardware(doc *iniDocument) map[string]string {
	hardware := make(map[string]string)
	_ = doc.section(sectionHardware).each(func(key, value string) error {
		hardware[key] = value
		return nil
	})
	return hardware
}

func readEndUser(s *iniSection) (EndUser, bool) {
	var (
		u     EndUser
		found bool
	)
	for key, field := range map[string]*string{
		keyFullName:     &u.FullName,
		keyOrganization: &u.Organization,
		keyAddress:      &u.Address,
		keyPhoneNumber:  &u.PhoneNumber,
		keyEMailAddress: &u.EMailAddress,
		keyNotes:        &u.Notes,
	} {
		if v, ok := s.get(key); ok {
			*field = v
			found = true
		}
	}
	return u, found
}

// sectionWriter keeps the first error of a run of set calls.
type sectionWriter struct {
	s   *iniSection
	err error
}

func (w *sectionWriter) set(key, value string) {
	if w.err == nil {
		w.err = w.s.set(key, value)
	}
}

// sectionReader keeps the first error of a run of typed reads.
type sectionReader struct {
	s   *iniSection
	err error
}

func (r *sectionReader) id(key string) string {
	v, _ := r.s.get(key)
	v = strings.TrimSpace(v)
	if v == "" && r.err == nil {
		r.err = fmt.Errorf("%w: %s is empty", ErrMalformedContent, key)
	}
	return v
}

func (r *sectionReader) timestamp(key string) time.Time {
	v, _ := r.s.get(key)
	t, err := parseTimestamp(v)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("%w: %s=%q", ErrMalformedContent, key, v)
	}
	return t
}

func (r *sectionReader) version(key string) *Version {
	v, _ := r.s.get(key)
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parsed, err := ParseVersion(v)
	if err != nil {
		if r.err == nil {
			r.err = fmt.Errorf("%w: %s=%q", ErrMalformedContent, key, v)
		}
		return nil
	}
	return &parsed
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func formatVersion(v *Version) string {
	if v == nil {
		return ""
	}
	return v.String()
}
