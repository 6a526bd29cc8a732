package nodelock

import (
	"fmt"
	"os"
	"strings"
)

// FileMode is the permission used for written contact and license files.
const FileMode os.FileMode = 0o644

// IOOption configures the contact and license readers and writers.
type IOOption func(*ioConfig)

type ioConfig struct {
	contacts ContactCodec
	licenses LicenseCodec
	env      Environment
}

// WithContactCodec replaces the TextCodec for contacts.
func WithContactCodec(c ContactCodec) IOOption {
	return func(cfg *ioConfig) {
		cfg.contacts = c
	}
}

// WithLicenseCodec replaces the TextCodec for licenses.
func WithLicenseCodec(c LicenseCodec) IOOption {
	return func(cfg *ioConfig) {
		cfg.licenses = c
	}
}

// WithReaderEnvironment binds licenses read by a LicenseReader to env
// instead of DefaultEnvironment.
func WithReaderEnvironment(env Environment) IOOption {
	return func(cfg *ioConfig) {
		cfg.env = env
	}
}

func newIOConfig(ch *Channel, opts []IOOption) (ioConfig, error) {
	cfg := ioConfig{contacts: TextCodec{}, licenses: TextCodec{}}
	if ch == nil {
		return cfg, fmt.Errorf("%w: channel", ErrNilArgument)
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.contacts == nil || cfg.licenses == nil {
		return cfg, fmt.Errorf("%w: codec", ErrNilArgument)
	}
	return cfg, nil
}

// ContactWriter encrypts contacts for the license server. It runs on the
// client.
type ContactWriter struct {
	ch  *Channel
	cfg ioConfig
}

// NewContactWriter creates a ContactWriter.
func NewContactWriter(ch *Channel, opts ...IOOption) (*ContactWriter, error) {
	cfg, err := newIOConfig(ch, opts)
	if err != nil {
		return nil, err
	}
	return &ContactWriter{ch: ch, cfg: cfg}, nil
}

// ToString encodes and encrypts c.
func (w *ContactWriter) ToString(c *Contact) (string, error) {
	if c == nil {
		return "", fmt.Errorf("%w: contact", ErrNilArgument)
	}
	text, err := w.cfg.contacts.EncodeContact(c)
	if err != nil {
		return "", err
	}
	return w.ch.EncodeClientMessage(text)
}

// ToFile writes the encrypted contact to path.
func (w *ContactWriter) ToFile(path string, c *Contact) error {
	blob, err := w.ToString(c)
	if err != nil {
		return err
	}
	return writeFile(path, blob)
}

// ContactReader decrypts contacts on the license server.
type ContactReader struct {
	ch  *Channel
	cfg ioConfig
}

// NewContactReader creates a ContactReader. The channel needs the private key.
func NewContactReader(ch *Channel, opts ...IOOption) (*ContactReader, error) {
	cfg, err := newIOConfig(ch, opts)
	if err != nil {
		return nil, err
	}
	return &ContactReader{ch: ch, cfg: cfg}, nil
}

// FromString decrypts and decodes a contact.
func (r *ContactReader) FromString(blob string) (*Contact, error) {
	text, err := r.ch.DecodeClientMessage(blob)
	if err != nil {
		return nil, err
	}
	return r.cfg.contacts.DecodeContact(text)
}

// FromFile reads a contact from path.
func (r *ContactReader) FromFile(path string) (*Contact, error) {
	blob, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return r.FromString(blob)
}

// LicenseWriter signs licenses on the license server.
type LicenseWriter struct {
	ch  *Channel
	cfg ioConfig
}

// NewLicenseWriter creates a LicenseWriter. The channel needs a signer.
func NewLicenseWriter(ch *Channel, opts ...IOOption) (*LicenseWriter, error) {
	cfg, err := newIOConfig(ch, opts)
	if err != nil {
		return nil, err
	}
	return &LicenseWriter{ch: ch, cfg: cfg}, nil
}

// ToString encodes and signs l.
func (w *LicenseWriter) ToString(l *License) (string, error) {
	if l == nil {
		return "", fmt.Errorf("%w: license", ErrNilArgument)
	}
	text, err := w.cfg.licenses.EncodeLicense(l)
	if err != nil {
		return "", err
	}
	return w.ch.EncodeServerMessage(text)
}

// ToFile writes the signed license to path.
func (w *LicenseWriter) ToFile(path string, l *License) error {
	blob, err := w.ToString(l)
	if err != nil {
		return err
	}
	return writeFile(path, blob)
}

// LicenseReader verifies licenses on the client. Every license it returns
// is frozen and bound to the reader's environment.
type LicenseReader struct {
	ch  *Channel
	cfg ioConfig
}

// NewLicenseReader creates a LicenseReader.
func NewLicenseReader(ch *Channel, opts ...IOOption) (*LicenseReader, error) {
	cfg, err := newIOConfig(ch, opts)
	if err != nil {
		return nil, err
	}
	return &LicenseReader{ch: ch, cfg: cfg}, nil
}

// FromString verifies and decodes a license.
func (r *LicenseReader) FromString(blob string) (*License, error) {
	text, err := r.ch.DecodeServerMessage(blob)
	if err != nil {
		return nil, err
	}
	l, err := r.cfg.licenses.DecodeLicense(text)
	if err != nil {
		return nil, err
	}
	l.bindEnvironment(r.cfg.env)
	l.Freeze()
	return l, nil
}

// FromFile reads a license from path. A missing file yields an error
// matching fs.ErrNotExist.
func (r *LicenseReader) FromFile(path string) (*License, error) {
	blob, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return r.FromString(blob)
}

func writeFile(path, blob string) error {
	if err := os.WriteFile(path, []byte(blob), FileMode); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimPrefix(string(data), "\ufeff"), nil
}
