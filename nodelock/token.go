package nodelock

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the closed set of token variants.
type Kind int

const (
	KindContact Kind = iota + 1
	KindLicense
)

func (k Kind) String() string {
	switch k {
	case KindContact:
		return "contact"
	case KindLicense:
		return "license"
	default:
		return "unknown"
	}
}

// Token is the data shared by Contact and License: an identifier, a
// creation time and the machine fingerprint the token is bound to.
type Token struct {
	id       string
	created  time.Time
	hardware map[string]string
}

func newToken(id string, created time.Time, hardware map[string]string) Token {
	if hardware == nil {
		hardware = make(map[string]string)
	}
	return Token{id: id, created: created, hardware: hardware}
}

// newTokenID returns a fresh random token identifier.
func newTokenID() string {
	return uuid.NewString()
}

// ID returns the token identifier. An empty ID marks an invalid token.
func (t *Token) ID() string { return t.id }

// CreationTime returns when the token was created, or the zero time if unknown.
func (t *Token) CreationTime() time.Time { return t.created }

// RequiredHardware returns a copy of the required fingerprint.
func (t *Token) RequiredHardware() map[string]string {
	return maps.Clone(t.hardware)
}

// HardwareValue returns the required value for one probe.
func (t *Token) HardwareValue(probe string) (string, bool) {
	v, ok := t.hardware[probe]
	return v, ok
}

// HardwareLen returns the number of required fingerprint entries.
func (t *Token) HardwareLen() int { return len(t.hardware) }
