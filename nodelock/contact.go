package nodelock

import (
	"fmt"
	"maps"
	"time"
)

// Contact is the request a client machine submits to obtain a license. It
// carries the machine fingerprint and the requesting software version and
// is not modified after creation.
type Contact struct {
	Token
	version *Version
}

// NewContact creates a contact for the machine described by env. The
// fingerprint and the software version are captured immediately.
func NewContact(env Environment) (*Contact, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: environment", ErrNilArgument)
	}
	c := &Contact{
		Token:   newToken(newTokenID(), env.Now().UTC(), env.Fingerprint()),
		version: cloneVersion(env.SoftwareVersion()),
	}
	return c, nil
}

// RestoreContact rebuilds a contact from decoded fields. Codecs use it.
func RestoreContact(id string, created time.Time, hardware map[string]string, version *Version) *Contact {
	return &Contact{
		Token:   newToken(id, created, maps.Clone(hardware)),
		version: cloneVersion(version),
	}
}

// Kind returns KindContact.
func (c *Contact) Kind() Kind { return KindContact }

// SoftwareVersion returns the version of the requesting software, or nil.
func (c *Contact) SoftwareVersion() *Version { return cloneVersion(c.version) }

func cloneVersion(v *Version) *Version {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
