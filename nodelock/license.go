package nodelock

import (
	"fmt"
	"maps"
	"time"
)

// MaxHardwareChanges is how many required fingerprint entries may be missing
// or different before a license stops matching the machine. Minor component
// changes therefore do not require a new license.
const MaxHardwareChanges = 2

// License is a grant issued for one fingerprinted machine. Scalar fields can
// be assigned at most once. After Freeze no field can change; a License
// returned by LicenseReader is always frozen and safe for concurrent reads.
type License struct {
	Token

	validity    Interval
	validitySet bool
	endUser     *EndUser
	minVersion  *Version
	maxVersion  *Version
	features    map[int]int
	frozen      bool

	// contact the license was prepared from, set by Issuer.NewLicense
	origin string

	env Environment
}

// LicenseOption configures a License.
type LicenseOption func(*License)

// WithEnvironment sets the environment the license is evaluated against.
// Without it DefaultEnvironment is used.
func WithEnvironment(env Environment) LicenseOption {
	return func(l *License) {
		l.env = env
	}
}

// NewLicense creates an empty, unfrozen license.
func NewLicense(id string, created time.Time, opts ...LicenseOption) *License {
	l := &License{
		Token:    newToken(id, created, nil),
		features: make(map[int]int),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Kind returns KindLicense.
func (l *License) Kind() Kind { return KindLicense }

// Validity returns the validity window. An unset window is unbounded.
func (l *License) Validity() Interval { return l.validity }

// SetValidity assigns the validity window once.
func (l *License) SetValidity(iv Interval) error {
	if err := l.assignable("validity", l.validitySet); err != nil {
		return err
	}
	l.validity = iv
	l.validitySet = true
	return nil
}

// EndUser returns the license holder, if one was set.
func (l *License) EndUser() (EndUser, bool) {
	if l.endUser == nil {
		return EndUser{}, false
	}
	return *l.endUser, true
}

// SetEndUser assigns the license holder once.
func (l *License) SetEndUser(u EndUser) error {
	if err := l.assignable("end user", l.endUser != nil); err != nil {
		return err
	}
	l.endUser = &u
	return nil
}

// MinimumVersion returns the lowest covered software version, or nil.
func (l *License) MinimumVersion() *Version { return cloneVersion(l.minVersion) }

// SetMinimumVersion assigns the lowest covered software version once.
func (l *License) SetMinimumVersion(v Version) error {
	if err := l.assignable("minimum version", l.minVersion != nil); err != nil {
		return err
	}
	l.minVersion = &v
	return nil
}

// MaximumVersion returns the highest covered software version, or nil.
func (l *License) MaximumVersion() *Version { return cloneVersion(l.maxVersion) }

// SetMaximumVersion assigns the highest covered software version once.
func (l *License) SetMaximumVersion(v Version) error {
	if err := l.assignable("maximum version", l.maxVersion != nil); err != nil {
		return err
	}
	l.maxVersion = &v
	return nil
}

// SetRequiredHardware adds or replaces one required fingerprint entry.
func (l *License) SetRequiredHardware(probe, value string) error {
	if l.frozen {
		return fmt.Errorf("%w: can not change required hardware", ErrFrozen)
	}
	l.hardware[probe] = value
	return nil
}

// SetFeature adds or replaces one feature value.
func (l *License) SetFeature(id, value int) error {
	if l.frozen {
		return fmt.Errorf("%w: can not change features", ErrFrozen)
	}
	l.features[id] = value
	return nil
}

// Feature returns the value of a feature and whether it is present.
func (l *License) Feature(id int) (int, bool) {
	v, ok := l.features[id]
	return v, ok
}

// Features returns a copy of all features.
func (l *License) Features() map[int]int {
	return maps.Clone(l.features)
}

// Freeze makes the license permanently immutable.
func (l *License) Freeze() {
	l.frozen = true
}

// Frozen reports whether Freeze was called.
func (l *License) Frozen() bool { return l.frozen }

// IsExpired reports whether the current instant lies outside the validity
// window under both the UTC and the local wall-clock reading.
func (l *License) IsExpired() bool {
	return l.expiredAt(l.environment().Now())
}

// IsValid reports whether the license is in its validity window, covers the
// running software version and matches this machine.
func (l *License) IsValid() bool {
	return l.Check() == nil
}

// Check evaluates the license against its environment and returns the
// reason it is not valid, or nil.
func (l *License) Check() error {
	env := l.environment()
	if l.expiredAt(env.Now()) {
		return ErrLicenseExpired
	}
	current := env.SoftwareVersion()
	if !l.coversVersion(current) {
		if current == nil {
			return fmt.Errorf("%w: running version is unknown", ErrVersionNotCovered)
		}
		return fmt.Errorf("%w: %s", ErrVersionNotCovered, current)
	}
	if diff := CountHardwareDifferences(l.hardware, env.Fingerprint()); diff > MaxHardwareChanges {
		return fmt.Errorf("%w: %d of %d entries differ", ErrHardwareMismatch, diff, len(l.hardware))
	}
	return nil
}

// expiredAt checks both readings of the clock: the instant itself and the
// local wall-clock time read as if it were UTC. A license is expired only if
// neither reading falls inside the window.
func (l *License) expiredAt(now time.Time) bool {
	return !l.validity.Contains(now.UTC()) && !l.validity.Contains(wallClockAsUTC(now, time.Local))
}

func (l *License) coversVersion(current *Version) bool {
	if current == nil {
		return l.minVersion == nil && l.maxVersion == nil
	}
	if l.minVersion != nil && current.Compare(*l.minVersion) < 0 {
		return false
	}
	if l.maxVersion != nil && current.Compare(*l.maxVersion) > 0 {
		return false
	}
	return true
}

func (l *License) assignable(field string, alreadySet bool) error {
	if l.frozen {
		return fmt.Errorf("%w: can not change %s", ErrFrozen, field)
	}
	if alreadySet {
		return fmt.Errorf("%w: %s", ErrAlreadySet, field)
	}
	return nil
}

func (l *License) environment() Environment {
	if l.env != nil {
		return l.env
	}
	return DefaultEnvironment()
}

func (l *License) bindEnvironment(env Environment) {
	if env != nil {
		l.env = env
	}
}

// wallClockAsUTC returns the wall-clock reading of t in loc, labelled UTC.
func wallClockAsUTC(t time.Time, loc *time.Location) time.Time {
	w := t.In(loc)
	return time.Date(w.Year(), w.Month(), w.Day(), w.Hour(), w.Minute(), w.Second(), w.Nanosecond(), time.UTC)
}
