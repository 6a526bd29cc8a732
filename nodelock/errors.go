package nodelock

import (
	"errors"
	"fmt"
)

// Error kinds. Every licensing sentinel wraps ErrLicensing and every
// programmer-contract sentinel wraps ErrUsage, so callers can test the
// kind with errors.Is without knowing the specific failure.
var (
	ErrLicensing = errors.New("licensing error")
	ErrUsage     = errors.New("invalid operation")
)

// Sentinel errors for encoded tokens and the secure channel.
var (
	ErrInvalidData           = fmt.Errorf("%w: data is not valid", ErrLicensing)
	ErrUnknownFormat         = fmt.Errorf("%w: unknown format", ErrLicensing)
	ErrMalformedContent      = fmt.Errorf("%w: malformed content", ErrLicensing)
	ErrSignatureInvalid      = fmt.Errorf("%w: signature verification failed", ErrLicensing)
	ErrSigningUnavailable    = fmt.Errorf("%w: signing capability unavailable", ErrLicensing)
	ErrPrivateKeyUnavailable = fmt.Errorf("%w: private key unavailable", ErrLicensing)
	ErrPublicKeyInvalid      = fmt.Errorf("%w: invalid public key", ErrLicensing)
)

// Sentinel errors for contract violations by the caller.
var (
	ErrNilArgument     = fmt.Errorf("%w: required argument is nil", ErrUsage)
	ErrAlreadySet      = fmt.Errorf("%w: value has already been set", ErrUsage)
	ErrFrozen          = fmt.Errorf("%w: license is frozen", ErrUsage)
	ErrInvalidInterval = fmt.Errorf("%w: interval can not end before its beginning", ErrUsage)
	ErrInvalidProbes   = fmt.Errorf("%w: invalid probe set", ErrUsage)
	ErrUnrepresentable = fmt.Errorf("%w: value can not be represented in the text format", ErrUsage)
	ErrInvalidVersion  = fmt.Errorf("%w: invalid version", ErrUsage)
)

// Reasons reported by License.Check.
var (
	ErrLicenseExpired    = errors.New("license expired")
	ErrVersionNotCovered = errors.New("software version not covered by license")
	ErrHardwareMismatch  = errors.New("license is bound to a different machine")
)

// Sentinel errors for hardware limit enforcement.
var (
	ErrCPULimitExceeded  = errors.New("CPU limit exceeded")
	ErrNodeLimitExceeded = errors.New("node limit exceeded")
)

// IsLicensingError reports whether err is of the licensing kind.
func IsLicensingError(err error) bool {
	return errors.Is(err, ErrLicensing)
}

// IsUsageError reports whether err is a programmer-contract violation.
func IsUsageError(err error) bool {
	return errors.Is(err, ErrUsage)
}
