package nodelock

import (
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/CloudNativeWorks/cnw-nodelock-sdk/nodelock/hwprobe"
)

// Environment describes the machine a token is created on or a license is
// evaluated against.
type Environment interface {
	// Fingerprint returns the current probe -> value mapping.
	Fingerprint() map[string]string
	// SoftwareVersion returns the running software's version, nil if unknown.
	SoftwareVersion() *Version
	// Now returns the current instant.
	Now() time.Time
}

// StaticEnvironment is an Environment with fixed answers. A zero Clock
// means time.Now.
type StaticEnvironment struct {
	Hardware map[string]string
	Version  *Version
	Clock    func() time.Time
}

func (e StaticEnvironment) Fingerprint() map[string]string { return maps.Clone(e.Hardware) }

func (e StaticEnvironment) SoftwareVersion() *Version { return e.Version }

func (e StaticEnvironment) Now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

// EnvironmentOption configures a HostEnvironment.
type EnvironmentOption func(*HostEnvironment)

// WithAnalyzer sets the analyzer used to compute the fingerprint.
func WithAnalyzer(a *Analyzer) EnvironmentOption {
	return func(e *HostEnvironment) {
		e.analyzer = a
	}
}

// WithVersionResolver sets how the running software version is resolved.
func WithVersionResolver(r VersionResolver) EnvironmentOption {
	return func(e *HostEnvironment) {
		e.version = r
	}
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) EnvironmentOption {
	return func(e *HostEnvironment) {
		e.clock = clock
	}
}

// WithEnvironmentLogger sets the logger that receives probe failures. A nil
// logger keeps the default.
func WithEnvironmentLogger(l *slog.Logger) EnvironmentOption {
	return func(e *HostEnvironment) {
		if l != nil {
			e.logger = l
		}
	}
}

// HostEnvironment is the Environment of the running machine.
type HostEnvironment struct {
	analyzer *Analyzer
	version  VersionResolver
	clock    func() time.Time
	logger   *slog.Logger
}

// NewHostEnvironment creates an environment backed by the hwprobe backend
// with hwprobe.DefaultProbes unless options say otherwise.
func NewHostEnvironment(opts ...EnvironmentOption) *HostEnvironment {
	e := &HostEnvironment{
		version: BuildInfoVersion,
		clock:   time.Now,
		logger:  slog.Default().With("component", "nodelock"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.analyzer == nil {
		e.analyzer = NewAnalyzer(hwprobe.New())
		_ = e.analyzer.SetProbes(hwprobe.DefaultProbes...)
	}
	return e
}

// Fingerprint queries every probe. Failures are logged and the entries they
// affect are degraded or omitted.
func (e *HostEnvironment) Fingerprint() map[string]string {
	result, err := e.analyzer.Query()
	if err != nil {
		e.logger.Error("Fingerprint query failed", slog.String("error", err.Error()))
		return map[string]string{}
	}
	for _, pe := range result.Errors {
		e.logger.Warn("Fingerprint probe failed",
			slog.String("probe", pe.Probe),
			slog.String("partial", pe.Partial),
			slog.String("error", pe.Err.Error()),
		)
	}
	return result.Values
}

func (e *HostEnvironment) SoftwareVersion() *Version {
	if e.version == nil {
		return nil
	}
	return e.version()
}

func (e *HostEnvironment) Now() time.Time { return e.clock() }

var defaultEnvironment = sync.OnceValue(func() Environment {
	return NewHostEnvironment()
})

// DefaultEnvironment returns the process-wide host environment.
func DefaultEnvironment() Environment {
	return defaultEnvironment()
}
