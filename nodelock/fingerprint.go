package nodelock

import (
	"crypto/sha256"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Backend executes a single fingerprint probe. The probe syntax is
// backend-specific. A backend may return a partial value together with an
// error; the analyzer keeps a non-empty partial value as a degraded entry.
type Backend interface {
	Probe(probe string) (string, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(probe string) (string, error)

// Probe calls f(probe).
func (f BackendFunc) Probe(probe string) (string, error) { return f(probe) }

// ProbeError describes a failed probe.
type ProbeError struct {
	Probe   string
	Partial string
	Err     error
}

func (e ProbeError) Error() string {
	return fmt.Sprintf("probe %q: %v", e.Probe, e.Err)
}

func (e ProbeError) Unwrap() error { return e.Err }

// QueryResult is the outcome of Analyzer.Query: the collected fingerprint
// and the failures that occurred while collecting it.
type QueryResult struct {
	Values map[string]string
	Errors []ProbeError
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithConcurrency bounds how many probes run at the same time. Zero or
// negative means unbounded.
func WithConcurrency(n int) AnalyzerOption {
	return func(a *Analyzer) {
		a.concurrency = n
	}
}

// WithErrorSink forwards each probe failure as soon as it happens. The sink
// may be called from several goroutines at once.
func WithErrorSink(sink func(ProbeError)) AnalyzerOption {
	return func(a *Analyzer) {
		a.sink = sink
	}
}

// Analyzer runs a fixed set of probes against a Backend.
type Analyzer struct {
	backend     Backend
	concurrency int
	sink        func(ProbeError)

	mu     sync.RWMutex
	probes []string
}

// NewAnalyzer creates an analyzer over backend. The probe set must be
// assigned with SetProbes before the first Query.
func NewAnalyzer(backend Backend, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{backend: backend}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetProbes assigns the probe set. It must be non-empty, without duplicates,
// and can be assigned only once.
func (a *Analyzer) SetProbes(probes ...string) error {
	if len(probes) == 0 {
		return fmt.Errorf("%w: probe set can not be empty", ErrInvalidProbes)
	}
	seen := make(map[string]struct{}, len(probes))
	for _, p := range probes {
		if _, dup := seen[p]; dup {
			return fmt.Errorf("%w: duplicate probe %q", ErrInvalidProbes, p)
		}
		seen[p] = struct{}{}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.probes != nil {
		return fmt.Errorf("%w: probe set", ErrAlreadySet)
	}
	a.probes = slices.Clone(probes)
	return nil
}

// Probes returns a copy of the assigned probe set.
func (a *Analyzer) Probes() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.probes)
}

// Query executes every probe concurrently and returns the collected values.
// Probe failures never abort the batch; they are reported in the result.
// The only error is calling Query before a probe set was assigned.
func (a *Analyzer) Query() (QueryResult, error) {
	if a.backend == nil {
		return QueryResult{}, fmt.Errorf("%w: analyzer backend", ErrNilArgument)
	}
	probes := a.Probes()
	if len(probes) == 0 {
		return QueryResult{}, fmt.Errorf("%w: no probes assigned", ErrInvalidProbes)
	}

	type slot struct {
		value string
		err   error
	}
	slots := make([]slot, len(probes))

	var g errgroup.Group
	if a.concurrency > 0 {
		g.SetLimit(a.concurrency)
	}
	for i, probe := range probes {
		g.Go(func() error {
			value, err := a.run(probe)
			slots[i] = slot{value: value, err: err}
			if err != nil && a.sink != nil {
				a.sink(ProbeError{Probe: probe, Partial: value, Err: err})
			}
			return nil
		})
	}
	_ = g.Wait()

	result := QueryResult{Values: make(map[string]string, len(probes))}
	for i, probe := range probes {
		s := slots[i]
		if s.err != nil {
			result.Errors = append(result.Errors, ProbeError{Probe: probe, Partial: s.value, Err: s.err})
			if s.value == "" {
				continue
			}
		}
		result.Values[probe] = s.value
	}
	return result, nil
}

// run calls the backend, reporting a panic as a probe error.
func (a *Analyzer) run(probe string) (value string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return a.backend.Probe(probe)
}

// FingerprintDigest returns a deterministic SHA-256 hex digest of a
// fingerprint mapping. Keys are sorted; equal mappings give equal digests.
func FingerprintDigest(fingerprint map[string]string) string {
	keys := slices.Sorted(maps.Keys(fingerprint))
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fingerprint[k])
	}
	h := sha256.New()
	h.Write([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// CountHardwareDifferences compares a required fingerprint with the current
// one. Each required key that is missing, or whose value differs ignoring
// case, counts as one difference.
func CountHardwareDifferences(required, current map[string]string) int {
	differences := 0
	for key, want := range required {
		got, ok := current[key]
		if ok && strings.EqualFold(want, got) {
			continue
		}
		differences++
	}
	return differences
}
