package nodelock

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// Loader produces the license of the running installation. It returns
// (nil, nil) when no license exists.
type Loader func() (*License, error)

// SearchPath locates the license file. With no explicit Dirs the file is
// looked up next to the executable, then in the shared directory
// (SharedDocumentsDir when SharedDir is empty), then in the working
// directory.
type SearchPath struct {
	FileName  string
	SharedDir string
	Dirs      []string
}

// Candidates returns the full file paths in lookup order.
func (sp SearchPath) Candidates() []string {
	name := sp.FileName
	if name == "" {
		name = DefaultFileName
	}
	dirs := sp.Dirs
	if dirs == nil {
		dirs = sp.defaultDirs()
	}
	paths := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		if dir != "" {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	return paths
}

func (sp SearchPath) defaultDirs() []string {
	var dirs []string
	if exe, err := ExecutablePath(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	shared := sp.SharedDir
	if shared == "" {
		shared = SharedDocumentsDir()
	}
	dirs = append(dirs, shared)
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	return dirs
}

// FileLoader returns a Loader that reads the first license file found on
// sp. A missing file moves on to the next location; any other failure,
// including a file that does not verify, stops the search.
func FileLoader(reader *LicenseReader, sp SearchPath) Loader {
	return func() (*License, error) {
		for _, path := range sp.Candidates() {
			l, err := reader.FromFile(path)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("load license %s: %w", path, err)
			}
			return l, nil
		}
		return nil, nil
	}
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithMetrics records session loads and feature checks on metrics.
func WithMetrics(metrics *Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// Manager hands out license sessions. Each execution context (a request,
// a worker, a tenant) keeps its own Session, so the license it sees does not
// change under it while the manager is renewed.
type Manager struct {
	gen     atomic.Pointer[generation]
	load    Loader
	logger  *slog.Logger
	metrics *Metrics
}

// generation is the set of keyed sessions created since the last Renew.
type generation struct {
	sessions sync.Map
}

// NewManager creates a manager that obtains licenses from loader.
func NewManager(loader Loader, opts ...ManagerOption) (*Manager, error) {
	if loader == nil {
		return nil, fmt.Errorf("%w: loader", ErrNilArgument)
	}
	m := &Manager{
		load:   loader,
		logger: slog.Default().With("component", "nodelock"),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.gen.Store(&generation{})
	return m, nil
}

// Session returns the session registered for key, creating it on first use.
func (m *Manager) Session(key string) *Session {
	gen := m.gen.Load()
	if s, ok := gen.sessions.Load(key); ok {
		return s.(*Session)
	}
	s, _ := gen.sessions.LoadOrStore(key, m.NewSession())
	return s.(*Session)
}

// NewSession returns a session that is not registered under any key. The
// caller owns it.
func (m *Manager) NewSession() *Session {
	return &Session{mgr: m}
}

// Renew starts a new generation. Sessions obtained afterwards load the
// license again; sessions obtained before keep what they loaded.
func (m *Manager) Renew() {
	m.gen.Store(&generation{})
	m.logger.Info("License manager renewed")
}

// Forget drops the session registered for key.
func (m *Manager) Forget(key string) {
	m.gen.Load().sessions.Delete(key)
}

// Session caches the license seen by one execution context. The first
// access loads and checks the license; an invalid license is treated as
// absent. Load failures are not cached, the next access tries again.
// A Session is safe for concurrent use.
type Session struct {
	mgr *Manager

	mu      sync.Mutex
	loaded  bool
	license *License
}

// License returns the valid license of this session, or nil when there is
// none.
func (s *Session) License() (*License, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.license, nil
	}

	l, err := s.mgr.load()
	if err != nil {
		s.mgr.metrics.sessionLoaded(LoadError)
		return nil, err
	}
	switch {
	case l == nil:
		s.mgr.metrics.sessionLoaded(LoadAbsent)
	default:
		if reason := l.Check(); reason != nil {
			s.mgr.logger.Info("License is not valid, continuing without license",
				slog.String("license_id", l.ID()),
				slog.String("reason", reason.Error()),
			)
			s.mgr.metrics.sessionLoaded(LoadInvalid)
			l = nil
		} else {
			s.mgr.metrics.sessionLoaded(LoadValid)
		}
	}
	s.license = l
	s.loaded = true
	return l, nil
}

// IsValid reports whether the session holds a valid license. Load failures
// are logged and reported as false.
func (s *Session) IsValid() bool {
	l, err := s.License()
	if err != nil {
		s.mgr.logger.Error("License load failed", slog.String("error", err.Error()))
		return false
	}
	return l != nil
}

// Feature returns the value of a feature of the session's license.
func (s *Session) Feature(id int) (int, bool) {
	if !s.IsValid() {
		return 0, false
	}
	l, _ := s.License()
	return l.Feature(id)
}

// IsFeatureAvailable reports whether the session's license grants feature
// id with a non-zero value.
func (s *Session) IsFeatureAvailable(id int) bool {
	v, ok := s.Feature(id)
	available := ok && v != 0
	s.mgr.metrics.featureChecked(id, available)
	return available
}

var (
	defaultManagerOnce sync.Once
	defaultManager     *Manager
	defaultManagerErr  error
)

// Default returns the process-wide manager configured by LoadConfig. It is
// built on first use.
func Default() (*Manager, error) {
	defaultManagerOnce.Do(func() {
		cfg, err := LoadConfig()
		if err != nil {
			defaultManagerErr = err
			return
		}
		defaultManager, defaultManagerErr = cfg.NewManager()
	})
	return defaultManager, defaultManagerErr
}
