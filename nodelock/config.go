package nodelock

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/CloudNativeWorks/cnw-nodelock-sdk/nodelock/hwprobe"
)

// EnvPrefix prefixes every configuration environment variable.
const EnvPrefix = "CNW_NODELOCK"

// DefaultFileName is the license file looked up by the default manager.
const DefaultFileName = "product.lic"

// Config holds the settings of the process-wide manager and the CLI.
type Config struct {
	ConfigFile       string   `yaml:"-" envconfig:"CONFIG_FILE"`
	FileName         string   `yaml:"file_name" envconfig:"FILE_NAME" default:"product.lic"`
	SharedDir        string   `yaml:"shared_dir" envconfig:"SHARED_DIR"`
	PublicKeyFile    string   `yaml:"public_key_file" envconfig:"PUBLIC_KEY_FILE"`
	PublicKeyPEM     string   `yaml:"public_key_pem" envconfig:"PUBLIC_KEY_PEM"`
	PrivateKeyFile   string   `yaml:"private_key_file" envconfig:"PRIVATE_KEY_FILE"`
	Probes           []string `yaml:"probes" envconfig:"PROBES"`
	ProbeConcurrency int      `yaml:"probe_concurrency" envconfig:"PROBE_CONCURRENCY"`
	LogLevel         string   `yaml:"log_level" envconfig:"LOG_LEVEL" default:"info"`
	RegistryURL      string   `yaml:"registry_url" envconfig:"REGISTRY_URL"`
}

// LoadConfig reads the configuration from CNW_NODELOCK_* environment
// variables. When CNW_NODELOCK_CONFIG_FILE names a YAML file its values are
// used for every variable that is not set.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}
	if cfg.ConfigFile != "" {
		fileCfg, err := readConfigFile(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = mergeConfig(*fileCfg, cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfigFile reads a YAML configuration file. Environment variables
// that are set take precedence over the file.
func LoadConfigFile(path string) (*Config, error) {
	var env Config
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}
	fileCfg, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	cfg := mergeConfig(*fileCfg, env)
	cfg.ConfigFile = path
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &cfg, nil
}

// mergeConfig fills every field whose variable is unset from the file.
func mergeConfig(file, env Config) Config {
	pickString := func(name string, envValue, fileValue string) string {
		if envSet(name) || fileValue == "" {
			return envValue
		}
		return fileValue
	}
	env.FileName = pickString("FILE_NAME", env.FileName, file.FileName)
	env.SharedDir = pickString("SHARED_DIR", env.SharedDir, file.SharedDir)
	env.PublicKeyFile = pickString("PUBLIC_KEY_FILE", env.PublicKeyFile, file.PublicKeyFile)
	env.PublicKeyPEM = pickString("PUBLIC_KEY_PEM", env.PublicKeyPEM, file.PublicKeyPEM)
	env.PrivateKeyFile = pickString("PRIVATE_KEY_FILE", env.PrivateKeyFile, file.PrivateKeyFile)
	env.LogLevel = pickString("LOG_LEVEL", env.LogLevel, file.LogLevel)
	env.RegistryURL = pickString("REGISTRY_URL", env.RegistryURL, file.RegistryURL)
	if !envSet("PROBES") && len(file.Probes) > 0 {
		env.Probes = file.Probes
	}
	if !envSet("PROBE_CONCURRENCY") && file.ProbeConcurrency != 0 {
		env.ProbeConcurrency = file.ProbeConcurrency
	}
	return env
}

func envSet(name string) bool {
	_, ok := os.LookupEnv(EnvPrefix + "_" + name)
	return ok
}

func (c *Config) validate() error {
	if c.FileName == "" {
		return fmt.Errorf("config: file name must not be empty")
	}
	if c.ProbeConcurrency < 0 {
		return fmt.Errorf("config: probe concurrency must not be negative")
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Logger returns a text logger on stderr at the configured level.
func (c *Config) Logger() *slog.Logger {
	level, _ := parseLogLevel(c.LogLevel)
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// Channel builds the secure channel from the configured keys. The private
// key is optional.
func (c *Config) Channel() (*Channel, error) {
	var opts []ChannelOption
	if c.PrivateKeyFile != "" {
		priv, err := LoadPrivateKeyFile(c.PrivateKeyFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithPrivateKey(priv))
	}
	switch {
	case c.PublicKeyPEM != "":
		pub, err := ParsePublicKeyPEM([]byte(c.PublicKeyPEM))
		if err != nil {
			return nil, err
		}
		return NewChannel(pub, opts...)
	case c.PublicKeyFile != "":
		pub, err := LoadPublicKeyFile(c.PublicKeyFile)
		if err != nil {
			return nil, err
		}
		return NewChannel(pub, opts...)
	default:
		return NewChannel(nil, opts...)
	}
}

// Environment builds a host environment that queries the configured probes.
func (c *Config) Environment(logger *slog.Logger) (*HostEnvironment, error) {
	probes := c.Probes
	if len(probes) == 0 {
		probes = hwprobe.DefaultProbes
	}
	var opts []AnalyzerOption
	if c.ProbeConcurrency > 0 {
		opts = append(opts, WithConcurrency(c.ProbeConcurrency))
	}
	analyzer := NewAnalyzer(hwprobe.New(), opts...)
	if err := analyzer.SetProbes(probes...); err != nil {
		return nil, err
	}
	return NewHostEnvironment(WithAnalyzer(analyzer), WithEnvironmentLogger(logger)), nil
}

// SearchPath returns the license search path for this configuration.
func (c *Config) SearchPath() SearchPath {
	return SearchPath{FileName: c.FileName, SharedDir: c.SharedDir}
}

// NewManager builds a manager that loads the configured license file.
func (c *Config) NewManager(opts ...ManagerOption) (*Manager, error) {
	logger := c.Logger().With("component", "nodelock")
	ch, err := c.Channel()
	if err != nil {
		return nil, err
	}
	env, err := c.Environment(logger)
	if err != nil {
		return nil, err
	}
	reader, err := NewLicenseReader(ch, WithReaderEnvironment(env))
	if err != nil {
		return nil, err
	}
	return NewManager(FileLoader(reader, c.SearchPath()), append([]ManagerOption{WithLogger(logger)}, opts...)...)
}
