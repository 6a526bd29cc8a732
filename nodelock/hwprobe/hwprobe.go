// Package hwprobe is the default fingerprint backend. It answers probes
// about the running machine: identifiers exposed by the operating system,
// network hardware addresses, CPU and board information.
//
// Probe names are dotted identifiers such as "machine.id" or "net.mac".
// Every probe can be overridden with an environment variable named
// CNW_FINGERPRINT_ followed by the upper-cased probe name with dots
// replaced by underscores (for example CNW_FINGERPRINT_MACHINE_ID).
package hwprobe

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

// Supported probes.
const (
	ProbeHostName    = "host.name"
	ProbeMachineID   = "machine.id"
	ProbeMAC         = "net.mac"
	ProbeCPUModel    = "cpu.model"
	ProbeCPUCount    = "cpu.count"
	ProbeOSPlatform  = "os.platform"
	ProbeProductUUID = "dmi.product_uuid"
	ProbeBoardSerial = "dmi.board_serial"
	ProbeBoardVendor = "dmi.board_vendor"
)

// DefaultProbes is the probe set used to fingerprint a machine. Host name
// and CPU count are left out because they change without a hardware change.
var DefaultProbes = []string{
	ProbeMachineID,
	ProbeMAC,
	ProbeCPUModel,
	ProbeOSPlatform,
	ProbeProductUUID,
	ProbeBoardSerial,
}

// EnvPrefix prefixes the per-probe override environment variables.
const EnvPrefix = "CNW_FINGERPRINT_"

var (
	ErrUnknownProbe = errors.New("unknown probe")
	ErrUnsupported  = errors.New("probe not supported on this platform")
	ErrNoValue      = errors.New("probe produced no value")
)

// Option configures a Backend.
type Option func(*Backend)

// WithRoot reads /etc, /proc and /sys below dir instead of the file system
// root.
func WithRoot(dir string) Option {
	return func(b *Backend) {
		b.root = dir
	}
}

// WithOverride pins the value reported for probe.
func WithOverride(probe, value string) Option {
	return func(b *Backend) {
		b.overrides[probe] = value
	}
}

// WithInterfaces replaces net.Interfaces for the net.mac probe.
func WithInterfaces(fn func() ([]net.Interface, error)) Option {
	return func(b *Backend) {
		b.interfaces = fn
	}
}

// Backend answers probes about the running machine. It is safe for
// concurrent use.
type Backend struct {
	root       string
	goos       string
	overrides  map[string]string
	interfaces func() ([]net.Interface, error)
}

// New creates a Backend for the running platform.
func New(opts ...Option) *Backend {
	b := &Backend{
		root:       "/",
		goos:       runtime.GOOS,
		overrides:  make(map[string]string),
		interfaces: net.Interfaces,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Probe returns the value of a single probe.
func (b *Backend) Probe(probe string) (string, error) {
	if v, ok := b.overrides[probe]; ok {
		return normalize(v), nil
	}
	if v := os.Getenv(EnvName(probe)); v != "" {
		return normalize(v), nil
	}

	var (
		value string
		err   error
	)
	switch probe {
	case ProbeHostName:
		value, err = os.Hostname()
		value = strings.ToLower(value)
	case ProbeMachineID:
		value, err = b.machineID()
	case ProbeMAC:
		value, err = b.macAddresses()
	case ProbeCPUModel:
		value, err = b.cpuModel()
	case ProbeCPUCount:
		value = strconv.Itoa(runtime.NumCPU())
	case ProbeOSPlatform:
		value = b.goos + "/" + runtime.GOARCH
	case ProbeProductUUID:
		value, err = b.dmi("product_uuid")
	case ProbeBoardSerial:
		value, err = b.dmi("board_serial")
	case ProbeBoardVendor:
		value, err = b.dmi("board_vendor")
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProbe, probe)
	}
	value = normalize(value)
	if err == nil && value == "" {
		err = ErrNoValue
	}
	return value, err
}

// EnvName returns the override environment variable for probe.
func EnvName(probe string) string {
	return EnvPrefix + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(probe))
}

func (b *Backend) path(elem ...string) string {
	return filepath.Join(append([]string{b.root}, elem...)...)
}

func (b *Backend) readFirst(paths ...string) (string, error) {
	var firstErr error
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err == nil {
			return strings.TrimSpace(string(data)), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return "", firstErr
}

func (b *Backend) machineID() (string, error) {
	switch b.goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return b.readFirst(
			b.path("etc", "machine-id"),
			b.path("var", "lib", "dbus", "machine-id"),
			b.path("etc", "hostid"),
		)
	default:
		return "", ErrUnsupported
	}
}

// macAddresses returns the sorted, comma-joined hardware addresses of all
// non-loopback interfaces.
func (b *Backend) macAddresses() (string, error) {
	ifaces, err := b.interfaces()
	if err != nil {
		return "", err
	}
	var macs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		mac := iface.HardwareAddr.String()
		if mac != "" && mac != "00:00:00:00:00:00" {
			macs = append(macs, mac)
		}
	}
	sort.Strings(macs)
	return strings.Join(macs, ","), nil
}

func (b *Backend) cpuModel() (string, error) {
	switch b.goos {
	case "linux":
		data, err := os.ReadFile(b.path("proc", "cpuinfo"))
		if err != nil {
			return "", err
		}
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			key, value, ok := strings.Cut(scanner.Text(), ":")
			if !ok {
				continue
			}
			switch strings.TrimSpace(key) {
			case "model name", "Model", "cpu model", "Processor":
				return strings.TrimSpace(value), nil
			}
		}
		// Partial answer: the architecture is known even without a model line.
		return runtime.GOARCH, fmt.Errorf("%w: no model line in cpuinfo", ErrNoValue)
	case "windows":
		if id := os.Getenv("PROCESSOR_IDENTIFIER"); id != "" {
			return id, nil
		}
		return runtime.GOARCH, ErrNoValue
	default:
		return "", ErrUnsupported
	}
}

func (b *Backend) dmi(name string) (string, error) {
	if b.goos != "linux" {
		return "", ErrUnsupported
	}
	return b.readFirst(b.path("sys", "class", "dmi", "id", name))
}

func normalize(s string) string {
	s = strings.NewReplacer("\r", " ", "\n", " ", "\t", " ").Replace(s)
	return strings.TrimSpace(s)
}
