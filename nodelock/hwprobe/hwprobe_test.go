package hwprobe

import (
	"errors"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// fakeRoot lays out files below a temporary root directory.
func fakeRoot(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func linuxBackend(root string, opts ...Option) *Backend {
	b := New(append([]Option{WithRoot(root)}, opts...)...)
	b.goos = "linux"
	return b
}

func TestProbe_LinuxFiles(t *testing.T) {
	root := fakeRoot(t, map[string]string{
		"etc/machine-id":                   "4c4c4544004210\n",
		"proc/cpuinfo":                     "processor\t: 0\nvendor_id\t: GenuineIntel\nmodel name\t: Intel(R) Xeon(R) CPU\n",
		"sys/class/dmi/id/product_uuid":    "0A1B2C3D-0000-1111-2222-333344445555\n",
		"sys/class/dmi/id/board_serial":    " SN-42 \n",
		"sys/class/dmi/id/board_vendor":    "Acme\r\n",
		"var/lib/dbus/machine-id-not-used": "ignored",
	})
	b := linuxBackend(root)

	tests := []struct {
		probe string
		want  string
	}{
		{ProbeMachineID, "4c4c4544004210"},
		{ProbeCPUModel, "Intel(R) Xeon(R) CPU"},
		{ProbeProductUUID, "0A1B2C3D-0000-1111-2222-333344445555"},
		{ProbeBoardSerial, "SN-42"},
		{ProbeBoardVendor, "Acme"},
		{ProbeOSPlatform, "linux/" + runtime.GOARCH},
	}
	for _, tt := range tests {
		t.Run(tt.probe, func(t *testing.T) {
			got, err := b.Probe(tt.probe)
			if err != nil {
				t.Fatalf("Probe(%q): %v", tt.probe, err)
			}
			if got != tt.want {
				t.Errorf("Probe(%q) = %q, want %q", tt.probe, got, tt.want)
			}
		})
	}
}

func TestProbe_MachineIDFallback(t *testing.T) {
	b := linuxBackend(fakeRoot(t, map[string]string{
		"var/lib/dbus/machine-id": "dbus-id",
	}))
	got, err := b.Probe(ProbeMachineID)
	if err != nil || got != "dbus-id" {
		t.Errorf("Probe(machine.id) = %q, %v; want dbus-id", got, err)
	}

	_, err = linuxBackend(t.TempDir()).Probe(ProbeMachineID)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("missing machine id error = %v, want fs.ErrNotExist", err)
	}
}

func TestProbe_CPUModelPartial(t *testing.T) {
	b := linuxBackend(fakeRoot(t, map[string]string{
		"proc/cpuinfo": "processor\t: 0\nflags\t: fpu vme\n",
	}))
	got, err := b.Probe(ProbeCPUModel)
	if !errors.Is(err, ErrNoValue) {
		t.Fatalf("error = %v, want ErrNoValue", err)
	}
	if got != runtime.GOARCH {
		t.Errorf("partial value = %q, want %q", got, runtime.GOARCH)
	}
}

func TestProbe_Unsupported(t *testing.T) {
	b := New(WithRoot(t.TempDir()))
	b.goos = "plan9"
	for _, probe := range []string{ProbeMachineID, ProbeCPUModel, ProbeProductUUID} {
		if _, err := b.Probe(probe); !errors.Is(err, ErrUnsupported) {
			t.Errorf("Probe(%q) error = %v, want ErrUnsupported", probe, err)
		}
	}
}

func TestProbe_MAC(t *testing.T) {
	mustMAC := func(s string) net.HardwareAddr {
		hw, err := net.ParseMAC(s)
		if err != nil {
			t.Fatal(err)
		}
		return hw
	}
	ifaces := []net.Interface{
		{Name: "lo", Flags: net.FlagLoopback | net.FlagUp, HardwareAddr: mustMAC("02:00:00:00:00:01")},
		{Name: "eth1", Flags: net.FlagUp, HardwareAddr: mustMAC("aa:bb:cc:dd:ee:02")},
		{Name: "eth0", Flags: net.FlagUp, HardwareAddr: mustMAC("aa:bb:cc:dd:ee:01")},
		{Name: "tun0", Flags: net.FlagUp},
		{Name: "dummy", HardwareAddr: mustMAC("00:00:00:00:00:00")},
	}
	b := New(WithInterfaces(func() ([]net.Interface, error) { return ifaces, nil }))

	got, err := b.Probe(ProbeMAC)
	if err != nil {
		t.Fatalf("Probe(net.mac): %v", err)
	}
	if want := "aa:bb:cc:dd:ee:01,aa:bb:cc:dd:ee:02"; got != want {
		t.Errorf("Probe(net.mac) = %q, want %q", got, want)
	}

	none := New(WithInterfaces(func() ([]net.Interface, error) { return ifaces[:1], nil }))
	if _, err := none.Probe(ProbeMAC); !errors.Is(err, ErrNoValue) {
		t.Errorf("loopback only error = %v, want ErrNoValue", err)
	}

	broken := New(WithInterfaces(func() ([]net.Interface, error) { return nil, errors.New("netlink") }))
	if _, err := broken.Probe(ProbeMAC); err == nil {
		t.Error("expected interface listing error")
	}
}

func TestProbe_Overrides(t *testing.T) {
	t.Setenv("CNW_FINGERPRINT_MACHINE_ID", "  from-env\n")
	t.Setenv("CNW_FINGERPRINT_DMI_BOARD_SERIAL", "serial-env")

	b := New(WithRoot(t.TempDir()), WithOverride(ProbeBoardSerial, "pinned"))

	got, err := b.Probe(ProbeMachineID)
	if err != nil || got != "from-env" {
		t.Errorf("Probe(machine.id) = %q, %v; want from-env", got, err)
	}
	got, err = b.Probe(ProbeBoardSerial)
	if err != nil || got != "pinned" {
		t.Errorf("option override = %q, %v; want pinned", got, err)
	}
}

func TestProbe_Unknown(t *testing.T) {
	if _, err := New().Probe("gpu.model"); !errors.Is(err, ErrUnknownProbe) {
		t.Errorf("error = %v, want ErrUnknownProbe", err)
	}
}

func TestEnvName(t *testing.T) {
	tests := map[string]string{
		"machine.id":       "CNW_FINGERPRINT_MACHINE_ID",
		"dmi.product_uuid": "CNW_FINGERPRINT_DMI_PRODUCT_UUID",
		"net.mac":          "CNW_FINGERPRINT_NET_MAC",
		"custom-probe":     "CNW_FINGERPRINT_CUSTOM_PROBE",
	}
	for probe, want := range tests {
		if got := EnvName(probe); got != want {
			t.Errorf("EnvName(%q) = %q, want %q", probe, got, want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := normalize(" a\tb\r\nc "); got != "a b  c" {
		t.Errorf("normalize = %q", got)
	}
}
