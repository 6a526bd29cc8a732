package nodelock

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"

	"github.com/Masterminds/semver/v3"
)

// VersionResolver returns the running software's version, or nil when it
// can not be determined.
type VersionResolver func() *Version

// StaticVersion returns a resolver that always reports v.
func StaticVersion(v Version) VersionResolver {
	return func() *Version { return &v }
}

// UnknownVersion is a resolver for hosts whose version can not be determined.
func UnknownVersion() *Version { return nil }

// BuildInfoVersion resolves the version of the main module from the build
// information embedded by the Go toolchain. Development builds and versions
// that are not semantic versions are reported as unknown.
func BuildInfoVersion() *Version {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	return versionFromModule(info.Main.Version)
}

func versionFromModule(s string) *Version {
	if s == "" || s == "(devel)" {
		return nil
	}
	sv, err := semver.NewVersion(s)
	if err != nil {
		return nil
	}
	v, err := NewVersion(int(sv.Major()), int(sv.Minor()), int(sv.Patch()))
	if err != nil {
		return nil
	}
	return &v
}

// ExecutablePath returns the resolved path of the running executable.
func ExecutablePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(exe)
}

// SharedDocumentsDir returns the system-wide shared documents location for
// the current platform, or an empty string when the platform has none.
func SharedDocumentsDir() string {
	switch runtime.GOOS {
	case "windows":
		if public := os.Getenv("PUBLIC"); public != "" {
			return filepath.Join(public, "Documents")
		}
		return ""
	case "darwin":
		return "/Users/Shared"
	case "linux", "freebsd", "openbsd", "netbsd":
		return "/usr/local/share"
	default:
		return ""
	}
}
