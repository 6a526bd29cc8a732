package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CloudNativeWorks/cnw-nodelock-sdk/nodelock"
)

func executeCommand(args []string) (string, error) {
	defer resetCmdArgs()

	buf := new(bytes.Buffer)
	cmd := rootCmd
	cmd.SetArgs(args)
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	err := cmd.Execute()
	return buf.String(), err
}

// resetCmdArgs resets all command-specific flags to their default values.
func resetCmdArgs() {
	rootArgs = rootFlags{timeout: defaultTimeout}
	keygenArgs = keygenFlags{outDir: ".", bits: 3072}
	requestArgs = requestFlags{out: "request.txt"}
	issueArgs = issueFlags{request: "request.txt", out: nodelock.DefaultFileName}
	inspectArgs = inspectFlags{request: "request.txt"}
	checkArgs = checkFlags{}
}

// pinFingerprint makes the host fingerprint deterministic for the test.
func pinFingerprint(t *testing.T, machineID string) {
	t.Helper()
	t.Setenv("CNW_NODELOCK_PROBES", "machine.id,os.platform")
	t.Setenv("CNW_FINGERPRINT_MACHINE_ID", machineID)
	t.Setenv("CNW_NODELOCK_LOG_LEVEL", "error")
}

func TestLicenseLifecycle(t *testing.T) {
	pinFingerprint(t, "test-machine-1")
	dir := t.TempDir()
	pub := filepath.Join(dir, "public.pem")
	priv := filepath.Join(dir, "private.pem")
	request := filepath.Join(dir, "request.txt")
	license := filepath.Join(dir, "product.lic")

	out, err := executeCommand([]string{"keygen", "--out", dir, "--bits", "2048"})
	require.NoError(t, err, out)
	assert.Contains(t, out, priv)
	info, err := os.Stat(priv)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = executeCommand([]string{"keygen", "--out", dir, "--bits", "2048"})
	assert.ErrorContains(t, err, "already exists")

	out, err = executeCommand([]string{"request", "--public-key", pub, "--out", request, "--product-version", "2.1"})
	require.NoError(t, err, out)
	assert.Contains(t, out, "2 hardware entries")

	out, err = executeCommand([]string{"inspect", "--private-key", priv, "--request", request})
	require.NoError(t, err, out)
	assert.Contains(t, out, "version:     2.1")
	assert.Contains(t, out, "machine.id = test-machine-1")

	out, err = executeCommand([]string{"issue",
		"--private-key", priv,
		"--request", request,
		"--out", license,
		"--valid-days", "30",
		"--min-version", "2.0",
		"--holder", "Jane Doe",
		"--organization", "Example Ltd",
		"--feature", "10=1",
		"--feature", "11=0",
		"--feature", "9002=3",
		"--registry", "memory:",
	})
	require.NoError(t, err, out)
	assert.Contains(t, out, "written to "+license)

	out, err = executeCommand([]string{"check",
		"--public-key", pub,
		"--license", license,
		"--product-version", "2.1",
		"--feature", "10",
		"--enforce-limits",
		"--nodes", "2",
	})
	require.NoError(t, err, out)
	assert.Contains(t, out, "is valid")
	assert.Contains(t, out, "licensed to Example Ltd")
	assert.Contains(t, out, "feature 10 = 1")

	t.Run("zero valued feature is not granted", func(t *testing.T) {
		_, err := executeCommand([]string{"check", "--public-key", pub, "--license", license,
			"--product-version", "2.1", "--feature", "11"})
		assert.ErrorContains(t, err, "feature 11 is not granted")
	})

	t.Run("node limit", func(t *testing.T) {
		_, err := executeCommand([]string{"check", "--public-key", pub, "--license", license,
			"--product-version", "2.1", "--enforce-limits", "--nodes", "4"})
		assert.ErrorIs(t, err, nodelock.ErrNodeLimitExceeded)
	})

	t.Run("version below minimum", func(t *testing.T) {
		_, err := executeCommand([]string{"check", "--public-key", pub, "--license", license,
			"--product-version", "1.9"})
		assert.ErrorIs(t, err, errNoLicense)
	})

	t.Run("unknown version", func(t *testing.T) {
		_, err := executeCommand([]string{"check", "--public-key", pub, "--license", license})
		assert.ErrorIs(t, err, errNoLicense)
	})

	t.Run("missing license", func(t *testing.T) {
		_, err := executeCommand([]string{"check", "--public-key", pub,
			"--license", filepath.Join(dir, "missing.lic"), "--product-version", "2.1"})
		assert.ErrorIs(t, err, errNoLicense)
	})

	t.Run("tampered license", func(t *testing.T) {
		data, err := os.ReadFile(license)
		require.NoError(t, err)
		tampered := filepath.Join(dir, "tampered.lic")
		require.NoError(t, os.WriteFile(tampered, append([]byte("AAAA"), data[4:]...), 0o644))

		_, err = executeCommand([]string{"check", "--public-key", pub, "--license", tampered,
			"--product-version", "2.1"})
		assert.ErrorIs(t, err, nodelock.ErrSignatureInvalid)
	})
}

func TestIssue_RequiresPrivateKey(t *testing.T) {
	t.Setenv("CNW_NODELOCK_LOG_LEVEL", "error")
	_, err := executeCommand([]string{"issue", "--request", filepath.Join(t.TempDir(), "request.txt")})
	assert.ErrorContains(t, err, "private key is required")
}

func TestKeygen_RejectsSmallKeys(t *testing.T) {
	t.Setenv("CNW_NODELOCK_LOG_LEVEL", "error")
	_, err := executeCommand([]string{"keygen", "--out", t.TempDir(), "--bits", "1024"})
	assert.ErrorIs(t, err, nodelock.ErrUsage)
}

func TestParseFeature(t *testing.T) {
	tests := []struct {
		in      string
		id      int
		value   int
		wantErr bool
	}{
		{"10=1", 10, 1, false},
		{" 9001 = 8 ", 9001, 8, false},
		{"7", 7, 1, false},
		{"-3=0", -3, 0, false},
		{"reports=1", 0, 0, true},
		{"10=yes", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			id, value, err := parseFeature(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.id, id)
			assert.Equal(t, tt.value, value)
		})
	}
}

func TestApplyIssueFlags(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("all terms", func(t *testing.T) {
		lic := nodelock.NewLicense("lic-1", now)
		err := applyIssueFlags(lic, issueFlags{
			validDays:  10,
			minVersion: "1.0",
			maxVersion: "1.9",
			holder:     "Jane",
			email:      "jane@example.com",
			features:   []string{"1=2", "3"},
		}, now)
		require.NoError(t, err)
		assert.True(t, lic.Validity().From().Equal(now))
		assert.True(t, lic.Validity().To().Equal(now.AddDate(0, 0, 10)))
		assert.Equal(t, "1.0", lic.MinimumVersion().String())
		assert.Equal(t, "1.9", lic.MaximumVersion().String())
		u, ok := lic.EndUser()
		require.True(t, ok)
		assert.Equal(t, "jane@example.com", u.EMailAddress)
		assert.Equal(t, map[int]int{1: 2, 3: 1}, lic.Features())
	})

	t.Run("explicit start without end", func(t *testing.T) {
		lic := nodelock.NewLicense("lic-1", now)
		require.NoError(t, applyIssueFlags(lic, issueFlags{validFrom: "2024-07-01T00:00:00Z"}, now))
		assert.True(t, lic.Validity().To().IsZero())
		_, ok := lic.EndUser()
		assert.False(t, ok)
	})

	t.Run("no terms", func(t *testing.T) {
		lic := nodelock.NewLicense("lic-1", now)
		require.NoError(t, applyIssueFlags(lic, issueFlags{}, now))
		assert.True(t, lic.Validity().IsUnbounded())
		assert.Nil(t, lic.MinimumVersion())
	})

	for name, flags := range map[string]issueFlags{
		"bad start":       {validFrom: "tomorrow"},
		"negative days":   {validDays: -1},
		"bad min version": {minVersion: "one"},
		"bad max version": {maxVersion: "1"},
		"bad feature":     {features: []string{"x=1"}},
	} {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, applyIssueFlags(nodelock.NewLicense("lic-1", now), flags, now))
		})
	}
}
