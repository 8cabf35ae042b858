package hostinfo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchscale/benchscale/internal/database"
	"github.com/benchscale/benchscale/internal/workload"
)

const cpuinfoI5 = `processor	: 0
vendor_id	: GenuineIntel
model name	: 11th Gen Intel(R) Core(TM) i5-1145G7 @ 2.60GHz
`

func TestHardwareID(t *testing.T) {
	tests := []struct {
		arch, cpuinfo, want string
	}{
		{"x86_64", cpuinfoI5, "Intel Core i5-1145G7 (64-bit)"},
		{"x86_64", "model name : Intel(R) Core(TM) i7-2600K CPU @ 3.40GHz", "Intel Core i7-2600K (64-bit)"},
		{"x86_64", "model name : AMD Ryzen 9 3950X 16-Core Processor", "AMD Ryzen 9 3950X (64-bit)"},
		{"x86_64", "model name : AMD EPYC 7R13", Unknown},
		{"aarch64", cpuinfoI5, Unknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HardwareID(tt.arch, tt.cpuinfo), tt.cpuinfo)
	}
}

func TestParseOSRelease(t *testing.T) {
	v, ok := ParseOSRelease([]byte("NAME=\"Ubuntu\"\nPRETTY_NAME=\"Ubuntu 20.04.2 LTS\"\nID=ubuntu\n"))
	require.True(t, ok)
	assert.Equal(t, "Ubuntu 20.04.2 LTS", v)

	_, ok = ParseOSRelease([]byte("NAME=Alpine\n"))
	assert.False(t, ok)
}

func TestParseLSBDescription(t *testing.T) {
	assert.Equal(t, "Ubuntu 20.04.2 LTS", ParseLSBDescription([]byte("Description:\tUbuntu 20.04.2 LTS\n")))
	assert.Equal(t, "", ParseLSBDescription([]byte("Description:\n")))
}

func TestParseCompilerVersion(t *testing.T) {
	tests := []struct{ out, want string }{
		{"clang version 10.0.0-4ubuntu1\nTarget: x86_64-pc-linux-gnu\n", "10.0.0-4ubuntu1"},
		{"gcc (Ubuntu 9.3.0-17ubuntu1~20.04) 9.3.0\n", "9.3.0-17ubuntu1"},
		{"Apple clang version 14.0.3 (clang-1403.0.22.14.1)", "14.0.3"},
	}
	for _, tt := range tests {
		got, err := ParseCompilerVersion([]byte(tt.out))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.out)
	}

	_, err := ParseCompilerVersion([]byte("no digits here"))
	require.ErrorIs(t, err, ErrNoVersion)
}

// fakeHost returns a Detector backed by files in a temp dir and canned
// command output.
func fakeHost(t *testing.T, arch string, outputs map[string]string) *Detector {
	t.Helper()
	dir := t.TempDir()
	cpu := filepath.Join(dir, "cpuinfo")
	rel := filepath.Join(dir, "os-release")
	require.NoError(t, os.WriteFile(cpu, []byte(cpuinfoI5), 0o644))
	require.NoError(t, os.WriteFile(rel, []byte(`PRETTY_NAME="Ubuntu 20.04.2 LTS"`+"\n"), 0o644))
	return &Detector{
		CPUInfoPath:   cpu,
		OSReleasePath: rel,
		Arch:          func() (string, error) { return arch, nil },
		Run: func(_ context.Context, args ...string) ([]byte, error) {
			out, ok := outputs[strings.Join(args, " ")]
			if !ok {
				return nil, errors.New("command not found: " + args[0])
			}
			return []byte(out), nil
		},
	}
}

func TestDetect(t *testing.T) {
	settings := workload.DefaultSettings()
	d := fakeHost(t, "x86_64", map[string]string{
		strings.Join(settings.RuntimeVersionCommand, " "): "3.8.10\n",
		"clang --version": "clang version 10.0.0-4ubuntu1\n",
	})

	key, cc, err := d.Detect(context.Background(), settings)
	require.NoError(t, err)
	assert.Equal(t, database.ConfigKey{
		RuntimeVersion: "3.8.10",
		HardwareID:     "Intel Core i5-1145G7 (64-bit)",
		OSVersion:      "Ubuntu 20.04.2 LTS",
	}, key)
	assert.Equal(t, "clang 10.0.0-4ubuntu1", cc)
}

func TestDetect_NoCompiler(t *testing.T) {
	settings := workload.DefaultSettings()
	settings.CC = ""
	d := fakeHost(t, "x86_64", map[string]string{
		strings.Join(settings.RuntimeVersionCommand, " "): "3.10.4",
	})
	_, cc, err := d.Detect(context.Background(), settings)
	require.NoError(t, err)
	assert.Empty(t, cc)
}

func TestDetect_RuntimeFailure(t *testing.T) {
	d := fakeHost(t, "x86_64", nil)
	_, _, err := d.Detect(context.Background(), workload.DefaultSettings())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime version")
}

func TestOSVersion_LSBFallback(t *testing.T) {
	d := fakeHost(t, "x86_64", map[string]string{"lsb_release -d": "Description:\tDebian GNU/Linux 11 (bullseye)\n"})
	d.OSReleasePath = filepath.Join(t.TempDir(), "missing")
	v, err := d.OSVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Debian GNU/Linux 11 (bullseye)", v)
}

func TestHardwareID_MissingCPUInfo(t *testing.T) {
	d := fakeHost(t, "x86_64", nil)
	d.CPUInfoPath = filepath.Join(t.TempDir(), "missing")
	id, err := d.HardwareID()
	require.NoError(t, err)
	assert.Equal(t, Unknown, id)
}

func TestMachineArch(t *testing.T) {
	arch, err := machineArch()
	require.NoError(t, err)
	assert.NotEmpty(t, arch)
}
