// Package hostinfo identifies the configuration measurements are taken
// under: hardware, operating system, runtime and C compiler versions.
package hostinfo

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"github.com/benchscale/benchscale/internal/database"
	"github.com/benchscale/benchscale/internal/workload"
)

// Unknown is the hardware id of unrecognized machines.
const Unknown = "UNKNOWN"

// knownCPUs maps a substring of /proc/cpuinfo to a hardware id. Only
// machines listed here produce comparable measurements.
var knownCPUs = []struct{ marker, id string }{
	{"i5-1145G7", "Intel Core i5-1145G7 (64-bit)"},
	{"i7-2600K", "Intel Core i7-2600K (64-bit)"},
	{"Ryzen 9 3950X", "AMD Ryzen 9 3950X (64-bit)"},
}

var versionRe = regexp.MustCompile(`\b[0-9]+([-.][A-Za-z0-9]+)*\b`)

// ErrNoVersion is returned when command output holds no version number.
var ErrNoVersion = errors.New("no version found")

// HardwareID returns the id of a known x86_64 CPU described by cpuinfo, or
// Unknown.
func HardwareID(arch, cpuinfo string) string {
	if arch != "x86_64" {
		return Unknown
	}
	for _, c := range knownCPUs {
		if strings.Contains(cpuinfo, c.marker) {
			return c.id
		}
	}
	return Unknown
}

// ParseOSRelease returns PRETTY_NAME from os-release(5) content.
func ParseOSRelease(data []byte) (string, bool) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		v, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "PRETTY_NAME=")
		if !ok {
			continue
		}
		return strings.Trim(v, `"'`), true
	}
	return "", false
}

// ParseLSBDescription returns the value of "lsb_release -d" output,
// e.g. "Ubuntu 20.04.2 LTS" for "Description:\tUbuntu 20.04.2 LTS".
func ParseLSBDescription(out []byte) string {
	fields := strings.Fields(string(out))
	if len(fields) < 2 {
		return ""
	}
	return strings.Join(fields[1:], " ")
}

// ParseCompilerVersion returns the first version-like token of
// "cc --version" output. Works for gcc and clang.
func ParseCompilerVersion(out []byte) (string, error) {
	v := versionRe.Find(out)
	if v == nil {
		return "", ErrNoVersion
	}
	return string(v), nil
}

// Detector reads host information. The zero value inspects the real host.
type Detector struct {
	CPUInfoPath   string
	OSReleasePath string
	// Arch returns the machine architecture, as "uname -m" prints it.
	Arch func() (string, error)
	// Run executes a command and returns its standard output.
	Run func(ctx context.Context, args ...string) ([]byte, error)
}

// Detect returns the configuration key of the host, and the C compiler
// as "<cc> <version>".
func (d *Detector) Detect(ctx context.Context, settings workload.Settings) (database.ConfigKey, string, error) {
	var key database.ConfigKey
	hw, err := d.HardwareID()
	if err != nil {
		return key, "", err
	}
	osv, err := d.OSVersion(ctx)
	if err != nil {
		return key, "", err
	}
	rt, err := d.RuntimeVersion(ctx, settings.RuntimeVersionCommand)
	if err != nil {
		return key, "", err
	}
	key = database.ConfigKey{RuntimeVersion: rt, HardwareID: hw, OSVersion: osv}

	cc := settings.CC
	if cc == "" {
		return key, "", nil
	}
	ccv, err := d.CompilerVersion(ctx, cc)
	if err != nil {
		return key, "", err
	}
	return key, cc + " " + ccv, nil
}

// HardwareID identifies the host CPU.
func (d *Detector) HardwareID() (string, error) {
	archFn := d.Arch
	if archFn == nil {
		archFn = machineArch
	}
	arch, err := archFn()
	if err != nil {
		return "", fmt.Errorf("machine architecture: %w", err)
	}
	data, err := os.ReadFile(d.path(d.CPUInfoPath, "/proc/cpuinfo"))
	if errors.Is(err, os.ErrNotExist) {
		return Unknown, nil
	}
	if err != nil {
		return "", fmt.Errorf("read cpuinfo: %w", err)
	}
	return HardwareID(arch, string(data)), nil
}

// OSVersion returns the operating system description, from os-release or
// failing that from lsb_release.
func (d *Detector) OSVersion(ctx context.Context) (string, error) {
	if data, err := os.ReadFile(d.path(d.OSReleasePath, "/etc/os-release")); err == nil {
		if v, ok := ParseOSRelease(data); ok && v != "" {
			return v, nil
		}
	}
	out, err := d.run(ctx, "lsb_release", "-d")
	if err != nil {
		return "", fmt.Errorf("os version: %w", err)
	}
	return ParseLSBDescription(out), nil
}

// RuntimeVersion runs the configured version command and returns its
// trimmed output.
func (d *Detector) RuntimeVersion(ctx context.Context, command []string) (string, error) {
	if len(command) == 0 {
		return "", fmt.Errorf("runtime version: no command configured")
	}
	out, err := d.run(ctx, command...)
	if err != nil {
		return "", fmt.Errorf("runtime version: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CompilerVersion returns the version of the C compiler cc.
func (d *Detector) CompilerVersion(ctx context.Context, cc string) (string, error) {
	out, err := d.run(ctx, cc, "--version")
	if err != nil {
		return "", fmt.Errorf("%s version: %w", cc, err)
	}
	v, err := ParseCompilerVersion(out)
	if err != nil {
		return "", fmt.Errorf("%s version: %w", cc, err)
	}
	return v, nil
}

func (d *Detector) run(ctx context.Context, args ...string) ([]byte, error) {
	if d.Run != nil {
		return d.Run(ctx, args...)
	}
	return exec.CommandContext(ctx, args[0], args[1:]...).Output()
}

func (d *Detector) path(p, def string) string {
	if p != "" {
		return p
	}
	return def
}
