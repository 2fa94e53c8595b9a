// Package hostexec runs external commands on the host system, relaying
// them through flatpak-spawn when the process is confined in a Flatpak
// sandbox. Every collector that shells out goes through this package so
// that sandbox handling lives in exactly one place.
package hostexec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultTimeout bounds command execution when callers pass no explicit
// timeout.
const DefaultTimeout = 5 * time.Second

// Runner executes host commands. Collectors accept this interface so tests
// can substitute canned outputs.
type Runner interface {
	// Run executes cmd and returns its stdout. All failures (missing
	// binary, non-zero exit, timeout) yield an empty string; collectors
	// treat missing output as "no data".
	Run(cmd []string, timeout time.Duration) string
	// RunChecked executes cmd and reports failures, with stderr folded
	// into the error. Used by the signal/renice path where the caller
	// must distinguish failure modes.
	RunChecked(cmd []string, timeout time.Duration) (string, error)
	// Sandboxed reports whether the process runs inside a Flatpak sandbox.
	Sandboxed() bool
	// ProcRoot returns the proc filesystem root to read host process
	// data from. Inside the sandbox this is the relocated host mount.
	ProcRoot() string
}

// HostRunner is the production Runner. Sandbox state and proc root are
// probed once at construction and never change for the process lifetime.
type HostRunner struct {
	sandboxed bool
	procRoot  string
}

// New probes the filesystem and returns a ready HostRunner. When the proc
// root is relocated, HOST_PROC is exported so gopsutil reads host data
// instead of the sandbox's own namespace.
func New() *HostRunner {
	r := newRunner("/")
	if r.procRoot != "/proc" {
		os.Setenv("HOST_PROC", r.procRoot)
	}
	return r
}

// newRunner keeps the probe paths relative to fsRoot so tests can build a
// fake filesystem layout in a temp dir.
func newRunner(fsRoot string) *HostRunner {
	sandboxed := fileExists(filepath.Join(fsRoot, ".flatpak-info"))
	procRoot := filepath.Join(fsRoot, "proc")
	if hostProc := filepath.Join(fsRoot, "run/host/proc"); dirExists(hostProc) {
		procRoot = hostProc
	}
	return &HostRunner{sandboxed: sandboxed, procRoot: procRoot}
}

func (r *HostRunner) Sandboxed() bool { return r.sandboxed }

func (r *HostRunner) ProcRoot() string { return r.procRoot }

// Argv returns the argv actually executed for cmd, with the flatpak-spawn
// relay prefix applied when sandboxed.
func (r *HostRunner) Argv(cmd []string) []string {
	if r.sandboxed {
		return append([]string{"flatpak-spawn", "--host"}, cmd...)
	}
	return cmd
}

func (r *HostRunner) Run(cmd []string, timeout time.Duration) string {
	out, _ := r.run(cmd, timeout)
	return out
}

func (r *HostRunner) RunChecked(cmd []string, timeout time.Duration) (string, error) {
	return r.run(cmd, timeout)
}

func (r *HostRunner) run(cmd []string, timeout time.Duration) (string, error) {
	if len(cmd) == 0 {
		return "", fmt.Errorf("empty command")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	argv := r.Argv(cmd)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return stdout.String(), fmt.Errorf("%s: timed out after %s", cmd[0], timeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return stdout.String(), fmt.Errorf("%s: %s", cmd[0], msg)
	}
	return stdout.String(), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
