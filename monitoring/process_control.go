package monitoring

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"procwatch/hostexec"
)

// signalsByName limits the control surface to the signals the UI offers.
var signalsByName = map[string]unix.Signal{
	"TERM": unix.SIGTERM,
	"KILL": unix.SIGKILL,
	"INT":  unix.SIGINT,
	"HUP":  unix.SIGHUP,
	"STOP": unix.SIGSTOP,
	"CONT": unix.SIGCONT,
}

// ProcessController sends signals and adjusts priorities. Unconfined it
// uses syscalls directly; inside the sandbox it relays kill/renice to the
// host, since syscalls cannot cross the pid namespace.
type ProcessController struct {
	runner  hostexec.Runner
	timeout time.Duration
}

func NewProcessController(r hostexec.Runner) *ProcessController {
	return &ProcessController{runner: r, timeout: hostexec.DefaultTimeout}
}

// Kill sends the named signal (TERM, KILL, INT, HUP, STOP, CONT) to pid.
func (c *ProcessController) Kill(pid int32, signalName string) error {
	signalName = strings.ToUpper(strings.TrimSpace(signalName))
	if signalName == "" {
		signalName = "TERM"
	}
	sig, ok := signalsByName[signalName]
	if !ok {
		return createProcessError("KILL_PROCESS", pid,
			fmt.Sprintf("unsupported signal %q", signalName), ErrorCodeInvalidSignal)
	}

	if c.runner.Sandboxed() {
		cmd := []string{"kill", "-" + signalName, strconv.FormatInt(int64(pid), 10)}
		if _, err := c.runner.RunChecked(cmd, c.timeout); err != nil {
			return c.wrapHostError("KILL_PROCESS", pid, err)
		}
		LogInfo("Signal sent via host relay", "pid", pid, "signal", signalName)
		return nil
	}

	if err := unix.Kill(int(pid), sig); err != nil {
		return c.wrapSyscallError("KILL_PROCESS", pid, err)
	}
	LogInfo("Signal sent", "pid", pid, "signal", signalName)
	return nil
}

// Renice sets the nice value of pid. Values outside [-20, 19] are
// rejected before touching the process.
func (c *ProcessController) Renice(pid int32, nice int) error {
	if nice < -20 || nice > 19 {
		return createProcessError("RENICE_PROCESS", pid,
			fmt.Sprintf("nice value %d out of range [-20, 19]", nice), ErrorCodeInvalidPriority)
	}

	if c.runner.Sandboxed() {
		cmd := []string{"renice", strconv.Itoa(nice), "-p", strconv.FormatInt(int64(pid), 10)}
		if _, err := c.runner.RunChecked(cmd, c.timeout); err != nil {
			return c.wrapHostError("RENICE_PROCESS", pid, err)
		}
		LogInfo("Priority changed via host relay", "pid", pid, "nice", nice)
		return nil
	}

	if err := unix.Setpriority(unix.PRIO_PROCESS, int(pid), nice); err != nil {
		return c.wrapSyscallError("RENICE_PROCESS", pid, err)
	}
	LogInfo("Priority changed", "pid", pid, "nice", nice)
	return nil
}

func (c *ProcessController) wrapSyscallError(op string, pid int32, err error) error {
	switch {
	case errors.Is(err, unix.ESRCH):
		return createProcessError(op, pid, "process not found", ErrorCodeProcessNotFound)
	case errors.Is(err, unix.EPERM), errors.Is(err, unix.EACCES):
		return createProcessError(op, pid, "permission denied", ErrorCodePermissionDenied)
	default:
		return createProcessError(op, pid, err.Error(), ErrorCodeSystemError)
	}
}

func (c *ProcessController) wrapHostError(op string, pid int32, err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "no such process"):
		return createProcessError(op, pid, msg, ErrorCodeProcessNotFound)
	case strings.Contains(lower, "permission denied") || strings.Contains(lower, "operation not permitted"):
		return createProcessError(op, pid, msg, ErrorCodePermissionDenied)
	default:
		return createProcessError(op, pid, msg, ErrorCodeSystemError)
	}
}
