package monitoring

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKillValidation(t *testing.T) {
	controller := NewProcessController(newFakeRunner())

	err := controller.Kill(123, "USR1")
	var procErr *ProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, ErrorCodeInvalidSignal, procErr.Code)
	assert.Equal(t, int32(123), procErr.PID)
}

func TestKillSyscallPath(t *testing.T) {
	controller := NewProcessController(newFakeRunner())

	t.Run("signal to self", func(t *testing.T) {
		// SIGCONT on a running process is a no-op.
		assert.NoError(t, controller.Kill(int32(os.Getpid()), "CONT"))
	})

	t.Run("missing process", func(t *testing.T) {
		err := controller.Kill(99999999, "TERM")
		var procErr *ProcessError
		require.ErrorAs(t, err, &procErr)
		assert.Equal(t, ErrorCodeProcessNotFound, procErr.Code)
	})
}

func TestKillSandboxedRelay(t *testing.T) {
	runner := newFakeRunner()
	runner.sandboxed = true
	controller := NewProcessController(runner)

	t.Run("default signal is TERM", func(t *testing.T) {
		require.NoError(t, controller.Kill(1234, ""))
		assert.Equal(t, 1, runner.callCount("kill", "-TERM", "1234"))
	})

	t.Run("host error mapping", func(t *testing.T) {
		runner.errs["kill -KILL 1234"] = errors.New("kill: (1234): Operation not permitted")
		err := controller.Kill(1234, "KILL")
		var procErr *ProcessError
		require.ErrorAs(t, err, &procErr)
		assert.Equal(t, ErrorCodePermissionDenied, procErr.Code)

		runner.errs["kill -INT 9876"] = errors.New("kill: (9876): No such process")
		err = controller.Kill(9876, "INT")
		require.ErrorAs(t, err, &procErr)
		assert.Equal(t, ErrorCodeProcessNotFound, procErr.Code)
	})
}

func TestReniceValidation(t *testing.T) {
	controller := NewProcessController(newFakeRunner())

	for _, nice := range []int{-21, 20, 100} {
		err := controller.Renice(123, nice)
		var procErr *ProcessError
		require.ErrorAs(t, err, &procErr, "nice %d", nice)
		assert.Equal(t, ErrorCodeInvalidPriority, procErr.Code)
	}
}

func TestReniceSandboxedRelay(t *testing.T) {
	runner := newFakeRunner()
	runner.sandboxed = true
	controller := NewProcessController(runner)

	require.NoError(t, controller.Renice(1234, 10))
	assert.Equal(t, 1, runner.callCount("renice", "10", "-p", "1234"))

	runner.errs["renice 5 -p 1234"] = fmt.Errorf("renice: permission denied")
	err := controller.Renice(1234, 5)
	var procErr *ProcessError
	require.ErrorAs(t, err, &procErr)
	assert.Equal(t, ErrorCodePermissionDenied, procErr.Code)
}
