package monitoring

import (
	"fmt"
)

// ProcessError carries a typed failure from a process operation.
type ProcessError struct {
	Type    string
	PID     int32
	Message string
	Code    int
}

func (e *ProcessError) Error() string {
	if e.PID != 0 {
		return fmt.Sprintf("[%s] PID %d: %s (Code: %d)", e.Type, e.PID, e.Message, e.Code)
	}
	return fmt.Sprintf("[%s] %s (Code: %d)", e.Type, e.Message, e.Code)
}

// Error code constants.
const (
	ErrorCodeProcessNotFound  = 1001
	ErrorCodePermissionDenied = 1002
	ErrorCodeInvalidSignal    = 1003
	ErrorCodeInvalidPriority  = 1004
	ErrorCodeSystemError      = 1005
)

// createProcessError builds a standardized process error.
func createProcessError(errorType string, pid int32, message string, code int) *ProcessError {
	return &ProcessError{
		Type:    errorType,
		PID:     pid,
		Message: message,
		Code:    code,
	}
}
