package domain

import "fmt"

// ValidationError rejects a write before any state change: empty customer
// name, unknown service or worker id, malformed position signal.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

func Validationf(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// NotFoundError means no container currently holds the targeted task.
type NotFoundError struct {
	TaskID string
}

func (e *NotFoundError) Error() string { return "task not found: " + e.TaskID }

// IntegrityError means a stored task references a service or worker that is
// not in the catalog. Write-time validation should make this impossible, so
// it is treated as fatal rather than user-recoverable.
type IntegrityError struct {
	TaskID string
	Ref    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity: task %s references unknown %s", e.TaskID, e.Ref)
}
