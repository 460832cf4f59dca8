package cli

import "fmt"

// ExitError carries a non-zero exit status for an outcome the command has
// already reported on stdout, such as a failed restore.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) ExitCode() int {
	return e.Code
}
