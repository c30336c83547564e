package cli

// SilentError wraps an error whose user-facing message has already been
// printed by the command that returned it, so main.go's top-level error
// handler should exit non-zero without printing it again. Grounded on
// cmd/entire/cli's SilentError idiom.
type SilentError struct {
	err error
}

// NewSilentError wraps err as a SilentError.
func NewSilentError(err error) *SilentError {
	return &SilentError{err: err}
}

func (e *SilentError) Error() string {
	return e.err.Error()
}

func (e *SilentError) Unwrap() error {
	return e.err
}
