package reconcile

// Kind classifies reconciliation failures for the transport layer.
type Kind int

const (
	// KindValidation marks a malformed request. Not retryable; the store was
	// never touched.
	KindValidation Kind = iota + 1
	// KindUnavailable marks an unreachable or timed-out contact store.
	// Retryable; the failed unit of work left no partial state.
	KindUnavailable
	// KindConflict marks a unit of work that lost against a concurrent
	// reconciliation. Retryable from the top; the rerun re-reads fresh state.
	KindConflict
	// KindIntegrity marks a broken link-graph invariant. The request was
	// aborted instead of persisting a secondary that points at a secondary.
	KindIntegrity
)

// Error is a reconciliation failure with its classification and cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether rerunning the identical request may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindUnavailable || e.Kind == KindConflict
}
