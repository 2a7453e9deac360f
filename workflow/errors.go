package workflow

import "errors"

// Ledger mutation error taxonomy. Every mutation runs inside one transaction,
// so any of these leaving the workflow means no partial write happened.
var (
	// ErrInsufficientUpstream: requested quantity exceeds the current
	// stage/queue availability. Recoverable; the caller re-reads and retries
	// with a smaller quantity.
	ErrInsufficientUpstream = errors.New("insufficient upstream quantity")

	// Terminal-state violations. Reported, never retried.
	ErrAlreadyFinalized = errors.New("production order already finalized")
	ErrAlreadyCancelled = errors.New("production order already cancelled")

	// ErrSessionNotActive: finalize/cancel on a session that is not active.
	ErrSessionNotActive = errors.New("worker session is not active")

	// ErrSessionAlreadyActive: the worker already holds an active session for
	// the same key and queue.
	ErrSessionAlreadyActive = errors.New("worker already has an active session for this item")

	// ErrConcurrentModification: lock conflict that survived the internal
	// retry bound. Retryable by the caller.
	ErrConcurrentModification = errors.New("concurrent modification, retry")

	// ErrNotReadyToFinalize: the order's last stage has no entries at all.
	// Distinct from finalizing short of target, which is allowed with a loss.
	ErrNotReadyToFinalize = errors.New("order has no quantity at its final stage")
)
