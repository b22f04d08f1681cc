package domain

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrLockHeld = errors.New("lock already held")

	// ErrRejected wraps a business-rule rejection surfaced at submit time.
	ErrRejected = errors.New("close rejected")
	// ErrNotComputable means the inputs are incomplete (price feed not loaded,
	// amount not entered) so no request can be built yet.
	ErrNotComputable = errors.New("close not computable")
	// ErrApprovalRequired means the order book plugin has not been approved
	// for the trader yet.
	ErrApprovalRequired = errors.New("order book approval required")
	ErrInvalidInput     = errors.New("invalid input")
)
