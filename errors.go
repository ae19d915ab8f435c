package ballast

import "errors"

var (
	// Argument errors. Raised synchronously by the mutation API before any
	// lock is taken or command queued.
	ErrMissingJobID  = errors.New("ballast: missing job id")
	ErrMissingKey    = errors.New("ballast: missing key")
	ErrMissingQueue  = errors.New("ballast: missing queue name")
	ErrMissingState  = errors.New("ballast: missing state")
	ErrMissingValues = errors.New("ballast: missing values")
	ErrMissingFields = errors.New("ballast: missing fields")

	// Lifecycle errors.
	ErrTransactionDone = errors.New("ballast: transaction already committed or aborted")

	// Capability errors.
	ErrConnUnsupported = errors.New("ballast: backend does not support raw statement execution")
)
