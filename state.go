package ballast

// State is the job-state object handed to SetJobState and AddJobState by the
// job-processing engine. Implementations expose a name, an optional
// human-readable reason, and an opaque data payload that is serialized at
// call time by the transaction's Codec.
type State interface {
	// StateName returns the state's machine name, e.g. "succeeded".
	StateName() string

	// StateReason returns an optional human-readable explanation for the
	// transition. Empty means no reason.
	StateReason() string

	// StateData returns the payload persisted alongside the history row.
	// It may be nil.
	StateData() map[string]string
}
