package provider

// State is the lifecycle state of an Instance.
type State int

const (
	// StateActive is the state of a freshly built instance. Facades can be
	// bound and used.
	StateActive State = iota

	// StateDestroying means Destroy is draining the dispatcher and tearing
	// down facades. New work is rejected.
	StateDestroying

	// StateDestroyed is terminal. A new instance may now be built.
	StateDestroyed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDestroying:
		return "destroying"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// Facade names used in logs, metrics, events and the journal.
const (
	FacadeProduct       = "product"
	FacadeConfig        = "config"
	FacadeConfigManager = "config_manager"
	FacadeDiagnostic    = "diagnostic"
	FacadeEngine        = "engine"
)
