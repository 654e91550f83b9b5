package place

// CostMode selects how a cost model's ComputeFull interacts with its caches.
type CostMode int

const (
	// CostNormal recomputes every term and stores the results in the model's
	// caches. Used at initialization.
	CostNormal CostMode = iota

	// CostCheck recomputes every term without touching the caches. Used by
	// the verifier to detect incremental-update drift.
	CostCheck
)
