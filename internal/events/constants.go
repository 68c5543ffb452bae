package events

// Outcome labels used for logging and metrics.
const (
	OutcomeRecorded = "recorded"
	OutcomeDropped  = "dropped"

	KindVisit      = "visit"
	KindGeneration = "generation"
)
