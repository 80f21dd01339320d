package config

type WorkerKeyStruct struct {
	PersistViolationsQueue string
	PendingResultsQueue    string
	// FailedResultsQueue keeps results the Results API rejected for good,
	// for manual inspection.
	FailedResultsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistViolationsQueue: "persist_violations_queue",
	PendingResultsQueue:    "pending_results_queue",
	FailedResultsQueue:     "failed_results_queue",
}
