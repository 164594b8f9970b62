package reconcile

// Summary holds the counters accumulated over one run. Inserted is the
// legacy combined counter (insertedNew + upgradedExisting) kept for
// dashboards that still consume it.
type Summary struct {
	Scanned           int `json:"scanned"`
	Inserted          int `json:"inserted"`
	InsertedNew       int `json:"insertedNew"`
	UpgradedExisting  int `json:"upgradedExisting"`
	Noops             int `json:"noops"`
	Skipped           int `json:"skipped"`
	UnknownSourceType int `json:"unknownSourceType"`
	Errors            int `json:"errors"`

	SourceTypeCounts      map[string]int `json:"sourceTypeCounts"`
	UnknownFirstSegCounts map[string]int `json:"unknownFirstSegCounts"`
	UnknownKeySamples     []string       `json:"unknownKeySamples"`
}

// ResumeToken is enough state to continue a stopped run. Cursor and
// StartAfter are both empty after a run that scanned everything.
type ResumeToken struct {
	Cursor     string `json:"cursor"`
	StartAfter string `json:"start_after"`
}

// Report is the single structured output of a run, printed once on every
// exit path, successful or not.
type Report struct {
	Success bool        `json:"success"`
	DryRun  bool        `json:"dryRun"`
	Bucket  string      `json:"bucket"`
	Prefix  string      `json:"prefix"`
	Aborted string      `json:"aborted,omitempty"`
	Resume  ResumeToken `json:"resume"`
	Summary Summary     `json:"summary"`
}
