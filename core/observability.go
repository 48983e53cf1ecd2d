package core

// ExecutorStats is a point-in-time snapshot of an executor.
type ExecutorStats struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Threads   int    `json:"threads"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Completed int64  `json:"completed"`
	Rejected  int64  `json:"rejected"`
	Running   bool   `json:"running"`
	Closed    bool   `json:"closed"`
}

// StatsProvider is implemented by executors that can report ExecutorStats.
type StatsProvider interface {
	Stats() ExecutorStats
}
