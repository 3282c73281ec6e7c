package store

import "time"

// Run is one recorded bot run
type Run struct {
	ID         int64     `json:"id"`
	Site       string    `json:"site"`
	Account    string    `json:"account"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	State      string    `json:"state"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Files      int       `json:"files"` // screenshots written
}

// Duration is how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Capture is one task outcome within a run. Tasks that wrote several files
// have one row per file; failed tasks have an empty Path.
type Capture struct {
	RunID    int64         `json:"run_id"`
	Task     string        `json:"task"`
	Path     string        `json:"path,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}
