package indexer

import "sync"

// ProgressSink receives bulk reindex progress. Implementations must be safe
// for concurrent use; patients are reindexed by a worker pool.
type ProgressSink interface {
	Started(totalPatients int)
	PatientDone(patientID int64, err error)
	Finished(indexed, failed int, canceled bool)
}

// JobStatus is a point-in-time snapshot of a bulk reindex run.
type JobStatus struct {
	Running  bool `json:"running"`
	Total    int  `json:"total"`
	Indexed  int  `json:"indexed"`
	Failed   int  `json:"failed"`
	Canceled bool `json:"canceled"`
	// FailedPatients lists patients whose reindex failed during this run.
	FailedPatients []int64 `json:"failed_patients,omitempty"`
}

// JobTracker is a ProgressSink callers can poll. The server exposes its
// snapshot on the reindex status endpoint.
type JobTracker struct {
	mu     sync.Mutex
	status JobStatus
}

// NewJobTracker returns an empty tracker.
func NewJobTracker() *JobTracker { return &JobTracker{} }

func (t *JobTracker) Started(totalPatients int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = JobStatus{Running: true, Total: totalPatients}
}

func (t *JobTracker) PatientDone(patientID int64, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.status.Failed++
		t.status.FailedPatients = append(t.status.FailedPatients, patientID)
		return
	}
	t.status.Indexed++
}

func (t *JobTracker) Finished(indexed, failed int, canceled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Running = false
	t.status.Indexed = indexed
	t.status.Failed = failed
	t.status.Canceled = canceled
}

// Snapshot returns a copy of the current status.
func (t *JobTracker) Snapshot() JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.status
	out.FailedPatients = append([]int64(nil), t.status.FailedPatients...)
	return out
}
