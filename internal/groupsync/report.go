package groupsync

import "time"

type Outcome string

const (
	OutcomeSynced        Outcome = "synced"
	OutcomeFailed        Outcome = "failed"
	OutcomeAlreadySynced Outcome = "already_synced"
)

// Result is the outcome of syncing one tenant.
type Result struct {
	TenantID   string  `json:"tenant_id"`
	TenantName string  `json:"tenant_name"`
	Outcome    Outcome `json:"outcome"`
	Group      string  `json:"wazuh_group,omitempty"`
	Existed    bool    `json:"existed,omitempty"`
	Error      string  `json:"error,omitempty"`
	Err        error   `json:"-"`
}

// Failure is one entry of Report.Failures.
type Failure struct {
	TenantID   string `json:"tenant_id"`
	TenantName string `json:"tenant_name"`
	Error      string `json:"error"`
}

// Report summarizes a SyncAll run. Failures and Results follow store order.
type Report struct {
	RunID      string    `json:"run_id"`
	Total      int       `json:"total"`
	Synced     int       `json:"synced"`
	Failed     int       `json:"failed"`
	Failures   []Failure `json:"errors"`
	Results    []Result  `json:"results"`
	Aborted    bool      `json:"aborted,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

func newReport(runID string, started time.Time) Report {
	return Report{RunID: runID, StartedAt: started, Failures: []Failure{}, Results: []Result{}}
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case OutcomeSynced:
		r.Synced++
	case OutcomeFailed:
		r.Failed++
		r.Failures = append(r.Failures, Failure{TenantID: res.TenantID, TenantName: res.TenantName, Error: res.Error})
	}
}
