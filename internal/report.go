package internal

import "time"

// OutcomeStatus is the result of a single lifecycle attempt.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "Succeeded"
	OutcomeFailed    OutcomeStatus = "Failed"
)

// OutcomeRecord is the result of applying an action to one container app.
// Records are created once per app per run and never modified afterwards.
type OutcomeRecord struct {
	Resource string        `json:"resource"`
	Action   Action        `json:"action"`
	Status   OutcomeStatus `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// BatchReport aggregates the outcome records of one run.
type BatchReport struct {
	Action    Action          `json:"action"`
	Scope     string          `json:"scope"`
	Total     int             `json:"total"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Records   []OutcomeRecord `json:"records"`

	// Empty is set when discovery found nothing and no action was attempted.
	Empty bool `json:"empty"`
}

func (r *BatchReport) add(record OutcomeRecord) {
	r.Records = append(r.Records, record)
	r.Total++

	if record.Status == OutcomeSucceeded {
		r.Succeeded++
	} else {
		r.Failed++
	}
}

// Success reports whether the run as a whole succeeded. A run with at least
// one failure is a failed run, however many other apps succeeded.
func (r *BatchReport) Success() bool {
	return r.Failed == 0
}

// ExitCode maps the report onto the process exit status.
func (r *BatchReport) ExitCode() int {
	if r.Success() {
		return 0
	}
	return 1
}

// FailedResources returns the names of the apps whose attempt failed, in
// processing order.
func (r *BatchReport) FailedResources() (out []string) {
	for _, record := range r.Records {
		if record.Status == OutcomeFailed {
			out = append(out, record.Resource)
		}
	}
	return
}
