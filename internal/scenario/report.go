package scenario

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	rerrors "github.com/vango-dev/reactor/internal/errors"
)

// Write prints a human-readable summary, with every failure in full.
func (r *Report) Write(w io.Writer) {
	status := "PASS"
	if !r.Passed() {
		status = "FAIL"
	}
	fmt.Fprintf(w, "%s  %s  (%d steps, %s)\n", status, r.Scenario, r.Steps, r.Duration.Round(time.Microsecond))
	for _, f := range r.Failures {
		rerrors.Fprint(w, f)
	}
}

type jsonReport struct {
	RunID    string                  `json:"runId"`
	Scenario string                  `json:"scenario"`
	File     string                  `json:"file,omitempty"`
	Started  time.Time               `json:"started"`
	Duration string                  `json:"duration"`
	Steps    int                     `json:"steps"`
	Passed   bool                    `json:"passed"`
	Fired    map[string]int          `json:"fired"`
	Failures []*rerrors.ReactorError `json:"failures,omitempty"`
	JobsRun  uint64                  `json:"jobsRun"`
}

// MarshalJSON encodes the report for machine consumption.
func (r *Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonReport{
		RunID:    r.RunID,
		Scenario: r.Scenario,
		File:     r.File,
		Started:  r.Started,
		Duration: r.Duration.String(),
		Steps:    r.Steps,
		Passed:   r.Passed(),
		Fired:    r.Fired,
		Failures: r.Failures,
		JobsRun:  r.Queue.JobsRun,
	})
}
