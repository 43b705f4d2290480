package bootstrap

import "time"

// Status is the outcome of a single step.
type Status string

const (
	StatusDone    Status = "done"
	StatusSkipped Status = "skipped"
	StatusWarning Status = "warning"
	StatusFailed  Status = "failed"
)

type StepResult struct {
	Name    string
	Status  Status
	Message string
	Elapsed time.Duration
}

// Results is the record of one run, in step order. Steps after a fatal
// failure are absent.
type Results struct {
	Started   time.Time
	Steps     []StepResult
	Completed bool
}

// Warnings returns the steps that finished with a warning.
func (r Results) Warnings() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Status == StatusWarning {
			out = append(out, s)
		}
	}
	return out
}

// Step returns the result for name, if the step ran.
func (r Results) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// Probed reports whether the run got past the connectivity probe.
func (r Results) Probed() bool {
	s, ok := r.Step(StepProbe)
	return ok && s.Status == StatusDone
}

func (r Results) Elapsed() time.Duration {
	var d time.Duration
	for _, s := range r.Steps {
		d += s.Elapsed
	}
	return d
}
