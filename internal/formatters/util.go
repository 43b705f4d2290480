package formatters

import (
	"time"

	"github.com/bluerov-ops/rovprep/internal/bootstrap"
	"github.com/bluerov-ops/rovprep/version"
)

// getResponse will extract the run's results and format it to fit the
// UserResponse definition in a way that can then be formatted.
func getResponse(r bootstrap.Results) UserResponse {
	steps := make([]stepExecutionInfo, 0, len(r.Steps))
	for _, s := range r.Steps {
		steps = append(steps, stepExecutionInfo{
			Name:        s.Name,
			Status:      string(s.Status),
			ElapsedTime: float64(s.Elapsed.Milliseconds()),
			Message:     s.Message,
		})
	}

	return UserResponse{
		Started:     r.Started.UTC().Format(time.RFC3339),
		Completed:   r.Completed,
		Warnings:    len(r.Warnings()),
		LibraryInfo: version.Version,
		Steps:       steps,
	}
}

// UserResponse is the standard user-facing response.
type UserResponse struct {
	Started     string                 `json:"started" xml:"started"`
	Completed   bool                   `json:"completed" xml:"completed"`
	Warnings    int                    `json:"warnings" xml:"warnings"`
	LibraryInfo version.VersionContext `json:"tool" xml:"tool"`
	Steps       []stepExecutionInfo    `json:"steps" xml:"steps>step"`
}

// stepExecutionInfo contains all possible output fields that a user might
// see for a step. Empty fields will be omitted.
type stepExecutionInfo struct {
	Name        string  `json:"name" xml:"name"`
	Status      string  `json:"status" xml:"status"`
	ElapsedTime float64 `json:"elapsed_time" xml:"elapsed_time"`
	Message     string  `json:"message,omitempty" xml:"message,omitempty"`
}
