package formatters

import (
	"bytes"
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/bluerov-ops/rovprep/internal/bootstrap"
)

// textFormatter renders one line per step, aligned for a terminal.
func textFormatter(ctx context.Context, r bootstrap.Results) ([]byte, error) {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	for _, s := range r.Steps {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Status, s.Name, s.Elapsed.Round(time.Millisecond), s.Message)
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("%w with formatter %s: %s", ErrFormattingResults, "text", err)
	}

	outcome := "completed"
	if !r.Completed {
		outcome = "stopped"
	}
	fmt.Fprintf(&buf, "\nProvisioning %s with %d warning(s).\n", outcome, len(r.Warnings()))
	return buf.Bytes(), nil
}
