package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/alexisbeaulieu97/nodeflow/internal/engine"
)

// SummaryData aggregates counts for rendering summaries.
type SummaryData struct {
	Total     int
	Completed int
	Finished  bool
	Cancelled bool
	Outcomes  map[engine.Outcome]int
	Rows      int
	Duration  time.Duration
	Err       error
}

// Summary renders a textual run summary.
type Summary struct {
	data SummaryData
}

// NewSummary creates a new Summary component.
func NewSummary(data SummaryData) Summary {
	return Summary{data: data}
}

// View renders the summary.
func (s Summary) View() string {
	d := s.data
	var lines []string
	if d.Total > 0 {
		lines = append(lines, fmt.Sprintf("Nodes: %d/%d completed", d.Completed, d.Total))
	}

	switch {
	case d.Cancelled:
		lines = append(lines, "Run cancelled")
	case d.Finished && d.Err != nil:
		lines = append(lines, fmt.Sprintf("Run failed: %v", d.Err))
	case d.Finished && d.Total > 0:
		if d.Outcomes[engine.OutcomeExecuted] == d.Total {
			lines = append(lines, "Run finished successfully")
		} else {
			lines = append(lines, fmt.Sprintf("Run finished with %d failed, %d skipped, %d canceled",
				d.Outcomes[engine.OutcomeFailed], d.Outcomes[engine.OutcomeSkipped], d.Outcomes[engine.OutcomeCanceled]))
		}
	}

	if d.Finished {
		if d.Rows > 0 {
			lines = append(lines, fmt.Sprintf("Rows produced: %s", humanize.Comma(int64(d.Rows))))
		}
		if d.Duration > 0 {
			lines = append(lines, fmt.Sprintf("Elapsed: %s", d.Duration.Truncate(time.Millisecond)))
		}
	}

	return strings.Join(lines, "\n")
}
