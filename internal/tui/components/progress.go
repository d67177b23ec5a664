package components

import (
	"fmt"
	"math"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// Progress renders overall workflow completion.
type Progress struct {
	bar   progress.Model
	total int
}

// NewProgress creates a progress component for the given number of nodes.
func NewProgress(total int) Progress {
	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 30
	return Progress{bar: bar, total: total}
}

// View renders the bar for the provided completion count.
func (p Progress) View(completed int) string {
	ratio := 0.0
	if p.total > 0 {
		ratio = math.Min(1.0, float64(completed)/float64(p.total))
	}
	label := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%d/%d", completed, p.total))
	return lipgloss.JoinHorizontal(lipgloss.Left, label, " ", p.bar.ViewAs(ratio))
}

// NodeBar renders the progress of a single executing node.
func NodeBar(ratio float64, width int) string {
	bar := progress.New(progress.WithSolidFill("39"), progress.WithoutPercentage())
	bar.Width = width
	ratio = math.Max(0, math.Min(1, ratio))
	return fmt.Sprintf("%s %3.0f%%", bar.ViewAs(ratio), ratio*100)
}
