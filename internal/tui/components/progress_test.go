package components

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProgressView(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		total     int
		completed int
		label     string
	}{
		{name: "empty workflow", total: 0, completed: 0, label: "0/0"},
		{name: "partial", total: 4, completed: 1, label: "1/4"},
		{name: "complete", total: 4, completed: 4, label: "4/4"},
		{name: "overflow keeps the count", total: 2, completed: 3, label: "3/2"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			view := NewProgress(tc.total).View(tc.completed)
			require.Contains(t, view, tc.label)
			require.Greater(t, len(strings.TrimSpace(view)), len(tc.label))
		})
	}
}

func TestNodeBar(t *testing.T) {
	t.Parallel()

	require.Contains(t, NodeBar(0.5, 10), " 50%")
	require.Contains(t, NodeBar(1.7, 10), "100%")
	require.Contains(t, NodeBar(-1, 10), "  0%")
}
