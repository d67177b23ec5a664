package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

func baseWorkflow() *Workflow {
	return &Workflow{
		Version: "1.0.0",
		Name:    "test",
		Nodes: []Node{
			{ID: "read", Type: "csv_reader"},
			{ID: "filter", Type: "row_filter"},
		},
		Connections: []Connection{{From: "read", To: "filter"}},
	}
}

func requireValidationField(t *testing.T, err error, field string) *nferrors.ValidationError {
	t.Helper()
	var ve *nferrors.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, field, ve.Field)
	return ve
}

func TestValidateWorkflowAcceptsValidDocument(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateWorkflow(baseWorkflow(), builtin))
	require.NoError(t, ValidateWorkflow(baseWorkflow(), nil))
}

func TestValidateWorkflowRejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(wf *Workflow)
		field  string
		text   string
	}{
		{
			name:   "unknown node type",
			mutate: func(wf *Workflow) { wf.Nodes[1].Type = "sorter" },
			field:  "nodes[1].type",
			text:   `unknown node type "sorter"`,
		},
		{
			name:   "duplicate node id",
			mutate: func(wf *Workflow) { wf.Nodes[1].ID = "read" },
			field:  "nodes[1].id",
			text:   "duplicate node id",
		},
		{
			name:   "invalid node id",
			mutate: func(wf *Workflow) { wf.Nodes[0].ID = "Read Node" },
			field:  "nodes[0].id",
		},
		{
			name:   "dangling connection source",
			mutate: func(wf *Workflow) { wf.Connections[0].From = "ghost" },
			field:  "connections[0].from",
			text:   `references unknown node "ghost"`,
		},
		{
			name:   "dangling connection target",
			mutate: func(wf *Workflow) { wf.Connections[0].To = "ghost:1" },
			field:  "connections[0].to",
		},
		{
			name:   "malformed port reference",
			mutate: func(wf *Workflow) { wf.Connections[0].To = "filter:x" },
			field:  "connections[0].to",
		},
		{
			name: "in-port fed twice",
			mutate: func(wf *Workflow) {
				wf.Nodes = append(wf.Nodes, Node{ID: "other", Type: "csv_reader"})
				wf.Connections = append(wf.Connections, Connection{From: "other", To: "filter:0"})
			},
			field: "connections[1].to",
			text:  "already fed",
		},
		{
			name: "cycle",
			mutate: func(wf *Workflow) {
				wf.Connections = append(wf.Connections, Connection{From: "filter", To: "read"})
			},
			field: "connections",
			text:  "dependency cycle detected",
		},
		{
			name:   "unknown memory policy",
			mutate: func(wf *Workflow) { wf.Nodes[0].MemoryPolicy = "ram" },
			field:  "nodes[0].memorypolicy",
		},
		{
			name:   "unknown spill backend",
			mutate: func(wf *Workflow) { wf.Settings.Spill.Backend = "redis" },
			field:  "settings.spill.backend",
		},
		{
			name:   "null setting",
			mutate: func(wf *Workflow) { wf.Nodes[0].Settings = map[string]any{"path": nil} },
			field:  "nodes[0].settings",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			wf := baseWorkflow()
			tc.mutate(wf)
			ve := requireValidationField(t, ValidateWorkflow(wf, builtin), tc.field)
			if tc.text != "" {
				require.Contains(t, ve.Error(), tc.text)
			}
		})
	}
}

func TestValidateWorkflowNil(t *testing.T) {
	t.Parallel()

	requireValidationField(t, ValidateWorkflow(nil, nil), "workflow")
}
