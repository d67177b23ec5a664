package config

import (
	"fmt"
	"strings"

	"github.com/alexisbeaulieu97/nodeflow/internal/validation"
	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

// TypeSet reports which node types exist.
type TypeSet interface {
	Has(typeName string) bool
}

// ValidateWorkflow performs schema and cross-field validation on the
// document. When types is non-nil every node type must be known.
func ValidateWorkflow(wf *Workflow, types TypeSet) error {
	if wf == nil {
		return nferrors.NewValidationError("workflow", "workflow is nil", nil)
	}

	v := validation.Instance()
	if err := v.Struct(wf); err != nil {
		return validation.ToValidationError(err)
	}

	nodeIndex := make(map[string]int, len(wf.Nodes))
	for i, n := range wf.Nodes {
		if _, exists := nodeIndex[n.ID]; exists {
			return nferrors.NewValidationError(fieldForNode(i, "id"), fmt.Sprintf("duplicate node id %q", n.ID), nil)
		}
		if types != nil && !types.Has(n.Type) {
			return nferrors.NewValidationError(fieldForNode(i, "type"), fmt.Sprintf("unknown node type %q", n.Type), nil)
		}
		if _, err := n.SettingsTree(); err != nil {
			return nferrors.NewValidationError(fieldForNode(i, "settings"), err.Error(), err)
		}
		nodeIndex[n.ID] = i
	}

	targets := make(map[string]int, len(wf.Connections))
	for i, c := range wf.Connections {
		from, _, to, toPort := c.Endpoints()
		if _, ok := nodeIndex[from]; !ok {
			return nferrors.NewValidationError(fieldForConnection(i, "from"), fmt.Sprintf("references unknown node %q", from), nil)
		}
		if _, ok := nodeIndex[to]; !ok {
			return nferrors.NewValidationError(fieldForConnection(i, "to"), fmt.Sprintf("references unknown node %q", to), nil)
		}
		key := fmt.Sprintf("%s:%d", to, toPort)
		if prev, exists := targets[key]; exists {
			return nferrors.NewValidationError(fieldForConnection(i, "to"),
				fmt.Sprintf("in-port %s is already fed by connections[%d]", key, prev), nil)
		}
		targets[key] = i
	}

	if cycle := detectCycle(wf.Nodes, wf.Connections); len(cycle) > 0 {
		return nferrors.NewValidationError("connections", fmt.Sprintf("dependency cycle detected: %s", strings.Join(cycle, " -> ")), nil)
	}

	return nil
}

func fieldForNode(index int, field string) string {
	return fmt.Sprintf("nodes[%d].%s", index, field)
}

func fieldForConnection(index int, field string) string {
	return fmt.Sprintf("connections[%d].%s", index, field)
}
