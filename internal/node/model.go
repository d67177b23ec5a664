// Package node implements the node execution contract: the configure,
// execute and reset lifecycle around a user-supplied Model.
package node

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/alexisbeaulieu97/nodeflow/internal/port"
	"github.com/alexisbeaulieu97/nodeflow/internal/settings"
)

// Model is implemented by node authors. The framework guarantees that calls
// on one model are never concurrent.
type Model interface {
	// Configure derives output specs from input specs without touching data.
	Configure(ctx context.Context, in []port.Spec) ([]port.Spec, error)
	// Execute produces one object per out-port.
	Execute(exec *ExecutionContext, in []port.Object) ([]port.Object, error)
	// Reset drops any internal state built during Execute.
	Reset()
}

// SettingsModel is implemented by models with user settings. Validate must
// not modify the model; Load is only called after Validate succeeded.
type SettingsModel interface {
	ValidateSettings(s *settings.Tree) error
	LoadSettings(s *settings.Tree) error
	SaveSettings(s *settings.Tree)
}

// WarningSource is implemented by models that report a warning after a
// successful execution.
type WarningSource interface {
	Warning() string
}

var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// Descriptor describes a node type.
type Descriptor struct {
	Name        string
	Version     string
	Description string
	InPorts     []*port.Type
	OutPorts    []*port.Type
	Factory     func() Model
}

// Validate ensures the descriptor is well-formed.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("node descriptor requires a non-empty Name")
	}
	if !versionPattern.MatchString(d.Version) {
		return fmt.Errorf("node type '%s' has invalid Version '%s' (expected format: X.Y.Z)", d.Name, d.Version)
	}
	if d.Factory == nil {
		return fmt.Errorf("node type '%s' has no Factory", d.Name)
	}
	for i, t := range d.InPorts {
		if t == nil {
			return fmt.Errorf("node type '%s' in-port %d has no type", d.Name, i)
		}
	}
	for i, t := range d.OutPorts {
		if t == nil {
			return fmt.Errorf("node type '%s' out-port %d has no type", d.Name, i)
		}
	}
	return nil
}
