package node

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/alexisbeaulieu97/nodeflow/internal/persist"
	"github.com/alexisbeaulieu97/nodeflow/internal/port"
	"github.com/alexisbeaulieu97/nodeflow/internal/progress"
	"github.com/alexisbeaulieu97/nodeflow/internal/settings"
	"github.com/alexisbeaulieu97/nodeflow/internal/table"
	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

// Load installs content saved below dir in place of an execution: the node's
// settings and the spec and object of every out-port. Loaded tables are owned
// by the node and registered in its repositories. On success the node is
// executed and downstream nodes are notified as if it had run. On failure
// nothing is installed.
func (n *Node) Load(p persist.Persistor, dir string, mon progress.Monitor) error {
	saved, err := p.LoadSettings(dir)
	if err != nil {
		return fmt.Errorf("failed to load settings of %s: %w", n.id, err)
	}
	specs, objects, err := n.loadPorts(p, dir, mon)
	if err != nil {
		return err
	}

	n.mu.Lock()
	if err := n.installSettingsLocked(saved); err != nil {
		n.mu.Unlock()
		discardLoaded(objects)
		return err
	}
	n.resetIfExecutedLocked()
	for _, obj := range objects {
		t, ok := obj.(*table.BufferedDataTable)
		if !ok {
			continue
		}
		if err := t.SetOwner(n); err != nil {
			n.mu.Unlock()
			discardLoaded(objects)
			return err
		}
		n.produced = append(n.produced, t)
	}
	n.setConfigureError(nil)
	n.setState(Executed, "")
	n.mu.Unlock()

	for i, out := range n.out {
		_ = out.SetObject(objects[i])
		if t, ok := objects[i].(*table.BufferedDataTable); ok {
			_ = out.SetSpec(t.DataSpec())
		} else {
			_ = out.SetSpec(specs[i])
		}
	}
	n.log.WithFields(map[string]any{"dir": dir, "ports": len(n.out)}).Info("node outputs loaded")
	n.emitState()
	return nil
}

func (n *Node) installSettingsLocked(s *settings.Tree) error {
	sm, ok := n.model.(SettingsModel)
	if !ok {
		if s.Len() > 0 {
			return nferrors.NewInvalidSettingsError(n.id, "node type "+n.typeName+" has no settings", nil)
		}
		return nil
	}
	return n.applySettingsLocked(sm, s)
}

// loadPorts reads every out-port's spec and object. A port without a saved
// spec gets none; a port without a saved object fails the load.
func (n *Node) loadPorts(p persist.Persistor, dir string, mon progress.Monitor) ([]port.Spec, []port.Object, error) {
	specs := make([]port.Spec, len(n.out))
	objects := make([]port.Object, len(n.out))
	for i := range n.out {
		portDir := persist.PortDir(dir, i)
		spec, err := p.LoadSpec(portDir)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			discardLoaded(objects)
			return nil, nil, fmt.Errorf("failed to load spec of %s:%d: %w", n.id, i, err)
		default:
			specs[i] = spec
		}

		if !p.HasObject(portDir) {
			discardLoaded(objects)
			return nil, nil, nferrors.IllegalStatef("no saved data for %s:%d in %s", n.id, i, portDir)
		}
		var portMon progress.Monitor
		if mon != nil {
			portMon = mon.SubProgress(1 / float64(len(n.out)))
		}
		obj, err := p.LoadObject(portDir, portMon, n.containerOptions(nil)...)
		if err != nil {
			discardLoaded(objects)
			return nil, nil, fmt.Errorf("failed to load data of %s:%d: %w", n.id, i, err)
		}
		objects[i] = obj
	}

	if err := n.checkOutSpecs(specs); err != nil {
		discardLoaded(objects)
		return nil, nil, err
	}
	if err := n.checkOutputs(objects); err != nil {
		discardLoaded(objects)
		return nil, nil, err
	}
	return specs, objects, nil
}

func discardLoaded(objects []port.Object) {
	for _, obj := range objects {
		if t, ok := obj.(*table.BufferedDataTable); ok {
			t.Clear()
		}
	}
}
