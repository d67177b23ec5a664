package main

import (
	"github.com/alexisbeaulieu97/nodeflow/internal/config"
	"github.com/alexisbeaulieu97/nodeflow/internal/engine"
	"github.com/alexisbeaulieu97/nodeflow/internal/logger"
	"github.com/alexisbeaulieu97/nodeflow/internal/nodes"
)

// loadWorkflow parses and builds the workflow at path with the built-in
// node types. The caller owns the returned workflow and must Close it.
func loadWorkflow(path string, log *logger.Logger, opts engine.Options) (*engine.Workflow, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, err
	}

	reg := nodes.NewRegistry()
	wf, err := config.ParseWorkflow(path, reg)
	if err != nil {
		return nil, newCommandError("load workflow", path, err, "Fix the reported field and try again.")
	}

	opts.Registry = reg
	opts.Logger = log
	w, err := engine.Build(wf, opts)
	if err != nil {
		return nil, newCommandError("build workflow", wf.Name, err, "Check node settings and connections.")
	}
	return w, nil
}
