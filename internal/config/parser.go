package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// ParseWorkflow loads a workflow document from disk and validates it
// against the known node types.
func ParseWorkflow(path string, types TypeSet) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nferrors.NewParseError(path, 0, err)
	}
	return ParseBytes(path, data, types)
}

// ParseBytes is ParseWorkflow for an in-memory document; name is used in
// error messages.
func ParseBytes(name string, data []byte, types TypeSet) (*Workflow, error) {
	var wf Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, nferrors.NewParseError(name, extractLine(err), err)
	}

	if err := ValidateWorkflow(&wf, types); err != nil {
		return nil, err
	}

	return &wf, nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	_, scanErr := fmt.Sscanf(matches[1], "%d", &line)
	if scanErr != nil {
		return 0
	}

	return line
}
