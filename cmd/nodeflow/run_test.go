package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

func TestRunCommandExecutesWorkflow(t *testing.T) {
	t.Parallel()

	cfg, out := writeWorkflow(t, "5")
	saveDir := filepath.Join(t.TempDir(), "saved")

	output, err := executeCommand(newRootCmd(), "run", "-c", cfg, "--no-tui", "--save-dir", saveDir)
	require.NoError(t, err)
	require.Contains(t, output, "scores")
	require.Contains(t, output, "4/4")
	require.Contains(t, output, "Run finished successfully")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "name\nalice\ncarol\n", string(data))

	require.DirExists(t, filepath.Join(saveDir, "names", "port_0"))
	require.DirExists(t, filepath.Join(saveDir, "write"))
}

func TestRunCommandReusesSavedOutputs(t *testing.T) {
	t.Parallel()

	cfg, out := writeWorkflow(t, "5")
	saveDir := filepath.Join(t.TempDir(), "saved")
	_, err := executeCommand(newRootCmd(), "run", "-c", cfg, "--no-tui", "--save-dir", saveDir)
	require.NoError(t, err)

	require.NoError(t, os.Remove(out))
	in := filepath.Join(filepath.Dir(cfg), "people.csv")
	require.NoError(t, os.WriteFile(in, []byte("id,name,score\n4,dave,8\n"), 0o644))

	output, err := executeCommand(newRootCmd(), "run", "-c", cfg, "--no-tui", "--load-dir", saveDir)
	require.NoError(t, err)
	require.Contains(t, output, "Run finished successfully")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "name\nalice\ncarol\n", string(data))
}

func TestRunCommandReportsFailure(t *testing.T) {
	t.Parallel()

	cfg, out := writeWorkflow(t, "5")
	require.NoError(t, os.WriteFile(out, []byte("taken\n"), 0o644))

	output, err := executeCommand(newRootCmd(), "run", "-c", cfg, "--no-tui")
	var execErr *nferrors.ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, "write", execErr.NodeID)
	require.Contains(t, output, "Run failed")
	require.Contains(t, output, "overwrite is off")
}

func TestRunCommandValidatesConfigFile(t *testing.T) {
	t.Parallel()

	_, err := executeCommand(newRootCmd(), "run", "--config", "/path/does/not/exist")
	require.ErrorContains(t, err, "does not exist")

	_, err = executeCommand(newRootCmd(), "run")
	require.ErrorContains(t, err, "config")
}

func TestRunCommandRejectsBadWorkflow(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"1.0\"\nname: bad\nnodes:\n  - id: x\n    type: teleporter\n"), 0o644))

	_, err := executeCommand(newRootCmd(), "run", "-c", path, "--no-tui")
	require.ErrorContains(t, err, "Failed to load workflow")
}

func TestRunCommandServesStatus(t *testing.T) {
	t.Parallel()

	cfg, _ := writeWorkflow(t, "5")
	_, err := executeCommand(newRootCmd(), "run", "-c", cfg, "--no-tui", "--metrics-addr", "127.0.0.1:0")
	require.NoError(t, err)
}
