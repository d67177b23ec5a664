package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func executeCommand(cmd *cobra.Command, args ...string) (string, error) {
	cmd.SetArgs(args)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	return buf.String(), err
}

// writeWorkflow lays out a csv input and a workflow that keeps the rows with
// a score of at least 5 and writes their names.
func writeWorkflow(t *testing.T, minScore string) (cfgPath, outPath string) {
	t.Helper()
	dir := t.TempDir()
	in := filepath.Join(dir, "people.csv")
	require.NoError(t, os.WriteFile(in, []byte("id,name,score\n1,alice,9.5\n2,bob,3\n3,carol,7\n"), 0o644))
	outPath = filepath.Join(dir, "names.csv")

	doc := fmt.Sprintf(`version: "1.0"
name: scores
settings:
  parallel: 2
nodes:
  - id: people
    type: csv_reader
    settings:
      path: %q
      columns: ["id:int", name, "score:double"]
  - id: good
    type: row_filter
    settings: {column: score, operator: ge, value: %s}
  - id: names
    type: column_filter
    settings: {include: [name]}
  - id: write
    type: csv_writer
    settings: {path: %q}
connections:
  - {from: people, to: good}
  - {from: good, to: names}
  - {from: names, to: write}
`, in, minScore, outPath)
	cfgPath = filepath.Join(dir, "workflow.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(doc), 0o644))
	return cfgPath, outPath
}

func TestValidateConfigPath(t *testing.T) {
	t.Parallel()

	t.Run("returns error when config path is empty", func(t *testing.T) {
		t.Parallel()
		require.ErrorContains(t, validateConfigPath("   "), "required")
	})

	t.Run("returns error when config file does not exist", func(t *testing.T) {
		t.Parallel()
		require.ErrorContains(t, validateConfigPath("/nonexistent/path/workflow.yaml"), "does not exist")
	})

	t.Run("returns error when config path is a directory", func(t *testing.T) {
		t.Parallel()
		require.ErrorContains(t, validateConfigPath(t.TempDir()), "directory")
	})

	t.Run("succeeds for a file", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "workflow.yaml")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		require.NoError(t, validateConfigPath(path))
	})
}

func TestIsTerminalRejectsBuffers(t *testing.T) {
	t.Parallel()

	require.False(t, isTerminal(&bytes.Buffer{}))
}
