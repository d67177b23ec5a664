package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/nodeflow/internal/config"
	"github.com/alexisbeaulieu97/nodeflow/internal/metrics"
	"github.com/alexisbeaulieu97/nodeflow/internal/node"
	"github.com/alexisbeaulieu97/nodeflow/internal/nodes"
	"github.com/alexisbeaulieu97/nodeflow/internal/persist"
	"github.com/alexisbeaulieu97/nodeflow/internal/port"
	"github.com/alexisbeaulieu97/nodeflow/internal/progress"
	"github.com/alexisbeaulieu97/nodeflow/internal/table"
	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

type passModel struct {
	execute func(exec *node.ExecutionContext, in []port.Object) ([]port.Object, error)
}

func (m *passModel) Configure(_ context.Context, in []port.Spec) ([]port.Spec, error) {
	if len(in) == 0 {
		return []port.Spec{table.MustSpec(table.Col("n", table.IntColumn))}, nil
	}
	return in, nil
}

func (m *passModel) Execute(exec *node.ExecutionContext, in []port.Object) ([]port.Object, error) {
	return m.execute(exec, in)
}

func (m *passModel) Reset() {}

func failingDesc() node.Descriptor {
	return node.Descriptor{
		Name:     "fail",
		Version:  "1.0.0",
		InPorts:  []*port.Type{table.PortType},
		OutPorts: []*port.Type{table.PortType},
		Factory: func() node.Model {
			return &passModel{execute: func(*node.ExecutionContext, []port.Object) ([]port.Object, error) {
				return nil, errors.New("boom")
			}}
		},
	}
}

// blockingDesc describes a source that runs until canceled, signaling started
// once it is executing.
func blockingDesc(started chan<- struct{}) node.Descriptor {
	var once sync.Once
	return node.Descriptor{
		Name:     "block",
		Version:  "1.0.0",
		OutPorts: []*port.Type{table.PortType},
		Factory: func() node.Model {
			return &passModel{execute: func(exec *node.ExecutionContext, _ []port.Object) ([]port.Object, error) {
				once.Do(func() { close(started) })
				for {
					if err := exec.CheckCanceled(); err != nil {
						return nil, err
					}
					exec.SetMessage("waiting")
					time.Sleep(5 * time.Millisecond)
				}
			}}
		},
	}
}

func testRegistry(extra ...node.Descriptor) *node.Registry {
	reg := nodes.NewRegistry()
	for _, d := range extra {
		reg.MustRegister(d)
	}
	return reg
}

func build(t *testing.T, doc string, reg *node.Registry, opts Options) *Workflow {
	t.Helper()
	wf, err := config.ParseBytes("test.yaml", []byte(doc), reg)
	require.NoError(t, err)
	opts.Registry = reg
	w, err := Build(wf, opts)
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

const peopleNode = `
  - id: people
    type: table_source
    settings:
      columns: ["id:int", name, "score:double"]
      rows: ["1, alice, 9.5", "2, bob, 3", "3, carol, 7.25"]
`

func pipelineDoc(out string) string {
	return `version: "1.0"
name: pipeline
settings:
  parallel: 2
  progress_interval_ms: 10
nodes:` + peopleNode + fmt.Sprintf(`
  - id: good
    type: row_filter
    settings: {column: score, operator: ge, value: 5}
  - id: names
    type: column_filter
    settings: {include: [name]}
  - id: write
    type: csv_writer
    settings: {path: %q}
connections:
  - {from: people, to: good}
  - {from: good, to: names}
  - {from: "names:0", to: "write:0"}
`, out)
}

func TestRunExecutesPipeline(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "names.csv")
	rec := metrics.New()

	var mu sync.Mutex
	seen := map[string]bool{}
	states := map[string][]node.State{}
	w := build(t, pipelineDoc(out), testRegistry(), Options{
		Metrics: rec,
		OnProgress: func(id string, e progress.Event) {
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		},
		OnState: func(e node.StateEvent) {
			mu.Lock()
			states[e.NodeID] = append(states[e.NodeID], e.State)
			mu.Unlock()
		},
	})
	require.NoError(t, w.Configure(context.Background()))

	report, err := w.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Succeeded())
	require.NotEmpty(t, report.ExecutionID)
	require.Len(t, report.Results, 4)

	res, ok := report.Result("good")
	require.True(t, ok)
	require.Equal(t, 2, res.Rows)
	require.Equal(t, node.Executed, res.State)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "name\nalice\ncarol\n", string(data))

	mu.Lock()
	require.True(t, seen["people"])
	require.Contains(t, states["write"], node.Executing)
	require.Equal(t, node.Executed, states["write"][len(states["write"])-1])
	mu.Unlock()

	series, err := testutil.GatherAndCount(rec.Registry(), "nodeflow_node_executions_total")
	require.NoError(t, err)
	require.Equal(t, 4, series)
	require.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(`
# HELP nodeflow_workflow_runs_total Workflow runs by result
# TYPE nodeflow_workflow_runs_total counter
nodeflow_workflow_runs_total{result="succeeded"} 1
`), "nodeflow_workflow_runs_total"))

	again, err := w.Run(context.Background())
	require.NoError(t, err)
	require.True(t, again.Succeeded())
	require.NotEqual(t, report.ExecutionID, again.ExecutionID)
}

func TestRunStopsAfterFailure(t *testing.T) {
	t.Parallel()

	doc := `version: "1.0"
name: failing
nodes:` + peopleNode + `
  - id: broken
    type: fail
  - id: names
    type: column_filter
    settings: {include: [name]}
connections:
  - {from: people, to: broken}
  - {from: broken, to: names}
`
	w := build(t, doc, testRegistry(failingDesc()), Options{})
	require.NoError(t, w.Configure(context.Background()))

	report, err := w.Run(context.Background())
	var ee *nferrors.ExecutionError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, "broken", ee.NodeID)

	res, _ := report.Result("broken")
	require.Equal(t, OutcomeFailed, res.Outcome)
	require.Equal(t, node.Error, res.State)
	require.Equal(t, "boom", res.Message)

	res, _ = report.Result("names")
	require.Equal(t, OutcomeCanceled, res.Outcome)
	require.Equal(t, node.Configured, res.State)
}

func TestContinueOnErrorRunsIndependentBranches(t *testing.T) {
	t.Parallel()

	doc := `version: "1.0"
name: branches
settings:
  continue_on_error: true
nodes:` + peopleNode + `
  - id: broken
    type: fail
  - id: after
    type: column_filter
    settings: {include: [name]}
  - id: good
    type: row_filter
    settings: {column: id, operator: gt, value: 1}
connections:
  - {from: people, to: broken}
  - {from: broken, to: after}
  - {from: people, to: good}
`
	w := build(t, doc, testRegistry(failingDesc()), Options{})
	require.NoError(t, w.Configure(context.Background()))

	report, err := w.Run(context.Background())
	var ee *nferrors.ExecutionError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, "broken", ee.NodeID)
	require.False(t, report.Succeeded())

	good, _ := report.Result("good")
	require.Equal(t, OutcomeExecuted, good.Outcome)
	require.Equal(t, 2, good.Rows)

	after, _ := report.Result("after")
	require.Equal(t, OutcomeSkipped, after.Outcome)
	require.Contains(t, after.Message, "has no data")
}

func TestRunIsCanceledByContext(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	doc := `version: "1.0"
name: blocking
nodes:
  - id: wait
    type: block
  - id: copy
    type: column_filter
    settings: {include: [n]}
connections:
  - {from: wait, to: copy}
`
	w := build(t, doc, testRegistry(blockingDesc(started)), Options{})
	require.NoError(t, w.Configure(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	report, err := w.Run(ctx)
	require.ErrorIs(t, err, nferrors.ErrCanceled)

	res, _ := report.Result("wait")
	require.Equal(t, OutcomeCanceled, res.Outcome)
	require.Equal(t, node.Configured, res.State)

	res, _ = report.Result("copy")
	require.Equal(t, OutcomeCanceled, res.Outcome)
	require.Equal(t, "not started", res.Message)
}

func TestConfigureReportsBrokenNodesAndRunSkipsThem(t *testing.T) {
	t.Parallel()

	doc := `version: "1.0"
name: misconfigured
nodes:` + peopleNode + `
  - id: filter
    type: row_filter
    settings: {column: age, operator: gt, value: 1}
  - id: names
    type: column_filter
    settings: {include: [name]}
connections:
  - {from: people, to: filter}
  - {from: filter, to: names}
`
	rec := metrics.New()
	w := build(t, doc, testRegistry(), Options{Metrics: rec})

	err := w.Configure(context.Background())
	var ise *nferrors.InvalidSettingsError
	require.ErrorAs(t, err, &ise)
	require.Equal(t, "filter", ise.NodeID)
	require.ErrorIs(t, err, nferrors.ErrNotConfigurable)

	report, err := w.Run(context.Background())
	require.NoError(t, err)
	require.False(t, report.Succeeded())

	res, _ := report.Result("filter")
	require.Equal(t, OutcomeSkipped, res.Outcome)
	require.Contains(t, res.Message, `column "age" not in input`)

	require.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(`
# HELP nodeflow_workflow_runs_total Workflow runs by result
# TYPE nodeflow_workflow_runs_total counter
nodeflow_workflow_runs_total{result="incomplete"} 1
`), "nodeflow_workflow_runs_total"))
}

type countingModel struct {
	passModel
	calls *atomic.Int64
}

func (m *countingModel) Configure(ctx context.Context, in []port.Spec) ([]port.Spec, error) {
	m.calls.Add(1)
	return m.passModel.Configure(ctx, in)
}

func TestConfigureVisitsEachNodeOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	reg := testRegistry(node.Descriptor{
		Name:     "count",
		Version:  "1.0.0",
		InPorts:  []*port.Type{table.PortType},
		OutPorts: []*port.Type{table.PortType},
		Factory:  func() node.Model { return &countingModel{calls: &calls} },
	})
	doc := `version: "1.0"
name: chain
nodes:` + peopleNode + `
  - {id: c1, type: count}
  - {id: c2, type: count}
  - {id: c3, type: count}
connections:
  - {from: people, to: c1}
  - {from: c1, to: c2}
  - {from: c2, to: c3}
`
	w := build(t, doc, reg, Options{})
	calls.Store(0)

	require.NoError(t, w.Configure(context.Background()))
	require.EqualValues(t, 3, calls.Load())
	for _, n := range w.Nodes() {
		require.Equal(t, node.Configured, n.State(), n.ID())
	}
}

func TestStatusAndSaveOutputs(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "names.csv")
	w := build(t, pipelineDoc(out), testRegistry(), Options{})
	require.NoError(t, w.Configure(context.Background()))

	st := w.Status()
	require.Equal(t, "pipeline", st.Workflow)
	require.Len(t, st.Nodes, 4)
	require.Equal(t, "people", st.Nodes[0].ID)
	require.Equal(t, node.Configured, st.Nodes[0].State)
	require.Equal(t, 3, st.Nodes[3].Level)

	_, err := w.Run(context.Background())
	require.NoError(t, err)

	st = w.Status()
	require.False(t, st.Running)
	require.Positive(t, st.LiveTables)
	for _, ns := range st.Nodes {
		require.Equal(t, node.Executed, ns.State, ns.ID)
	}
	require.NotNil(t, st.Nodes[0].Progress)
	require.InDelta(t, 1.0, *st.Nodes[0].Progress, 1e-9)
	require.Equal(t, []string{"{name:string}"}, st.Nodes[2].Outputs)

	dir := t.TempDir()
	p := persist.NewDirPersistor(nil)
	require.NoError(t, w.SaveOutputs(dir, p, nil))

	obj, err := p.LoadObject(filepath.Join(dir, "good", "port_0"), nil)
	require.NoError(t, err)
	require.Equal(t, 2, obj.(table.Table).Size())

	s, err := p.LoadSettings(filepath.Join(dir, "good"))
	require.NoError(t, err)
	op, err := s.String("operator")
	require.NoError(t, err)
	require.Equal(t, "ge", op)

	_, err = os.Stat(filepath.Join(dir, "write", persist.SettingsFile))
	require.NoError(t, err)

	w.Close()
	require.Zero(t, w.Repository().Len())
}

func TestLoadOutputsResumesFromSavedNodes(t *testing.T) {
	t.Parallel()

	first := filepath.Join(t.TempDir(), "names.csv")
	w := build(t, pipelineDoc(first), testRegistry(), Options{})
	require.NoError(t, w.Configure(context.Background()))
	_, err := w.Run(context.Background())
	require.NoError(t, err)

	dir := t.TempDir()
	p := persist.NewDirPersistor(nil)
	require.NoError(t, w.SaveOutputs(dir, p, nil))
	w.Close()

	second := filepath.Join(t.TempDir(), "names.csv")
	resumed := build(t, pipelineDoc(second), testRegistry(), Options{})
	require.NoError(t, resumed.Configure(context.Background()))

	loaded, err := resumed.LoadOutputs(dir, p, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"people", "good", "names"}, loaded)

	good, _ := resumed.Node("good")
	require.Equal(t, node.Executed, good.State())
	out, err := good.OutPort(0)
	require.NoError(t, err)
	tbl := out.Object().(*table.BufferedDataTable)
	require.Equal(t, 2, tbl.Size())
	require.Same(t, good, tbl.Owner())
	_, registered := resumed.Repository().Get(tbl.BufferID())
	require.True(t, registered)

	write, _ := resumed.Node("write")
	require.Equal(t, node.Configured, write.State())

	report, err := resumed.Run(context.Background())
	require.NoError(t, err)
	require.True(t, report.Succeeded())

	want, err := os.ReadFile(first)
	require.NoError(t, err)
	got, err := os.ReadFile(second)
	require.NoError(t, err)
	require.Equal(t, string(want), string(got))
}

func TestLoadOutputsSkipsUnsavedNodes(t *testing.T) {
	t.Parallel()

	w := build(t, pipelineDoc(filepath.Join(t.TempDir(), "names.csv")), testRegistry(), Options{})
	require.NoError(t, w.Configure(context.Background()))

	loaded, err := w.LoadOutputs(t.TempDir(), persist.NewDirPersistor(nil), nil)
	require.NoError(t, err)
	require.Empty(t, loaded)
	for _, n := range w.Nodes() {
		require.Equal(t, node.Configured, n.State(), n.ID())
	}
}

func TestBuildFailsOnRejectedConnection(t *testing.T) {
	t.Parallel()

	reg := testRegistry(node.Descriptor{
		Name:    "sink",
		Version: "1.0.0",
		InPorts: []*port.Type{port.TypeOf[otherSpec, otherObject]()},
		Factory: func() node.Model { return &passModel{} },
	})
	doc := `version: "1.0"
name: mismatch
nodes:` + peopleNode + `
  - id: sink
    type: sink
connections:
  - {from: people, to: sink}
`
	wf, err := config.ParseBytes("test.yaml", []byte(doc), reg)
	require.NoError(t, err)

	_, err = Build(wf, Options{Registry: reg})
	require.ErrorIs(t, err, nferrors.ErrIllegalConnection)

	_, err = Build(wf, Options{})
	require.Error(t, err)
}

type otherSpec struct{}

func (otherSpec) Summary() string { return "other" }

type otherObject struct{}

func (otherObject) Summary() string { return "other" }
