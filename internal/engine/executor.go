package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alexisbeaulieu97/nodeflow/internal/metrics"
	"github.com/alexisbeaulieu97/nodeflow/internal/node"
	"github.com/alexisbeaulieu97/nodeflow/internal/progress"
	"github.com/alexisbeaulieu97/nodeflow/internal/table"
	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

// Outcome classifies what happened to a node during a run.
type Outcome string

const (
	OutcomeExecuted Outcome = metrics.OutcomeExecuted
	OutcomeFailed   Outcome = metrics.OutcomeFailed
	OutcomeCanceled Outcome = metrics.OutcomeCanceled
	OutcomeSkipped  Outcome = metrics.OutcomeSkipped
)

// NodeResult captures the outcome of a single node.
type NodeResult struct {
	NodeID   string
	Type     string
	Outcome  Outcome
	State    node.State
	Duration time.Duration
	Rows     int
	Message  string
	Warning  string
	Err      error
}

// Report summarizes one run.
type Report struct {
	ExecutionID string
	Started     time.Time
	Duration    time.Duration
	Results     []NodeResult
}

// Succeeded reports whether every node executed.
func (r *Report) Succeeded() bool {
	for _, res := range r.Results {
		if res.Outcome != OutcomeExecuted {
			return false
		}
	}
	return true
}

// Result returns the result for a node.
func (r *Report) Result(nodeID string) (NodeResult, bool) {
	for _, res := range r.Results {
		if res.NodeID == nodeID {
			return res, true
		}
	}
	return NodeResult{}, false
}

// Run executes every configured node level by level. Nodes of a level run
// concurrently, bounded by the workflow's parallel setting. The first failure
// cancels the remaining work unless continue_on_error is set. A node whose
// inputs did not execute is skipped.
func (w *Workflow) Run(ctx context.Context) (*Report, error) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil, nferrors.IllegalStatef("workflow %q is already running", w.name)
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	report := &Report{ExecutionID: uuid.NewString(), Started: time.Now()}
	log := w.log.With("execution_id", report.ExecutionID)
	log.Info("workflow run started")

	if timeout := w.settings.TimeoutDuration(); timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, timeout)
		defer cancelTimeout()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.notifier.Start()
	defer w.notifier.Stop()

	pool := make(chan struct{}, w.settings.Workers())
	results := make(map[string]NodeResult, len(w.nodes))
	var resultsMu sync.Mutex
	var firstErr error

	for _, level := range w.graph.Levels {
		if ctx.Err() != nil {
			break
		}

		var once sync.Once
		var wg sync.WaitGroup

		for _, id := range level {
			n, ok := w.nodes[id]
			if !ok {
				continue
			}

			wg.Add(1)
			go func(n *node.Node) {
				defer wg.Done()

				select {
				case pool <- struct{}{}:
				case <-ctx.Done():
					return
				}
				defer func() { <-pool }()

				res := w.runNode(ctx, n)
				resultsMu.Lock()
				results[n.ID()] = res
				resultsMu.Unlock()

				if res.Outcome == OutcomeFailed {
					once.Do(func() {
						resultsMu.Lock()
						if firstErr == nil {
							firstErr = res.Err
						}
						resultsMu.Unlock()
						if !w.settings.ContinueOnError {
							cancel()
						}
					})
				}
			}(n)
		}

		wg.Wait()
	}

	for _, id := range w.graph.Order() {
		n, ok := w.nodes[id]
		if !ok {
			continue
		}
		res, done := results[id]
		if !done {
			res = NodeResult{NodeID: id, Type: n.Type(), Outcome: OutcomeCanceled, State: n.State(), Message: "not started"}
			w.metrics.NodeAbandoned(n.Type())
		}
		report.Results = append(report.Results, res)
	}
	report.Duration = time.Since(report.Started)

	switch {
	case firstErr != nil:
		w.metrics.RunFinished("failed")
		log.Error(firstErr, "workflow run failed")
		return report, firstErr
	case ctx.Err() != nil && !report.Succeeded():
		w.metrics.RunFinished("canceled")
		log.Info("workflow run canceled")
		return report, nferrors.NewCanceledError(cancelMessage(ctx))
	default:
		result := "succeeded"
		if !report.Succeeded() {
			result = "incomplete"
		}
		w.metrics.RunFinished(result)
		log.WithFields(map[string]any{"result": result, "duration": report.Duration}).Info("workflow run finished")
		return report, nil
	}
}

func cancelMessage(ctx context.Context) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "workflow timed out"
	}
	return ""
}

func (w *Workflow) runNode(ctx context.Context, n *node.Node) NodeResult {
	res := NodeResult{NodeID: n.ID(), Type: n.Type()}

	if n.State() == node.Executed {
		res.Outcome, res.State, res.Rows = OutcomeExecuted, node.Executed, outputRows(n)
		return res
	}
	if reason := w.skipReason(n); reason != "" {
		res.Outcome, res.State, res.Message = OutcomeSkipped, n.State(), reason
		w.metrics.NodeSkipped(n.Type())
		w.log.WithFields(map[string]any{"node_id": n.ID(), "reason": reason}).Debug("node skipped")
		return res
	}

	id := n.ID()
	mon := progress.NewMonitor(
		progress.WithNotifier(w.notifier),
		progress.WithContext(ctx),
		progress.WithLogger(w.log),
		progress.WithListener(func(e progress.Event) { w.progressChanged(id, e) }),
	)

	w.metrics.NodeStarted()
	start := time.Now()
	err := n.Execute(ctx, mon)
	mon.Close()
	res.Duration = time.Since(start)
	res.State = n.State()
	res.Message = n.Message()
	res.Warning = n.Warning()

	switch {
	case err == nil:
		res.Outcome = OutcomeExecuted
		res.Rows = outputRows(n)
	case errors.Is(err, nferrors.ErrCanceled):
		res.Outcome = OutcomeCanceled
		res.Err = err
	default:
		res.Outcome = OutcomeFailed
		res.Err = err
	}
	w.metrics.NodeFinished(n.Type(), string(res.Outcome), res.Duration, res.Rows)
	return res
}

// skipReason explains why n cannot execute, or returns "" when it can.
func (w *Workflow) skipReason(n *node.Node) string {
	if n.State() != node.Configured {
		if msg := n.Message(); msg != "" {
			return fmt.Sprintf("node is %s: %s", n.State(), msg)
		}
		return fmt.Sprintf("node is %s", n.State())
	}
	for i := 0; i < n.NumInPorts(); i++ {
		in, err := n.InPort(i)
		if err != nil {
			return err.Error()
		}
		obj, err := in.Object()
		if err != nil {
			return err.Error()
		}
		if obj == nil {
			return fmt.Sprintf("%s has no data", in.Name())
		}
	}
	return ""
}

func outputRows(n *node.Node) int {
	rows := 0
	for i := 0; i < n.NumOutPorts(); i++ {
		out, err := n.OutPort(i)
		if err != nil {
			continue
		}
		if t, ok := out.Object().(table.Table); ok {
			rows += t.Size()
		}
	}
	return rows
}
