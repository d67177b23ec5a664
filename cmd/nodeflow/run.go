package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/nodeflow/internal/engine"
	"github.com/alexisbeaulieu97/nodeflow/internal/logger"
	"github.com/alexisbeaulieu97/nodeflow/internal/metrics"
	"github.com/alexisbeaulieu97/nodeflow/internal/persist"
	"github.com/alexisbeaulieu97/nodeflow/internal/progress"
	"github.com/alexisbeaulieu97/nodeflow/internal/server"
	"github.com/alexisbeaulieu97/nodeflow/internal/tui"
)

type runOptions struct {
	ConfigPath  string
	MetricsAddr string
	SaveDir     string
	LoadDir     string
	NoTUI       bool
	Interactive bool
}

func newRunCmd(root *rootFlags) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Configure and execute a workflow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Interactive = !opts.NoTUI && isTerminal(cmd.OutOrStdout())
			if err := validateConfigPath(opts.ConfigPath); err != nil {
				return err
			}
			log, err := root.newLogger(cmd.ErrOrStderr(), opts.Interactive)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runWorkflow(ctx, cmd.OutOrStdout(), log, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "Path to workflow file")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "Serve /metrics and /status on this address while running")
	cmd.Flags().StringVar(&opts.SaveDir, "save-dir", "", "Persist settings and outputs of every node under this directory")
	cmd.Flags().StringVar(&opts.LoadDir, "load-dir", "", "Reuse outputs saved by --save-dir instead of executing those nodes")
	cmd.Flags().BoolVar(&opts.NoTUI, "no-tui", false, "Print a summary instead of the interactive view")
	cmd.MarkFlagRequired("config") //nolint:errcheck

	return cmd
}

func runWorkflow(ctx context.Context, out io.Writer, log *logger.Logger, opts runOptions) error {
	rec := metrics.New()
	relay := &tui.Relay{}

	w, err := loadWorkflow(opts.ConfigPath, log, engine.Options{
		Metrics:    rec,
		OnProgress: relay.OnProgress,
		OnState:    relay.OnState,
	})
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Configure(ctx); err != nil {
		log.Error(err, "some nodes are not configured and will be skipped")
	}

	if opts.LoadDir != "" {
		mon := progress.NewMonitor(progress.WithContext(ctx), progress.WithLogger(log))
		loaded, err := w.LoadOutputs(opts.LoadDir, persist.NewDirPersistor(log), mon)
		mon.Close()
		if err != nil {
			return newCommandError("run", "loading saved node outputs", err, "Save them again with --save-dir.")
		}
		log.WithFields(map[string]any{"dir": opts.LoadDir, "nodes": loaded}).Info("reusing saved outputs")
	}

	if opts.MetricsAddr != "" {
		srv := server.New(opts.MetricsAddr, server.NewHandler(w, rec, log), log)
		addr, err := srv.Listen()
		if err != nil {
			return newCommandError("run", "starting the status server", err, "Pick a free --metrics-addr.")
		}
		log.With("addr", addr.String()).Info("status server listening")
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error(err, "status server shutdown failed")
			}
		}()
	}

	var res runResult
	if opts.Interactive {
		res, err = runInteractive(ctx, out, w, relay)
		if err != nil {
			return err
		}
	} else {
		res.report, res.err = w.Run(ctx)
		fmt.Fprintln(out, finalView(w, res))
	}

	if opts.SaveDir != "" && res.report != nil {
		mon := progress.NewMonitor(progress.WithContext(ctx), progress.WithLogger(log))
		err := w.SaveOutputs(opts.SaveDir, persist.NewDirPersistor(log), mon)
		mon.Close()
		if err != nil {
			return newCommandError("run", "saving node outputs", err, "Check that the save directory is writable.")
		}
		log.With("dir", opts.SaveDir).Info("node outputs saved")
	}

	return res.err
}

type runResult struct {
	report *engine.Report
	err    error
}

// runInteractive drives the run behind the bubbletea view. Quitting the view
// cancels the run; the workflow is always waited for.
func runInteractive(ctx context.Context, out io.Writer, w *engine.Workflow, relay *tui.Relay) (runResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	program := tea.NewProgram(tui.NewModel(w.Status(), cancel), tea.WithOutput(out))
	relay.Attach(program)

	done := make(chan runResult, 1)
	go func() {
		report, err := w.Run(runCtx)
		relay.Detach()
		done <- runResult{report: report, err: err}
		program.Send(tui.RunFinishedMsg{Report: report, Err: err})
	}()

	_, programErr := program.Run()
	cancel()
	return <-done, programErr
}

func finalView(w *engine.Workflow, res runResult) string {
	m, _ := tui.NewModel(w.Status(), nil).Update(tui.RunFinishedMsg{Report: res.report, Err: res.err})
	return m.View()
}
