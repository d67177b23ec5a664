package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/nodeflow/internal/logger"
)

type rootFlags struct {
	verbose  bool
	jsonLogs bool
	logLevel string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "nodeflow",
		Short:         "nodeflow runs node-based table workflows from declarative configs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().BoolVar(&flags.jsonLogs, "log-json", false, "Emit logs as JSON lines")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newConfigureCmd(flags))
	cmd.AddCommand(newNodesCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// newLogger builds the command logger. quiet raises the default level so log
// lines do not tear the interactive view.
func (f *rootFlags) newLogger(w io.Writer, quiet bool) (*logger.Logger, error) {
	level := f.logLevel
	if level == "" {
		switch {
		case f.verbose:
			level = "debug"
		case quiet:
			level = "warn"
		default:
			level = "info"
		}
	}
	return logger.New(logger.Options{Level: level, HumanReadable: !f.jsonLogs, Writer: w})
}
