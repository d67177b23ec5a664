package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/nodeflow/internal/engine"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type configureOptions struct {
	configPath string
	jsonOutput bool
}

func newConfigureCmd(root *rootFlags) *cobra.Command {
	opts := &configureOptions{}

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Configure a workflow and print the node states and output specs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := root.newLogger(cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			w, err := loadWorkflow(opts.configPath, log, engine.Options{})
			if err != nil {
				return err
			}
			defer w.Close()

			configureErr := w.Configure(cmd.Context())
			status := w.Status()
			if opts.jsonOutput {
				err = renderStatusJSON(cmd, status)
			} else {
				err = renderStatusTable(cmd, status)
			}
			if err != nil {
				return err
			}
			if configureErr != nil {
				return newCommandError("configure", status.Workflow, configureErr, "Fix the settings of the nodes listed above.")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to workflow file")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")
	cmd.MarkFlagRequired("config") //nolint:errcheck

	return cmd
}

func renderStatusTable(cmd *cobra.Command, status engine.Status) error {
	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

	fmt.Fprintln(writer, "LEVEL\tNODE\tTYPE\tSTATE\tOUTPUTS\tMESSAGE")
	for _, n := range status.Nodes {
		fmt.Fprintf(writer, "%d\t%s\t%s\t%s\t%s\t%s\n",
			n.Level,
			n.ID,
			n.Type,
			n.State,
			valueOrFallback(strings.Join(n.Outputs, " "), "-"),
			valueOrFallback(n.Message, "-"),
		)
	}

	return writer.Flush()
}

func renderStatusJSON(cmd *cobra.Command, status engine.Status) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(status)
}

func valueOrFallback(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
