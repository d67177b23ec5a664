package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/nodeflow/internal/node"
	"github.com/alexisbeaulieu97/nodeflow/internal/nodes"
	"github.com/alexisbeaulieu97/nodeflow/internal/port"
)

type nodeTypeJSON struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	InPorts     []string `json:"in_ports"`
	OutPorts    []string `json:"out_ports"`
}

func newNodesCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "List the available node types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			descs := nodes.NewRegistry().List()
			if jsonOutput {
				return renderNodesJSON(cmd, descs)
			}
			return renderNodesTable(cmd, descs)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	return cmd
}

func renderNodesTable(cmd *cobra.Command, descs []node.Descriptor) error {
	writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)

	fmt.Fprintln(writer, "TYPE\tVERSION\tIN\tOUT\tDESCRIPTION")
	for _, d := range descs {
		fmt.Fprintf(writer, "%s\t%s\t%d\t%d\t%s\n", d.Name, d.Version, len(d.InPorts), len(d.OutPorts), d.Description)
	}

	return writer.Flush()
}

func renderNodesJSON(cmd *cobra.Command, descs []node.Descriptor) error {
	payload := make([]nodeTypeJSON, len(descs))
	for i, d := range descs {
		payload[i] = nodeTypeJSON{
			Name:        d.Name,
			Version:     d.Version,
			Description: d.Description,
			InPorts:     portTypes(d.InPorts),
			OutPorts:    portTypes(d.OutPorts),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

func portTypes(types []*port.Type) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
