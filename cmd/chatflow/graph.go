package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/leofalp/chatflow/core/flowfile"
	"github.com/leofalp/chatflow/patterns/graph"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "List the nodes of a flow",
	Long: `Prints the compiled node list of a flow file (--flow) or of a stored agent
(--agent), with each node's type and outgoing edges.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cmd, cfg, false)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.flow == nil && cfg.AgentID == "" {
			return errNoFlow
		}
		service, err := a.chatService(nil)
		if err != nil {
			return err
		}
		g, err := service.Graph(cmd.Context())
		if err != nil {
			return err
		}

		if save, _ := cmd.Flags().GetString("save-agent"); save != "" {
			if err := g.SaveAgent(cmd.Context(), a.snapshots, save); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "saved agent %q\n", save)
		}

		format, _ := cmd.Flags().GetString("output")
		return printNodes(cmd, g, format)
	},
}

func printNodes(cmd *cobra.Command, g *graph.Graph, format string) error {
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(g.Nodes())
	case "yaml":
		data, err := flowfile.Marshal(g.Document("graph"))
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tEDGES\tCONDITIONAL")
	for _, node := range g.Nodes() {
		edges := make([]string, 0, len(node.Edges))
		for _, edge := range node.Edges {
			edges = append(edges, edge.To)
		}
		conditional := make([]string, 0, len(node.ConditionalEdges))
		for _, edge := range node.ConditionalEdges {
			conditional = append(conditional, "["+strings.Join(edge.To, "|")+"]")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", node.ID, node.Type, strings.Join(edges, ","), strings.Join(conditional, " "))
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("flow", "", "YAML flow to inspect")
	graphCmd.Flags().String("agent", "", "Stored agent to inspect; overrides AGENT_ID")
	graphCmd.Flags().StringP("output", "o", "table", "Output format: table, json or yaml")
	graphCmd.Flags().String("save-agent", "", "Store the flow as this agent id")
}
