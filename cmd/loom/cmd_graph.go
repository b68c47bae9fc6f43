package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loom/pkg/taskset"
)

var graphFlags struct {
	definition string
	version    int
}

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Render a definition's task DAG as Mermaid",
	Long: `Prints a Mermaid flowchart of the definition: dependency layers as
subgraphs, one arrow per dependency, conditional tasks as hexagons.
Paste the output into any Mermaid renderer.`,
	RunE: runGraph,
}

func init() {
	f := graphCmd.Flags()
	f.StringVar(&graphFlags.definition, "definition", "", "Definition ID (required)")
	f.IntVar(&graphFlags.version, "version", 0, "Definition version (0 = latest)")
	addEngineFlags(graphCmd)

	_ = graphCmd.MarkFlagRequired("definition")
}

func runGraph(cmd *cobra.Command, _ []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	def, err := eng.Manager.Definition(graphFlags.definition, graphFlags.version)
	if err != nil {
		return err
	}
	mermaid, err := taskset.Render(def)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), mermaid)
	return nil
}
