package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"loom/internal/format"
)

var definitionsFlags struct {
	markdown bool
}

var definitionsCmd = &cobra.Command{
	Use:   "definitions",
	Short: "List registered task set definitions",
	RunE:  runDefinitions,
}

func init() {
	definitionsCmd.Flags().BoolVar(&definitionsFlags.markdown, "markdown", false, "Render the table as Markdown")
	addEngineFlags(definitionsCmd)
}

func runDefinitions(cmd *cobra.Command, _ []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	mode := format.ASCII
	if definitionsFlags.markdown {
		mode = format.Markdown
	}
	tb := format.NewTable(mode)
	tb.Header("ID", "NAME", "VERSION", "ROOT TYPE", "TASKS", "TAGS", "FROZEN")
	for _, def := range eng.Manager.Definitions() {
		tb.Row(def.ID, def.Name, def.Version, def.RootNodeType,
			len(def.Tasks), strings.Join(def.Tags, ", "),
			format.BoolMark(eng.Manager.Frozen(def.ID, def.Version)))
	}
	tb.AlignRight(3, 5)
	fmt.Fprintln(cmd.OutOrStdout(), tb.String())
	return nil
}
