package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loom/internal/display"
	"loom/internal/format"
	"loom/internal/wiring"
	"loom/pkg/taskset"
)

var statusFlags struct {
	instance string
	markdown bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show instance state",
	Long: `Without --instance, lists every known instance. With --instance, shows
the full task breakdown for one.`,
	RunE: runStatus,
}

func init() {
	f := statusCmd.Flags()
	f.StringVar(&statusFlags.instance, "instance", "", "Instance ID for the detailed view")
	f.BoolVar(&statusFlags.markdown, "markdown", false, "Render tables as Markdown")
	addEngineFlags(statusCmd)
}

func tableMode() format.Mode {
	if statusFlags.markdown {
		return format.Markdown
	}
	return format.ASCII
}

func runStatus(cmd *cobra.Command, _ []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	if statusFlags.instance == "" {
		return listInstances(cmd, eng)
	}
	return showInstance(cmd, eng, statusFlags.instance)
}

func listInstances(cmd *cobra.Command, eng *wiring.Engine) error {
	instances := eng.Manager.Instances()
	out := cmd.OutOrStdout()
	if len(instances) == 0 {
		fmt.Fprintln(out, "No instances. Run 'loom create' to start one.")
		return nil
	}

	tb := format.NewTable(tableMode())
	tb.Header("INSTANCE", "DEFINITION", "STATUS", "PROGRESS", "UPDATED")
	for _, in := range instances {
		tb.Row(in.ID,
			fmt.Sprintf("%s v%d", in.DefinitionID, in.Version),
			display.InstanceStatus(string(in.Status)),
			display.Progress(in.CompletedTasks, in.SkippedTasks, in.TotalTasks),
			format.Age(in.UpdatedAt))
	}
	tb.AlignRight(4)
	fmt.Fprintln(out, tb.String())
	return nil
}

func showInstance(cmd *cobra.Command, eng *wiring.Engine, id string) error {
	in, err := eng.Manager.Instance(id)
	if err != nil {
		return err
	}
	def, err := eng.Manager.Definition(in.DefinitionID, in.Version)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Instance:   %s\n", in.ID)
	fmt.Fprintf(out, "Definition: %s v%d\n", in.DefinitionID, in.Version)
	if in.WorkflowID != "" {
		fmt.Fprintf(out, "Workflow:   %s\n", in.WorkflowID)
	}
	if in.RootNodeID != "" {
		fmt.Fprintf(out, "Root:       %s\n", in.RootNodeID)
	}
	fmt.Fprintf(out, "Status:     %s\n", display.InstanceStatus(string(in.Status)))
	fmt.Fprintf(out, "Updated:    %s\n", format.Age(in.UpdatedAt))
	fmt.Fprintln(out)

	tb := format.NewTable(tableMode())
	tb.Header("TASK", "NAME", "STATUS", "ASSIGNEE", "TOOK", "NOTE")
	for _, td := range def.Tasks {
		ti := in.Task(td.ID)
		if ti == nil {
			continue
		}
		tb.Row(td.ID, td.Name,
			display.TaskStatus(string(ti.Status)),
			display.AssigneeTag(string(td.Assignee), ti.Assignee),
			taskTook(ti),
			ti.Note)
	}
	tb.Footer("", "", "", "", "", display.Progress(in.CompletedTasks, in.SkippedTasks, in.TotalTasks))
	tb.Limit(6, 32)
	fmt.Fprintln(out, tb.String())
	return nil
}

func taskTook(ti *taskset.TaskInstance) string {
	if ti.StartedAt == nil || ti.CompletedAt == nil {
		return ""
	}
	return format.FmtDuration(ti.CompletedAt.Sub(*ti.StartedAt))
}
