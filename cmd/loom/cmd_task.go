package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"loom/internal/display"
	"loom/pkg/taskset"
)

var taskFlags struct {
	instance string
	task     string
	assignee string
	by       string
	note     string
	values   string
	reason   string
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Operate on tasks within an instance",
}

var taskStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Claim an available task",
	RunE:  runTaskStart,
}

var taskCompleteCmd = &cobra.Command{
	Use:   "complete [key=value ...]",
	Short: "Complete a task and apply its graph delta",
	Long: `Marks the task completed and applies its authored delta to the graph.
Values from --values (a JSON object) and trailing key=value pairs are
merged into the delta: they lay over created nodes' initial values and
supply the written value for field updates.`,
	RunE: runTaskComplete,
}

var taskSkipCmd = &cobra.Command{
	Use:   "skip",
	Short: "Skip a task; dependents treat it as satisfied",
	RunE:  runTaskSkip,
}

func init() {
	for _, c := range []*cobra.Command{taskStartCmd, taskCompleteCmd, taskSkipCmd} {
		f := c.Flags()
		f.StringVar(&taskFlags.instance, "instance", "", "Instance ID (required)")
		f.StringVar(&taskFlags.task, "task", "", "Task ID (required)")
		addEngineFlags(c)
		_ = c.MarkFlagRequired("instance")
		_ = c.MarkFlagRequired("task")
	}
	taskStartCmd.Flags().StringVar(&taskFlags.assignee, "assignee", "", "Who is doing the work")
	taskCompleteCmd.Flags().StringVar(&taskFlags.by, "by", "", "Who finished the work")
	taskCompleteCmd.Flags().StringVar(&taskFlags.note, "note", "", "Completion note")
	taskCompleteCmd.Flags().StringVar(&taskFlags.values, "values", "", "Completion values as a JSON object")
	taskSkipCmd.Flags().StringVar(&taskFlags.reason, "reason", "", "Why the task is skipped (required)")
	_ = taskSkipCmd.MarkFlagRequired("reason")

	taskCmd.AddCommand(taskStartCmd)
	taskCmd.AddCommand(taskCompleteCmd)
	taskCmd.AddCommand(taskSkipCmd)
}

func runTaskStart(cmd *cobra.Command, _ []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	in, err := eng.Manager.StartTask(cmd.Context(), taskFlags.instance, taskFlags.task, taskFlags.assignee)
	if err != nil {
		return err
	}
	if err := eng.SaveSnapshot(in); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	t := in.Task(taskFlags.task)
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s%s\n",
		taskFlags.task, display.TaskStatus(string(t.Status)), assigneeSuffix(t.Assignee))
	return nil
}

func runTaskComplete(cmd *cobra.Command, args []string) error {
	vals, err := parseValues(taskFlags.values, args)
	if err != nil {
		return err
	}

	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	in, err := eng.Manager.CompleteTask(cmd.Context(), taskFlags.instance, taskFlags.task, taskset.Completion{
		CompletedBy: taskFlags.by,
		Note:        taskFlags.note,
		Values:      vals,
	})
	if err != nil {
		return err
	}
	if err := eng.SaveSnapshot(in); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	out := cmd.OutOrStdout()
	t := in.Task(taskFlags.task)
	fmt.Fprintf(out, "%s: %s\n", taskFlags.task, display.TaskStatus(string(t.Status)))
	if t.OutputNodeID != "" {
		fmt.Fprintf(out, "Output:    %s\n", t.OutputNodeID)
	}
	fmt.Fprintf(out, "Progress:  %s\n", display.Progress(in.CompletedTasks, in.SkippedTasks, in.TotalTasks))
	if avail := availableIDs(eng, in); len(avail) > 0 {
		fmt.Fprintf(out, "Available: %s\n", strings.Join(avail, ", "))
	}
	if in.Status != taskset.InstanceActive {
		fmt.Fprintf(out, "Instance:  %s\n", display.InstanceStatus(string(in.Status)))
	}
	return nil
}

func runTaskSkip(cmd *cobra.Command, _ []string) error {
	eng, err := openEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	in, err := eng.Manager.SkipTask(cmd.Context(), taskFlags.instance, taskFlags.task, taskFlags.reason)
	if err != nil {
		return err
	}
	if err := eng.SaveSnapshot(in); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s (%s)\n", taskFlags.task, display.TaskStatus(string(taskset.TaskSkipped)), taskFlags.reason)
	fmt.Fprintf(out, "Progress:  %s\n", display.Progress(in.CompletedTasks, in.SkippedTasks, in.TotalTasks))
	if avail := availableIDs(eng, in); len(avail) > 0 {
		fmt.Fprintf(out, "Available: %s\n", strings.Join(avail, ", "))
	}
	return nil
}

func assigneeSuffix(assignee string) string {
	if assignee == "" {
		return ""
	}
	return " (" + assignee + ")"
}
