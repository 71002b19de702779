package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/wayfinder/pkg/wayfinder/types"
)

var taskCmd = &cobra.Command{
	Use:   "task <id>",
	Short: "Show the status of a media generation task",
	Long: `Show the status of the background task that renders posters and a
video for a plan. Unknown or aged-out tasks report "expired".

Example:
  wayfinder task 0d5b1e9e-3a4f-4c2a-9d3e-6f7a8b9c0d1e --wait`,
	Args: cobra.ExactArgs(1),
	RunE: runTask,
}

var (
	taskWait bool
	taskJSON bool
)

func init() {
	taskCmd.Flags().BoolVar(&taskWait, "wait", false, "poll until the task finishes")
	taskCmd.Flags().BoolVar(&taskJSON, "json", false, "print the task as JSON")

	rootCmd.AddCommand(taskCmd)
}

func runTask(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	c := newClient()

	var (
		view types.TaskView
		err  error
	)
	if taskWait {
		view, err = waitTask(cmd, c, args[0])
	} else {
		view, err = c.Task(ctx, args[0])
	}
	if err != nil {
		if unreachable(ctx, err) {
			return ServerUnreachableError(cfg.Client.ServerURL, err)
		}
		return explain(err)
	}

	if taskJSON {
		return printJSON(cmd.OutOrStdout(), view)
	}
	renderTask(cmd.OutOrStdout(), view)
	return nil
}
