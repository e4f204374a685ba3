package todo

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RogWilco/jacob/pkg/queue"
)

var importFlags struct {
	repo      string
	projectID int64
	issues    []int
	agent     bool
	priority  int
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Queue several issues and process them until the queue is drained",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, cleanup, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		project, err := resolveProject(ctx, a.DB, importFlags.repo, importFlags.projectID)
		if err != nil {
			return err
		}
		for _, number := range importFlags.issues {
			if _, err := a.Queue.Enqueue(ctx, queue.NewJob{
				ProjectID:    project.ID,
				Repo:         project.RepoFullName,
				IssueNumber:  number,
				AgentEnabled: importFlags.agent || a.Config.AgentEnabled,
				Priority:     importFlags.priority,
			}); err != nil {
				return err
			}
		}
		a.Logger.Infof("queued %d issues for %s", len(importFlags.issues), project.RepoFullName)

		if err := a.Pool(true).Run(ctx); err != nil {
			return err
		}
		stats, err := a.Queue.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "completed: %d, failed: %d, pending: %d\n",
			stats[queue.StatusCompleted], stats[queue.StatusFailed], stats[queue.StatusPending])
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importFlags.repo, "repo", "", "repository full name (owner/name)")
	importCmd.Flags().Int64Var(&importFlags.projectID, "project", 0, "project id (looked up from --repo when omitted)")
	importCmd.Flags().IntSliceVar(&importFlags.issues, "issues", nil, "comma separated issue numbers")
	importCmd.Flags().BoolVar(&importFlags.agent, "agent", false, "run research and planning")
	importCmd.Flags().IntVar(&importFlags.priority, "priority", 0, "job priority, higher runs first")
	_ = importCmd.MarkFlagRequired("issues")
}
