package todo

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RogWilco/jacob/pkg/agents"
	"github.com/RogWilco/jacob/pkg/todos"
)

var lifecycleFlags struct {
	projectID int64
	issue     int64
	todoID    int64
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive every todo of an issue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, cleanup, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		n, err := a.Orchestrator.ArchiveByIssue(ctx, lifecycleFlags.issue, lifecycleFlags.projectID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "archived %d todos\n", n)
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Hand a todo's issue to the coding agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, cleanup, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		todo, err := a.Orchestrator.StartWork(ctx, lifecycleFlags.todoID, a.Config.GitHubToken)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), todo)
	},
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Show or generate the evaluation of a todo",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, cleanup, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		todo, err := a.DB.GetTodo(ctx, lifecycleFlags.todoID)
		if err != nil {
			return err
		}
		if todo.IssueID == nil {
			return fmt.Errorf("%w: todo %d", todos.ErrNoIssue, todo.ID)
		}
		res, err := a.Evaluator.GetOrCreate(ctx, agents.EvaluationInput{
			TodoID:      todo.ID,
			ProjectID:   todo.ProjectID,
			IssueNumber: *todo.IssueID,
			IssueText:   todo.Description,
		})
		if err != nil {
			return err
		}
		if !res.Ready {
			fmt.Fprintln(cmd.ErrOrStderr(), "no plan yet; run create with --agent first")
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	archiveCmd.Flags().Int64Var(&lifecycleFlags.projectID, "project", 0, "project id")
	archiveCmd.Flags().Int64Var(&lifecycleFlags.issue, "issue", 0, "issue number")
	_ = archiveCmd.MarkFlagRequired("project")
	_ = archiveCmd.MarkFlagRequired("issue")

	for _, c := range []*cobra.Command{startCmd, evaluateCmd} {
		c.Flags().Int64Var(&lifecycleFlags.todoID, "todo", 0, "todo id")
		_ = c.MarkFlagRequired("todo")
	}
}
