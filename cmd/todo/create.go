package todo

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/RogWilco/jacob/pkg/todos"
)

var createFlags struct {
	repo      string
	projectID int64
	issue     int
	agent     bool
	rootPath  string
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the todo for one issue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, cleanup, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		project, err := resolveProject(ctx, a.DB, createFlags.repo, createFlags.projectID)
		if err != nil {
			return err
		}
		res := a.Orchestrator.GetOrCreate(ctx, todos.CreateParams{
			Repo:         project.RepoFullName,
			ProjectID:    project.ID,
			IssueNumber:  createFlags.issue,
			Credential:   a.Config.GitHubToken,
			RootPath:     createFlags.rootPath,
			AgentEnabled: createFlags.agent || a.Config.AgentEnabled,
		})
		if res.Outcome == todos.Failed {
			return fmt.Errorf("issue #%d: %w", createFlags.issue, res.Err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "issue #%d: %s\n", createFlags.issue, res.Outcome)
		return printJSON(cmd.OutOrStdout(), res.Todo)
	},
}

func init() {
	createCmd.Flags().StringVar(&createFlags.repo, "repo", "", "repository full name (owner/name)")
	createCmd.Flags().Int64Var(&createFlags.projectID, "project", 0, "project id (looked up from --repo when omitted)")
	createCmd.Flags().IntVar(&createFlags.issue, "issue", 0, "issue number")
	createCmd.Flags().BoolVar(&createFlags.agent, "agent", false, "run research and planning")
	createCmd.Flags().StringVar(&createFlags.rootPath, "root", "", "use this local checkout instead of cloning")
	_ = createCmd.MarkFlagRequired("issue")
}
