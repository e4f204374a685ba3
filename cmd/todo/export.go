package todo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/RogWilco/jacob/pkg/agents"
	"github.com/RogWilco/jacob/pkg/database"
)

type exportedResearch struct {
	Type     string `json:"type" yaml:"type"`
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer,omitempty" yaml:"answer,omitempty"`
}

type exportedStep struct {
	Order        int    `json:"order" yaml:"order"`
	Type         string `json:"type" yaml:"type"`
	Title        string `json:"title" yaml:"title"`
	FilePath     string `json:"file_path,omitempty" yaml:"file_path,omitempty"`
	Instructions string `json:"instructions" yaml:"instructions"`
}

type exportedTodo struct {
	ID          int64              `json:"id" yaml:"id"`
	IssueNumber *int64             `json:"issue_number,omitempty" yaml:"issue_number,omitempty"`
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description" yaml:"description"`
	Status      string             `json:"status" yaml:"status"`
	Position    int                `json:"position" yaml:"position"`
	Evaluation  *agents.Evaluation `json:"evaluation,omitempty" yaml:"evaluation,omitempty"`
	Research    []exportedResearch `json:"research,omitempty" yaml:"research,omitempty"`
	Plan        []exportedStep     `json:"plan,omitempty" yaml:"plan,omitempty"`
}

type exportDocument struct {
	Repo       string         `json:"repo" yaml:"repo"`
	ExportedAt time.Time      `json:"exported_at" yaml:"exported_at"`
	Todos      []exportedTodo `json:"todos" yaml:"todos"`
}

var exportFlags struct {
	projectID int64
	repo      string
	out       string
	format    string
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a project's todos with research and plans to a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		project, err := resolveProject(ctx, db, exportFlags.repo, exportFlags.projectID)
		if err != nil {
			return err
		}
		doc, err := buildExport(ctx, db, project)
		if err != nil {
			return err
		}
		raw, err := encodeExport(doc, exportFlags.format)
		if err != nil {
			return err
		}
		if exportFlags.out == "" {
			_, err := cmd.OutOrStdout().Write(raw)
			return err
		}
		if err := atomic.WriteFile(exportFlags.out, bytes.NewReader(raw)); err != nil {
			return fmt.Errorf("failed to write %s: %w", exportFlags.out, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "exported %d todos to %s\n", len(doc.Todos), exportFlags.out)
		return nil
	},
}

func init() {
	exportCmd.Flags().Int64Var(&exportFlags.projectID, "project", 0, "project id")
	exportCmd.Flags().StringVar(&exportFlags.repo, "repo", "", "repository full name, instead of --project")
	exportCmd.Flags().StringVarP(&exportFlags.out, "out", "o", "", "output file (default stdout)")
	exportCmd.Flags().StringVar(&exportFlags.format, "format", "json", "output format (json, yaml)")
}

func buildExport(ctx context.Context, db database.Database, project *database.Project) (exportDocument, error) {
	list, err := db.ListTodos(ctx, project.ID)
	if err != nil {
		return exportDocument{}, err
	}
	doc := exportDocument{Repo: project.RepoFullName, ExportedAt: time.Now().UTC(), Todos: []exportedTodo{}}
	for _, t := range list {
		et := exportedTodo{
			ID:          t.ID,
			IssueNumber: t.IssueID,
			Name:        t.Name,
			Description: t.Description,
			Status:      string(t.Status),
			Position:    t.Position,
		}
		if len(t.EvaluationData) > 0 {
			var eval agents.Evaluation
			if err := json.Unmarshal(t.EvaluationData, &eval); err == nil {
				et.Evaluation = &eval
			}
		}
		if t.IssueID != nil {
			research, err := db.ListResearch(ctx, database.ResearchScope{TodoID: t.ID, IssueID: *t.IssueID, ProjectID: project.ID})
			if err != nil {
				return exportDocument{}, err
			}
			for _, r := range research {
				et.Research = append(et.Research, exportedResearch{Type: r.Type, Question: r.Question, Answer: r.Answer})
			}
			steps, err := db.ListPlanSteps(ctx, project.ID, *t.IssueID)
			if err != nil {
				return exportDocument{}, err
			}
			for _, s := range steps {
				et.Plan = append(et.Plan, exportedStep{
					Order:        s.StepOrder,
					Type:         s.Type,
					Title:        s.Title,
					FilePath:     s.FilePath,
					Instructions: s.Instructions,
				})
			}
		}
		doc.Todos = append(doc.Todos, et)
	}
	return doc, nil
}

func encodeExport(doc exportDocument, format string) ([]byte, error) {
	switch format {
	case "json":
		raw, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(raw, '\n'), nil
	case "yaml", "yml":
		return yaml.Marshal(doc)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}
