package agents

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/RogWilco/jacob/pkg/sourcemap"
)

// GetOrCreateCodebaseContext returns context for every file in files,
// reusing stored items and persisting the ones computed now.
func (d Deps) GetOrCreateCodebaseContext(ctx context.Context, projectID int64, root string, files []string) ([]sourcemap.ContextItem, error) {
	stored, err := d.DB.ListCodebaseContext(ctx, projectID)
	if err != nil {
		return nil, err
	}
	known := make(map[string]sourcemap.ContextItem, len(stored))
	for _, row := range stored {
		var item sourcemap.ContextItem
		if err := json.Unmarshal(row.Context, &item); err != nil {
			d.Logger.Warnf("discarding unreadable context for %s: %v", row.FilePath, err)
			continue
		}
		known[row.FilePath] = item
	}

	var missing []string
	for _, f := range files {
		if _, ok := known[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		fresh, err := sourcemap.ContextItems(root, missing)
		if err != nil {
			return nil, err
		}
		for _, item := range fresh {
			raw, err := json.Marshal(item)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal context for %s: %w", item.File, err)
			}
			if err := d.DB.UpsertCodebaseContext(ctx, projectID, item.File, raw); err != nil {
				return nil, err
			}
			known[item.File] = item
		}
		d.Logger.WithField("project_id", projectID).Infof("stored codebase context for %d files", len(fresh))
	}

	items := make([]sourcemap.ContextItem, 0, len(files))
	for _, f := range files {
		if item, ok := known[f]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

// StoredCodebaseContext decodes every stored context item of a project.
func (d Deps) StoredCodebaseContext(ctx context.Context, projectID int64) ([]sourcemap.ContextItem, error) {
	stored, err := d.DB.ListCodebaseContext(ctx, projectID)
	if err != nil {
		return nil, err
	}
	items := make([]sourcemap.ContextItem, 0, len(stored))
	for _, row := range stored {
		var item sourcemap.ContextItem
		if err := json.Unmarshal(row.Context, &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}
