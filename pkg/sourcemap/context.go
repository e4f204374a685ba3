package sourcemap

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ContextItem is the per-file summary stored as codebase context.
type ContextItem struct {
	File         string   `json:"file"`
	Language     string   `json:"language,omitempty"`
	Lines        int      `json:"lines"`
	Size         int64    `json:"size"`
	Declarations []string `json:"declarations,omitempty"`
	Overview     string   `json:"overview"`
}

// ContextItems derives a ContextItem for every listed file. Files that
// vanished since traversal are skipped.
func ContextItems(root string, files []string) ([]ContextItem, error) {
	items := make([]ContextItem, 0, len(files))
	for _, rel := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		raw, err := os.ReadFile(full)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", rel, err)
		}
		decls, err := Declarations(full)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", rel, err)
		}
		item := ContextItem{
			File:         rel,
			Language:     Language(rel),
			Lines:        bytes.Count(raw, []byte{'\n'}),
			Size:         int64(len(raw)),
			Declarations: decls,
		}
		if len(raw) > 0 && raw[len(raw)-1] != '\n' {
			item.Lines++
		}
		item.Overview = overview(item)
		items = append(items, item)
	}
	return items, nil
}

func overview(item ContextItem) string {
	lang := item.Language
	if lang == "" {
		lang = "text"
	}
	if len(item.Declarations) == 0 {
		return fmt.Sprintf("%s file with %d lines", lang, item.Lines)
	}
	names := item.Declarations
	if len(names) > 5 {
		names = names[:5]
	}
	return fmt.Sprintf("%s file with %d lines declaring %s", lang, item.Lines, strings.Join(names, "; "))
}
