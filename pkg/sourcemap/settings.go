package sourcemap

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// SettingsFile is the per-repository settings file, read as JSONC.
const SettingsFile = "jacob.config"

// RepoSettings are the repository-level knobs read from SettingsFile.
type RepoSettings struct {
	Language    string            `json:"language,omitempty"`
	Style       string            `json:"style,omitempty"`
	Ignore      []string          `json:"ignore,omitempty"`
	Directories map[string]string `json:"directories,omitempty"`
	MaxFileSize int64             `json:"maxFileSize,omitempty"`
}

// LoadRepoSettings reads SettingsFile from root. A missing file yields
// zero settings and no error.
func LoadRepoSettings(root string) (RepoSettings, error) {
	var s RepoSettings
	raw, err := os.ReadFile(filepath.Join(root, SettingsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("failed to read %s: %w", SettingsFile, err)
	}
	std, err := hujson.Standardize(raw)
	if err != nil {
		return s, fmt.Errorf("failed to parse %s: %w", SettingsFile, err)
	}
	if err := json.Unmarshal(std, &s); err != nil {
		return s, fmt.Errorf("failed to decode %s: %w", SettingsFile, err)
	}
	return s, nil
}
