// Package sourcemap walks a checkout and renders a compact map of its
// source files for prompts.
package sourcemap

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

const (
	defaultMaxFileSize = 512 * 1024
	maxDeclarations    = 40
)

var skipDirs = map[string]bool{
	".git":         true,
	".next":        true,
	".venv":        true,
	"__pycache__":  true,
	"build":        true,
	"coverage":     true,
	"dist":         true,
	"node_modules": true,
	"out":          true,
	"target":       true,
	"vendor":       true,
}

var languages = map[string]string{
	".go":   "go",
	".ts":   "typescript",
	".tsx":  "typescript",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".py":   "python",
	".rb":   "ruby",
	".rs":   "rust",
	".java": "java",
	".kt":   "kotlin",
	".cs":   "csharp",
	".php":  "php",
	".css":  "css",
	".scss": "css",
	".html": "html",
	".md":   "markdown",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".sql":  "sql",
	".sh":   "shell",
}

var declPatterns = map[string]*regexp.Regexp{
	"go":         regexp.MustCompile(`^(func|type)\s+\S`),
	"typescript": regexp.MustCompile(`^(export\s+)?(default\s+)?(async\s+)?(function|class|interface|type|enum|const)\s+\w`),
	"javascript": regexp.MustCompile(`^(export\s+)?(default\s+)?(async\s+)?(function|class|const)\s+\w`),
	"python":     regexp.MustCompile(`^(async\s+)?(def|class)\s+\w`),
	"ruby":       regexp.MustCompile(`^\s*(def|class|module)\s+\w`),
	"rust":       regexp.MustCompile(`^(pub\s+)?(fn|struct|enum|trait|impl)\b`),
	"java":       regexp.MustCompile(`^\s*(public|protected)\s+.*[({]\s*$`),
	"kotlin":     regexp.MustCompile(`^(fun|class|object|interface|data class)\s+\w`),
	"csharp":     regexp.MustCompile(`^\s*(public|internal)\s+.*[({]?\s*$`),
	"php":        regexp.MustCompile(`^\s*(function|class|interface|trait)\s+\w`),
}

// Language maps a file name to a language label, "" when unknown.
func Language(name string) string {
	return languages[strings.ToLower(filepath.Ext(name))]
}

func ignored(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, rel); ok {
			return true
		}
		if ok, _ := path.Match(p, path.Base(rel)); ok {
			return true
		}
		if strings.HasPrefix(rel, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}

func isBinary(file string) bool {
	f, err := os.Open(file)
	if err != nil {
		return true
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	return bytes.IndexByte(buf[:n], 0) >= 0
}

// Traverse lists the source files under root as slash-separated paths
// relative to root, sorted.
func Traverse(root string, settings RepoSettings) ([]string, error) {
	limit := settings.MaxFileSize
	if limit <= 0 {
		limit = defaultMaxFileSize
	}

	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if p != root && (skipDirs[d.Name()] || ignored(rel, settings.Ignore)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || rel == SettingsFile || ignored(rel, settings.Ignore) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > limit || isBinary(p) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to traverse %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// Declarations returns the top-level declaration lines of a file.
func Declarations(file string) ([]string, error) {
	re := declPatterns[Language(file)]
	if re == nil {
		return nil, nil
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var decls []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() && len(decls) < maxDeclarations {
		line := sc.Text()
		if re.MatchString(line) {
			decls = append(decls, strings.TrimSpace(strings.TrimRight(line, "{( ")))
		}
	}
	return decls, sc.Err()
}

// Build renders the source map: one line per file followed by its
// declarations, indented.
func Build(root string, settings RepoSettings) (string, error) {
	files, err := Traverse(root, settings)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, rel := range files {
		b.WriteString(rel)
		b.WriteByte('\n')
		decls, err := Declarations(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", rel, err)
		}
		for _, d := range decls {
			b.WriteString("  ")
			b.WriteString(d)
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}
