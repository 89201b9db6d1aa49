package knowledge

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFile lists gitignore-style patterns of documents to leave out of the index.
const IgnoreFile = ".kbignore"

// DefaultIgnorePatterns are skipped in every documents directory.
var DefaultIgnorePatterns = []string{
	".git",
	".DS_Store",
	"*.bleve",
	"drafts/",
}

// documentExts are the file types split into pages.
var documentExts = map[string]bool{
	".md":  true,
	".txt": true,
}

// IsDocument reports whether path has an indexable extension.
func IsDocument(path string) bool {
	return documentExts[strings.ToLower(filepath.Ext(path))]
}

// Walker discovers the documents under a root directory.
type Walker struct {
	root          string
	ignoreMatcher gitignore.IgnoreParser
}

// NewWalker creates a walker honouring DefaultIgnorePatterns and the root's .kbignore.
func NewWalker(root string) (*Walker, error) {
	patterns := append([]string{}, DefaultIgnorePatterns...)
	lines, err := readIgnoreLines(filepath.Join(root, IgnoreFile))
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", IgnoreFile, err)
	}
	patterns = append(patterns, lines...)

	return &Walker{
		root:          root,
		ignoreMatcher: gitignore.CompileIgnoreLines(patterns...),
	}, nil
}

// readIgnoreLines reads patterns from an ignore file, skipping blanks and comments.
func readIgnoreLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// Root returns the documents directory.
func (w *Walker) Root() string { return w.root }

// Ignored reports whether a root-relative path is excluded.
func (w *Walker) Ignored(rel string) bool {
	return rel == IgnoreFile || w.ignoreMatcher.MatchesPath(filepath.ToSlash(rel))
}

// Walk returns the root-relative paths of every document, sorted.
func (w *Walker) Walk(ctx context.Context) ([]string, error) {
	var docs []string
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil || rel == "." {
			return nil
		}
		if w.Ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		if IsDocument(path) {
			docs = append(docs, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk documents: %w", err)
	}
	sort.Strings(docs)
	return docs, nil
}
