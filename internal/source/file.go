package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/gamesjobs/pipeline/internal/pipeline"
)

// Dir is a Source that reads job documents from YAML files in a directory.
// Each .yaml/.yml file holds a list of documents. Files are processed in
// name order so a batch replays deterministically.
type Dir struct {
	name   string
	path   string
	logger *zap.Logger
}

// NewDir builds a directory-backed source rooted at path.
func NewDir(name, path string, logger *zap.Logger) *Dir {
	return &Dir{name: name, path: path, logger: logger}
}

// Name implements Source.
func (d *Dir) Name() string { return d.name }

// Discover implements Source. A file that fails to parse is logged and
// skipped; the remaining files still get ingested.
func (d *Dir) Discover(ctx context.Context, emit EmitFunc) error {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return fmt.Errorf("read document dir %s: %w", d.path, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	var parseFailures int
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		docs, err := d.readFile(filepath.Join(d.path, name))
		if err != nil {
			parseFailures++
			d.logger.Warn("skipping unreadable document file",
				zap.String("file", name),
				zap.Error(err),
			)
			continue
		}
		for _, doc := range docs {
			if doc.Source == "" {
				doc.Source = d.name
			}
			if err := emit(doc); err != nil {
				return err
			}
		}
	}
	if parseFailures > 0 && parseFailures == len(files) {
		return fmt.Errorf("no readable document files in %s", d.path)
	}
	return nil
}

func (d *Dir) readFile(path string) ([]pipeline.RawDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var docs []pipeline.RawDocument
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse documents: %w", err)
	}
	return docs, nil
}
