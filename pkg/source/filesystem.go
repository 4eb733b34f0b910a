// Package source provides content source implementations behind the
// ContentSource capability: a local directory walker and a shallow web
// crawler.
package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xhad/quill/internal/models"
)

// CommandRunner executes an external command and returns its stdout.
// It exists so PDF conversion can be faked in tests.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

type DirSourceConfig struct {
	// Path is the root directory to enumerate.
	Path string

	// Extensions lists the file extensions to ingest. Defaults to
	// .pdf, .txt and .md.
	Extensions []string

	// PDFToText is the pdftotext binary used to convert PDFs. The
	// converter emits a form feed between pages, which the extractor uses
	// as its page locator.
	PDFToText string

	Runner CommandRunner
}

// DirSource enumerates documents under a directory. The document id is the
// path relative to the root; the version token is the file's modification
// time. A content edit that does not touch the mtime is therefore
// invisible to change detection.
type DirSource struct {
	config DirSourceConfig
	root   string
}

func NewDirSourceWithConfig(config DirSourceConfig) (*DirSource, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("source path is required")
	}
	if len(config.Extensions) == 0 {
		config.Extensions = []string{".pdf", ".txt", ".md"}
	}
	if config.PDFToText == "" {
		config.PDFToText = "pdftotext"
	}
	if config.Runner == nil {
		config.Runner = execRunner{}
	}

	root, err := filepath.Abs(config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source path: %w", err)
	}

	return &DirSource{config: config, root: root}, nil
}

func (s *DirSource) SourceID() string {
	return "dir:" + s.root
}

func (s *DirSource) ListCurrent(ctx context.Context) ([]models.Listing, error) {
	if _, err := os.Stat(s.root); err != nil {
		return nil, fmt.Errorf("source directory: %w", err)
	}

	var listings []models.Listing
	err := filepath.WalkDir(s.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			if strings.HasPrefix(entry.Name(), ".") && path != s.root {
				return fs.SkipDir
			}
			return nil
		}
		if !s.allowed(entry.Name()) {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		listings = append(listings, models.Listing{
			DocumentID: filepath.ToSlash(rel),
			Version:    info.ModTime().UTC().Format(time.RFC3339Nano),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk source directory: %w", err)
	}

	sort.Slice(listings, func(i, j int) bool { return listings[i].DocumentID < listings[j].DocumentID })
	return listings, nil
}

// Read returns the document's text content. PDFs are converted through
// pdftotext; everything else is returned as-is.
func (s *DirSource) Read(ctx context.Context, documentID string) ([]byte, error) {
	rel := filepath.FromSlash(documentID)
	path := filepath.Join(s.root, rel)
	if !strings.HasPrefix(path, s.root+string(filepath.Separator)) {
		return nil, fmt.Errorf("document id escapes source root: %s", documentID)
	}

	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		out, err := s.config.Runner.Run(ctx, s.config.PDFToText, "-enc", "UTF-8", path, "-")
		if err != nil {
			return nil, fmt.Errorf("pdftotext %s: %w", documentID, err)
		}
		return out, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", documentID, err)
	}
	return data, nil
}

func (s *DirSource) allowed(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range s.config.Extensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}
