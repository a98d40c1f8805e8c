package corpus

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	syncerrors "github.com/lexhaven/vecsync/internal/errors"
)

// DefaultMaxFileSize is the default maximum document size (32MB).
const DefaultMaxFileSize = 32 * 1024 * 1024

// resultBuffer is the enumeration channel capacity.
const resultBuffer = 8

// sensitivePatterns are never enumerated regardless of include patterns.
var sensitivePatterns = []string{
	"**/.env",
	"**/.env.*",
	"**/*.pem",
	"**/*.key",
	"**/*credentials*",
	"**/*secrets*",
	"**/.netrc",
}

// FSOptions configures a filesystem source.
type FSOptions struct {
	// Include is a list of doublestar glob patterns (empty = all files).
	Include []string

	// Exclude patterns are applied after Include.
	Exclude []string

	// MaxFileSize is the maximum document size in bytes (0 = 32MB default).
	MaxFileSize int64

	// FollowSymlinks enables following symbolic links (default: false).
	FollowSymlinks bool
}

// FSSource enumerates documents from a local directory tree.
type FSSource struct {
	root string
	opts FSOptions
}

// NewFSSource creates a filesystem source rooted at dir.
func NewFSSource(dir string, opts FSOptions) (*FSSource, error) {
	absRoot, err := filepath.Abs(dir)
	if err != nil {
		return nil, syncerrors.CorpusError(fmt.Sprintf("failed to resolve corpus root: %v", err), err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, syncerrors.CorpusUnavailable(fmt.Sprintf("corpus root not accessible: %s", absRoot), err)
	}
	if !info.IsDir() {
		return nil, syncerrors.CorpusError(fmt.Sprintf("corpus root is not a directory: %s", absRoot), nil)
	}

	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}

	return &FSSource{root: absRoot, opts: opts}, nil
}

// Name identifies the source backend.
func (s *FSSource) Name() string { return "fs" }

// Root returns the absolute corpus root directory.
func (s *FSSource) Root() string { return s.root }

// Enumerate walks the corpus directory and streams documents.
func (s *FSSource) Enumerate(ctx context.Context) (<-chan Result, error) {
	results := make(chan Result, resultBuffer)

	go func() {
		defer close(results)
		s.walk(ctx, results)
	}()

	return results, nil
}

func (s *FSSource) walk(ctx context.Context, results chan<- Result) {
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // Skip files we can't access
		}

		relPath, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		if relPath == "." {
			return nil
		}
		relSlash := filepath.ToSlash(relPath)

		if d.IsDir() {
			if s.excludedDir(relSlash) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks are skipped unless explicitly enabled
		if d.Type()&fs.ModeSymlink != 0 && !s.opts.FollowSymlinks {
			return nil
		}

		if !s.included(relSlash) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.Size() > s.opts.MaxFileSize {
			return nil
		}

		doc, err := s.load(path, relSlash, info.Size())
		if err != nil {
			select {
			case results <- Result{Err: err}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		}
		if doc == nil {
			return nil // Binary file
		}
		doc.ModTime = info.ModTime()

		select {
		case results <- Result{Doc: doc}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && err != context.Canceled {
		select {
		case results <- Result{Err: syncerrors.CorpusError("corpus walk failed", err)}:
		default:
		}
	}
}

// load reads a file and builds a Document. Returns (nil, nil) for binary files.
func (s *FSSource) load(absPath, relSlash string, size int64) (*Document, error) {
	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, syncerrors.CorpusError(fmt.Sprintf("failed to read %s", relSlash), err)
	}

	if isBinary(raw) {
		return nil, nil
	}

	content := string(raw)
	if isHTMLPath(relSlash) {
		content = HTMLToMarkdown(content)
	}

	return &Document{
		ID:          relSlash,
		SourcePath:  absPath,
		Collection:  CollectionFromPath(relSlash),
		Content:     content,
		Fingerprint: Fingerprint(raw),
		Size:        size,
	}, nil
}

// included applies sensitive, exclude, and include patterns in that order.
func (s *FSSource) included(relSlash string) bool {
	for _, pattern := range sensitivePatterns {
		if ok, _ := doublestar.Match(pattern, relSlash); ok {
			return false
		}
	}
	for _, pattern := range s.opts.Exclude {
		if ok, _ := doublestar.Match(pattern, relSlash); ok {
			return false
		}
	}
	if len(s.opts.Include) == 0 {
		return true
	}
	for _, pattern := range s.opts.Include {
		if ok, _ := doublestar.Match(pattern, relSlash); ok {
			return true
		}
	}
	return false
}

// excludedDir prunes whole directories matched by exclude patterns like
// "**/node_modules/**" without descending into them.
func (s *FSSource) excludedDir(relSlash string) bool {
	for _, pattern := range s.opts.Exclude {
		// A dir named X is pruned by patterns containing "/X/" segments
		trimmed := strings.TrimSuffix(pattern, "/**")
		if trimmed == pattern {
			continue
		}
		if ok, _ := doublestar.Match(trimmed, relSlash); ok {
			return true
		}
	}
	return false
}

// isBinary checks for null bytes in the first 512 bytes.
func isBinary(content []byte) bool {
	probe := content
	if len(probe) > 512 {
		probe = probe[:512]
	}
	return bytes.Contains(probe, []byte{0})
}
