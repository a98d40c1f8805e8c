package eval

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadQuerySet reads a query set from a YAML file.
//
// The expected shape:
//
//	name: contracts-smoke
//	queries:
//	  - query: notice period before lease termination
//	    expected_docs: [contracts/lease.md]
//	  - query: data retention window
//	    expected_chunks: [8c1f2a9d40e6b371]
func LoadQuerySet(path string) (*QuerySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read query set %s: %w", path, err)
	}

	var set QuerySet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse query set %s: %w", path, err)
	}

	if set.Name == "" {
		set.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("invalid query set %s: %w", path, err)
	}
	return &set, nil
}

// Validate checks that every query can actually be scored.
func (s *QuerySet) Validate() error {
	if len(s.Queries) == 0 {
		return fmt.Errorf("query set has no queries")
	}
	for i, q := range s.Queries {
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("query %d has no text", i)
		}
		if q.Expected() == 0 {
			return fmt.Errorf("query %q names no expected chunks or documents", q.Text)
		}
	}
	return nil
}
