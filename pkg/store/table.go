package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/flowpool/flowpool/pkg/domain"
)

// Table nodes hold CSV partitions. Every partition carries the header
// row; readers see the header once.

const partitionPattern = "part-%05d.csv"

// CreateTable creates a table node with the given CSV as its first
// partition.
func (s *Store) CreateTable(nodePath string, csv []byte) error {
	dir, err := s.resolve(nodePath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if names, err := s.partitions(dir); err != nil {
		return err
	} else if 0 < len(names) {
		return fmt.Errorf("table %s: %w", nodePath, domain.ErrConflict)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, fmt.Sprintf(partitionPattern, 0)), csv, 0o644)
}

// AppendPartition adds the CSV as the table's next partition.
func (s *Store) AppendPartition(nodePath string, csv []byte) error {
	dir, err := s.resolve(nodePath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.partitions(dir)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("table %s: %w", nodePath, domain.ErrMissing)
	}

	next := filepath.Join(dir, fmt.Sprintf(partitionPattern, len(names)))
	return os.WriteFile(next, csv, 0o644)
}

// ReadTable concatenates all partitions into one CSV document. The
// header row of every partition after the first is dropped.
func (s *Store) ReadTable(nodePath string) ([]byte, error) {
	dir, err := s.resolve(nodePath)
	if err != nil {
		return nil, err
	}

	names, err := s.partitions(dir)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("table %s: %w", nodePath, domain.ErrMissing)
	}

	out := []byte{}
	for i, name := range names {
		part, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if 0 < i {
			if _, rest, found := bytes.Cut(part, []byte("\n")); found {
				part = rest
			} else {
				continue // header-only partition
			}
		}
		out = append(out, part...)
		if 0 < len(part) && part[len(part)-1] != '\n' {
			out = append(out, '\n')
		}
	}
	return out, nil
}

func (s *Store) partitions(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "part-*.csv"))
	if err != nil {
		return nil, err
	}
	names := make([]string, len(matches))
	for i, m := range matches {
		names[i] = filepath.Base(m)
	}
	sort.Strings(names)
	return names, nil
}
