// Package store keeps a tree of containers, arrays and tables under a
// filesystem root.
//
// A container is a directory. An array node is a directory holding a
// structure.json sidecar (shape, dtype) and a flat data.bin of uint8
// values, row major. A table node is a directory of numbered CSV
// partitions.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/flowpool/flowpool/pkg/domain"
)

// ErrOutOfRange flags offsets or slices outside the node's bounds.
var ErrOutOfRange = errors.New("out of range")

const (
	structureFile = "structure.json"
	dataFile      = "data.bin"
)

type Structure struct {
	Shape []int  `json:"shape"`
	DType string `json:"dtype"`
}

func (s Structure) Size() int {
	size := 1
	for _, d := range s.Shape {
		size *= d
	}
	return size
}

// rowSize is the element count of one axis-0 row.
func (s Structure) rowSize() int {
	size := 1
	for _, d := range s.Shape[1:] {
		size *= d
	}
	return size
}

type Store struct {
	root string

	// mu serializes structure mutations. Reads of settled nodes do
	// not take it.
	mu sync.Mutex
}

func New(root string) *Store {
	return &Store{root: root}
}

// resolve maps a node path onto the filesystem, refusing escapes.
func (s *Store) resolve(nodePath string) (string, error) {
	cleaned := path.Clean("/" + nodePath)
	if cleaned == "/" {
		return "", fmt.Errorf("%w: empty node path", ErrOutOfRange)
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

// EnsureContainer creates the container (and its ancestors) if needed.
func (s *Store) EnsureContainer(nodePath string) error {
	dir, err := s.resolve(nodePath)
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// CreateArray creates an array node holding data with the given shape.
func (s *Store) CreateArray(nodePath string, shape []int, data []byte) error {
	structure := Structure{Shape: shape, DType: "uint8"}
	if len(shape) == 0 {
		return fmt.Errorf("%w: array needs a shape", ErrOutOfRange)
	}
	if structure.Size() != len(data) {
		return fmt.Errorf(
			"%w: %d bytes for shape %v", ErrOutOfRange, len(data), shape,
		)
	}

	dir, err := s.resolve(nodePath)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(filepath.Join(dir, structureFile)); err == nil {
		return fmt.Errorf("array %s: %w", nodePath, domain.ErrConflict)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, dataFile), data, 0o644); err != nil {
		return err
	}
	return s.writeStructure(dir, structure)
}

// PatchArray writes a block at the given axis-0 offset. The block's
// shape must agree with the array on every axis but the first.
//
// With extend, the array grows to cover the block; a gap past the
// current end is ErrOutOfRange. Without extend, writing past the end
// is domain.ErrConflict.
func (s *Store) PatchArray(nodePath string, offset int, extend bool, shape []int, data []byte) ([]int, error) {
	block := Structure{Shape: shape, DType: "uint8"}
	if block.Size() != len(data) {
		return nil, fmt.Errorf(
			"%w: %d bytes for shape %v", ErrOutOfRange, len(data), shape,
		)
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: negative offset", ErrOutOfRange)
	}

	dir, err := s.resolve(nodePath)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	structure, err := s.readStructure(dir)
	if err != nil {
		return nil, err
	}

	if len(shape) != len(structure.Shape) {
		return nil, fmt.Errorf(
			"%w: block rank %d against array rank %d",
			ErrOutOfRange, len(shape), len(structure.Shape),
		)
	}
	for axis := 1; axis < len(shape); axis++ {
		if shape[axis] != structure.Shape[axis] {
			return nil, fmt.Errorf(
				"%w: block shape %v against array shape %v",
				ErrOutOfRange, shape, structure.Shape,
			)
		}
	}

	rows := structure.Shape[0]
	end := offset + shape[0]
	switch {
	case extend && rows < offset:
		// appending leaves no gaps
		return nil, fmt.Errorf(
			"%w: offset %d past the end of %d rows", ErrOutOfRange, offset, rows,
		)
	case !extend && rows < end:
		return nil, fmt.Errorf(
			"array %s: rows %d..%d outside %d rows: %w",
			nodePath, offset, end, rows, domain.ErrConflict,
		)
	}

	file, err := os.OpenFile(filepath.Join(dir, dataFile), os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if _, err := file.WriteAt(data, int64(offset*structure.rowSize())); err != nil {
		return nil, err
	}

	if rows < end {
		structure.Shape[0] = end
		if err := s.writeStructure(dir, structure); err != nil {
			return nil, err
		}
	}
	return structure.Shape, nil
}

// ReadFull reads a slice of the array and reports the slice's shape.
// A nil slice reads everything.
func (s *Store) ReadFull(nodePath string, slice Slice) ([]byte, []int, error) {
	dir, err := s.resolve(nodePath)
	if err != nil {
		return nil, nil, err
	}

	structure, err := s.readStructure(dir)
	if err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, dataFile))
	if err != nil {
		return nil, nil, err
	}
	// the data file may run ahead of the structure mid-extend
	if size := structure.Size(); size <= len(data) {
		data = data[:size]
	} else {
		return nil, nil, fmt.Errorf(
			"array %s: %d bytes for shape %v", nodePath, len(data), structure.Shape,
		)
	}

	if slice == nil {
		shape := append([]int{}, structure.Shape...)
		return data, shape, nil
	}
	return slice.Cut(data, structure.Shape)
}

// ArrayStructure reports the shape and dtype of an array node.
func (s *Store) ArrayStructure(nodePath string) (Structure, error) {
	dir, err := s.resolve(nodePath)
	if err != nil {
		return Structure{}, err
	}
	return s.readStructure(dir)
}

func (s *Store) readStructure(dir string) (Structure, error) {
	raw, err := os.ReadFile(filepath.Join(dir, structureFile))
	if errors.Is(err, os.ErrNotExist) {
		rel, _ := filepath.Rel(s.root, dir)
		return Structure{}, fmt.Errorf("array %s: %w", filepath.ToSlash(rel), domain.ErrMissing)
	}
	if err != nil {
		return Structure{}, err
	}

	structure := Structure{}
	if err := json.Unmarshal(raw, &structure); err != nil {
		return Structure{}, fmt.Errorf("broken structure sidecar in %s: %w", dir, err)
	}
	return structure, nil
}

func (s *Store) writeStructure(dir string, structure Structure) error {
	raw, err := json.Marshal(structure)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, structureFile), raw, 0o644)
}
