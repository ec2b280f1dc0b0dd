package engine

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Translator rewrites paths between the view of a containerized worker
// and the view of the host engine.
//
// A worker that itself runs in a container sees the shared work dir at
// ContainerWorkDir, but the engine daemon resolves bind sources on the
// host, where the same dir is HostWorkDir. Every bind source the worker
// generates must go through Translate before reaching the engine
// (sibling containers, not nested ones).
type Translator struct {
	// ContainerWorkDir is the work dir as the worker sees it.
	ContainerWorkDir string

	// HostWorkDir is the same dir as the engine host sees it.
	HostWorkDir string
}

// Identity translates nothing. For process runners and workers running
// directly on the host.
func Identity() Translator {
	return Translator{}
}

func (t Translator) isIdentity() bool {
	return t.ContainerWorkDir == "" || t.ContainerWorkDir == t.HostWorkDir
}

// Translate converts a worker-side path into the host-side path.
//
// Paths outside ContainerWorkDir are an error: the engine host has no
// way to reach them.
func (t Translator) Translate(containerPath string) (string, error) {
	if t.isIdentity() {
		return containerPath, nil
	}

	rel, err := filepath.Rel(t.ContainerWorkDir, containerPath)
	if err != nil {
		return "", fmt.Errorf(
			`path "%s" is not under work dir "%s": %w`,
			containerPath, t.ContainerWorkDir, err,
		)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf(
			`path "%s" is not under work dir "%s"`,
			containerPath, t.ContainerWorkDir,
		)
	}

	return filepath.Join(t.HostWorkDir, rel), nil
}

// TranslateBind rewrites the source of a "src:dst[:opts]" bind spec.
func (t Translator) TranslateBind(bind string) (string, error) {
	parts := strings.SplitN(bind, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf(`bind "%s" has no destination`, bind)
	}
	src, err := t.Translate(parts[0])
	if err != nil {
		return "", err
	}
	return src + ":" + parts[1], nil
}
