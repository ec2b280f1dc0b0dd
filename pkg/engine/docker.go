package engine

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/go-containerregistry/pkg/name"
)

// EngineRunner starts runs as sibling containers over the Engine API.
type EngineRunner struct {
	cli *client.Client
}

var _ Runner = &EngineRunner{}

// NewEngineRunner connects to the engine at ep.
func NewEngineRunner(ep Endpoint) (*EngineRunner, error) {
	cli, err := client.NewClientWithOpts(
		client.WithHost(ep.Host()),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting engine at %s: %w", ep, err)
	}
	return &EngineRunner{cli: cli}, nil
}

func (r *EngineRunner) Start(ctx context.Context, spec RunSpec) (Handle, error) {
	ref, err := name.ParseReference(spec.Image)
	if err != nil {
		return nil, fmt.Errorf(`image "%s": %w`, spec.Image, err)
	}

	if err := r.ensureImage(ctx, ref.Name()); err != nil {
		return nil, err
	}

	env := make([]string, 0, len(spec.Env))
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}

	created, err := r.cli.ContainerCreate(
		ctx,
		&container.Config{
			Image: spec.Image,
			Cmd:   spec.Command,
			Env:   env,
		},
		&container.HostConfig{
			Binds:       spec.Binds,
			NetworkMode: container.NetworkMode(spec.Network),
		},
		nil, nil, spec.Name,
	)
	if err != nil {
		return nil, fmt.Errorf("creating container for %s: %w", spec.Name, err)
	}

	if err := r.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		// best effort: do not leak the created container
		_ = r.cli.ContainerRemove(
			context.WithoutCancel(ctx), created.ID,
			container.RemoveOptions{Force: true},
		)
		return nil, fmt.Errorf("starting container %s: %w", created.ID, err)
	}

	return &engineHandle{cli: r.cli, containerID: created.ID}, nil
}

func (r *EngineRunner) ensureImage(ctx context.Context, ref string) error {
	if _, err := r.cli.ImageInspect(ctx, ref); err == nil {
		return nil
	}

	reader, err := r.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf(`pulling image "%s": %w`, ref, err)
	}
	defer reader.Close()
	// the pull proceeds while its progress stream is consumed
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf(`pulling image "%s": %w`, ref, err)
	}
	return nil
}

type engineHandle struct {
	cli         *client.Client
	containerID string
}

var _ Handle = &engineHandle{}

func (h *engineHandle) Logs(ctx context.Context) (io.ReadCloser, error) {
	muxed, err := h.cli.ContainerLogs(ctx, h.containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return nil, err
	}

	// the engine multiplexes stdout/stderr; flatten into one stream
	pr, pw := io.Pipe()
	go func() {
		defer muxed.Close()
		_, err := stdcopy.StdCopy(pw, pw, muxed)
		pw.CloseWithError(err)
	}()
	return pr, nil
}

func (h *engineHandle) Wait(ctx context.Context) (Exit, error) {
	waitC, errC := h.cli.ContainerWait(ctx, h.containerID, container.WaitConditionNotRunning)
	select {
	case result := <-waitC:
		exit := Exit{Code: clampExitCode(result.StatusCode)}
		if result.Error != nil {
			exit.Reason = result.Error.Message
		} else if exit.Code != 0 {
			exit.Reason = fmt.Sprintf("exit code %d", result.StatusCode)
		}
		return exit, nil
	case err := <-errC:
		return Exit{}, err
	case <-ctx.Done():
		return Exit{}, ctx.Err()
	}
}

func (h *engineHandle) Stop(ctx context.Context) error {
	grace := 10 // seconds
	return h.cli.ContainerStop(ctx, h.containerID, container.StopOptions{Timeout: &grace})
}

func (h *engineHandle) Close() error {
	return h.cli.ContainerRemove(
		context.Background(), h.containerID,
		container.RemoveOptions{Force: true},
	)
}

func clampExitCode(code int64) uint8 {
	if code < 0 || 255 < code {
		return 255
	}
	return uint8(code)
}
