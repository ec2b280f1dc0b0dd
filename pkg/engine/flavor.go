package engine

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// Flavor names the engine behind a Docker-compatible socket.
type Flavor string

const (
	Docker  Flavor = "docker"
	Podman  Flavor = "podman"
	Unknown Flavor = "unknown"
)

func (f Flavor) String() string {
	return string(f)
}

// DetectFlavor pings the Engine API at ep and tells Docker from Podman.
//
// Podman identifies itself in the ping response headers
// (`Libpod-API-Version`, and a `Server: Libpod/...` banner); anything
// else answering /_ping is taken as Docker.
func DetectFlavor(ctx context.Context, ep Endpoint) (Flavor, error) {
	httpc := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				d := net.Dialer{Timeout: 2 * time.Second}
				if ep.Scheme == "unix" {
					return d.DialContext(ctx, "unix", ep.Address)
				}
				return d.DialContext(ctx, "tcp", ep.Address)
			},
		},
	}

	// host part is a placeholder for unix sockets
	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, "http://engine/_ping", nil,
	)
	if err != nil {
		return Unknown, err
	}

	resp, err := httpc.Do(req)
	if err != nil {
		return Unknown, fmt.Errorf("pinging engine at %s: %w", ep, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Unknown, fmt.Errorf(
			"engine at %s answered ping with status %d", ep, resp.StatusCode,
		)
	}

	if resp.Header.Get("Libpod-API-Version") != "" ||
		strings.Contains(strings.ToLower(resp.Header.Get("Server")), "libpod") {
		return Podman, nil
	}
	return Docker, nil
}
