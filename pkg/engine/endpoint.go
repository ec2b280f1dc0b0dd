package engine

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Well-known engine socket paths. Podman serves a Docker-compatible API,
// so pointing a Docker client at its socket is all the "emulation" there is.
const (
	DockerDefaultSocket = "/var/run/docker.sock"
	PodmanRootSocket    = "/run/podman/podman.sock"

	// relative to $XDG_RUNTIME_DIR
	podmanRootlessSocket = "podman/podman.sock"
)

// Endpoint is a resolved container engine API endpoint.
type Endpoint struct {
	// Scheme is "unix" or "tcp".
	Scheme string

	// Address is the socket path (unix) or host:port (tcp).
	Address string
}

// Host renders the endpoint in DOCKER_HOST syntax.
func (e Endpoint) Host() string {
	return e.Scheme + "://" + e.Address
}

func (e Endpoint) String() string {
	return e.Host()
}

type resolveConfig struct {
	getenv func(string) string
	exists func(string) bool
}

type ResolveOption func(*resolveConfig) *resolveConfig

// WithGetenv replaces the environment lookup. For tests.
func WithGetenv(getenv func(string) string) ResolveOption {
	return func(c *resolveConfig) *resolveConfig {
		c.getenv = getenv
		return c
	}
}

// WithStat replaces the socket-existence check. For tests.
func WithStat(exists func(string) bool) ResolveOption {
	return func(c *resolveConfig) *resolveConfig {
		c.exists = exists
		return c
	}
}

// ResolveEndpoint finds the container engine endpoint to talk to.
//
// Resolution order:
//
//  1. explicit (from config), when not empty
//  2. $DOCKER_HOST
//  3. $CONTAINER_HOST (Podman's spelling of the same knob)
//  4. rootless Podman socket under $XDG_RUNTIME_DIR, when it exists
//  5. rootful Podman socket, when it exists
//  6. the Docker default socket
//
// Only unix:// and tcp:// endpoints are accepted. A bare path is taken
// as a unix socket.
func ResolveEndpoint(explicit string, options ...ResolveOption) (Endpoint, error) {
	conf := &resolveConfig{
		getenv: os.Getenv,
		exists: func(p string) bool {
			_, err := os.Stat(p)
			return err == nil
		},
	}
	for _, opt := range options {
		conf = opt(conf)
	}

	for _, candidate := range []string{
		explicit,
		conf.getenv("DOCKER_HOST"),
		conf.getenv("CONTAINER_HOST"),
	} {
		if candidate == "" {
			continue
		}
		return parseHost(candidate)
	}

	if runtimeDir := conf.getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		rootless := filepath.Join(runtimeDir, podmanRootlessSocket)
		if conf.exists(rootless) {
			return Endpoint{Scheme: "unix", Address: rootless}, nil
		}
	}
	if conf.exists(PodmanRootSocket) {
		return Endpoint{Scheme: "unix", Address: PodmanRootSocket}, nil
	}

	return Endpoint{Scheme: "unix", Address: DockerDefaultSocket}, nil
}

func parseHost(host string) (Endpoint, error) {
	if strings.HasPrefix(host, "/") {
		return Endpoint{Scheme: "unix", Address: host}, nil
	}

	u, err := url.Parse(host)
	if err != nil {
		return Endpoint{}, fmt.Errorf(`cannot parse engine endpoint "%s": %w`, host, err)
	}

	switch u.Scheme {
	case "unix":
		path := u.Path
		if u.Host != "" {
			// "unix://var/run/x.sock" puts the first segment into Host
			path = "/" + u.Host + u.Path
		}
		return Endpoint{Scheme: "unix", Address: path}, nil
	case "tcp":
		if u.Host == "" {
			return Endpoint{}, fmt.Errorf(`engine endpoint "%s" has no host`, host)
		}
		return Endpoint{Scheme: "tcp", Address: u.Host}, nil
	default:
		return Endpoint{}, fmt.Errorf(
			`engine endpoint "%s": scheme "%s" is not supported (unix or tcp only)`,
			host, u.Scheme,
		)
	}
}
