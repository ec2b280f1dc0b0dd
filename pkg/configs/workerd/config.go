package workerd

import (
	"time"

	"github.com/flowpool/flowpool/pkg/domain"
)

type WorkerdConfig struct {
	pool       string
	workerType domain.WorkerType
	engine     *EngineConfig
	workDir    string
	database   string

	pollInterval time.Duration
	lease        time.Duration
	heartbeat    time.Duration
}

// Pool is the work pool this worker serves.
func (c *WorkerdConfig) Pool() string {
	return c.pool
}

func (c *WorkerdConfig) WorkerType() domain.WorkerType {
	return c.workerType
}

func (c *WorkerdConfig) Engine() *EngineConfig {
	return c.engine
}

// WorkDir is the shared work directory as this worker sees it.
func (c *WorkerdConfig) WorkDir() string {
	return c.workDir
}

// Connection string for database.
func (c *WorkerdConfig) Database() string {
	return c.database
}

func (c *WorkerdConfig) PollInterval() time.Duration {
	return c.pollInterval
}

func (c *WorkerdConfig) Lease() time.Duration {
	return c.lease
}

func (c *WorkerdConfig) Heartbeat() time.Duration {
	return c.heartbeat
}

// Configuration of the container engine connection.
type EngineConfig struct {
	endpoint         string
	containerWorkDir string
	hostWorkDir      string
}

// Endpoint of the engine socket. Empty means auto-detection
// (DOCKER_HOST, CONTAINER_HOST, well-known socket paths).
func (c *EngineConfig) Endpoint() string {
	return c.endpoint
}

// ContainerWorkDir / HostWorkDir map the shared work dir between this
// worker's mount namespace and the engine host. Both empty means no
// translation.
func (c *EngineConfig) ContainerWorkDir() string {
	return c.containerWorkDir
}

func (c *EngineConfig) HostWorkDir() string {
	return c.hostWorkDir
}
