package workerd

import (
	"time"

	"github.com/flowpool/flowpool/pkg/domain"
)

type Marshalled[S any] interface {
	trySeal(string) S
}

// seal marshalled object.
//
// this function CAN CAUSE PANIC if misconfiguration is found.
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

// Configuration of a workerd process.
//
// This type is marshalling value and mutable.
// Consider to use immutable version, `WorkerdConfig`.
type WorkerdConfigMarshall struct {
	Pool       string                 `yaml:"pool"`
	WorkerType string                 `yaml:"workerType"`
	Engine     *EngineConfigMarshall  `yaml:"engine,omitempty"`
	WorkDir    string                 `yaml:"workDir"`
	Database   string                 `yaml:"database"`

	PollInterval string `yaml:"pollInterval,omitempty"`
	Lease        string `yaml:"lease,omitempty"`
	Heartbeat    string `yaml:"heartbeat,omitempty"`
}

var _ Marshalled[*WorkerdConfig] = &WorkerdConfigMarshall{}

func (m *WorkerdConfigMarshall) trySeal(path string) *WorkerdConfig {
	workerType, err := domain.AsWorkerType(required(m.WorkerType, path+".workerType"))
	if err != nil {
		panic(path + ".workerType: " + err.Error())
	}

	engine := m.Engine
	if engine == nil {
		engine = &EngineConfigMarshall{}
	}

	return &WorkerdConfig{
		pool:       required(m.Pool, path+".pool"),
		workerType: workerType,
		engine:     engine.trySeal(path + ".engine"),
		workDir:    required(m.WorkDir, path+".workDir"),
		database:   required(m.Database, path+".database"),

		pollInterval: duration(m.PollInterval, 3*time.Second, path+".pollInterval"),
		lease:        duration(m.Lease, 60*time.Second, path+".lease"),
		heartbeat:    duration(m.Heartbeat, 15*time.Second, path+".heartbeat"),
	}
}

type EngineConfigMarshall struct {
	Endpoint         string `yaml:"endpoint,omitempty"`
	ContainerWorkDir string `yaml:"containerWorkDir,omitempty"`
	HostWorkDir      string `yaml:"hostWorkDir,omitempty"`
}

func (m *EngineConfigMarshall) trySeal(path string) *EngineConfig {
	// the work dir mapping comes in pairs
	if (m.ContainerWorkDir == "") != (m.HostWorkDir == "") {
		panic(path + ".containerWorkDir and " + path + ".hostWorkDir are required together")
	}
	return &EngineConfig{
		endpoint:         m.Endpoint,
		containerWorkDir: m.ContainerWorkDir,
		hostWorkDir:      m.HostWorkDir,
	}
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}

func duration(v string, fallback time.Duration, path string) time.Duration {
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(path + " can not be parsed: " + err.Error())
	}
	return d
}
