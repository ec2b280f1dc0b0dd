package flowpoold

import "time"

type Marshalled[S any] interface {
	trySeal(string) S
}

// seal marshalled object.
//
// this function CAN CAUSE PANIC if misconfiguration is found.
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

type FlowpooldConfigMarshall struct {
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	LogLevel string `yaml:"loglevel,omitempty"`

	RequeueInterval string `yaml:"requeueInterval,omitempty"`
}

var _ Marshalled[*FlowpooldConfig] = &FlowpooldConfigMarshall{}

func (m *FlowpooldConfigMarshall) trySeal(path string) *FlowpooldConfig {
	return &FlowpooldConfig{
		port:            required(m.Port, path+".port"),
		database:        required(m.Database, path+".database"),
		loglevel:        m.LogLevel,
		requeueInterval: duration(m.RequeueInterval, 30*time.Second, path+".requeueInterval"),
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
