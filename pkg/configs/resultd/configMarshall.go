package resultd

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

type ResultdConfigMarshall struct {
	Upstream string               `yaml:"upstream"`
	Serve    *ServeConfigMarshall `yaml:"serve"`
	Store    *StoreConfigMarshall `yaml:"store"`
	Backoff  string               `yaml:"backoff,omitempty"`
}

var _ Marshalled[*ResultdConfig] = &ResultdConfigMarshall{}

func (m *ResultdConfigMarshall) trySeal(path string) *ResultdConfig {
	return &ResultdConfig{
		upstream: required(m.Upstream, path+".upstream"),
		serve:    nonnil(m.Serve, path+".serve").trySeal(path + ".serve"),
		store:    nonnil(m.Store, path+".store").trySeal(path + ".store"),
		backoff:  duration(m.Backoff, 5*time.Second, path+".backoff"),
	}
}

type ServeConfigMarshall struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

func (m *ServeConfigMarshall) trySeal(path string) *ServeConfig {
	return &ServeConfig{
		port: required(m.Port, path+".port"),
		path: required(m.Path, path+".path"),
	}
}

type StoreConfigMarshall struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"apiKey,omitempty"`
}

func (m *StoreConfigMarshall) trySeal(path string) *StoreConfig {
	return &StoreConfig{
		url:    required(m.URL, path+".url"),
		apiKey: m.APIKey,
	}
}

func nonnil[T any](v *T, path string) *T {
	if v == nil {
		panic(path + " is required")
	}
	return v
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
