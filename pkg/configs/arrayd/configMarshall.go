package arrayd

type Marshalled[S any] interface {
	trySeal(string) S
}

// seal marshalled object.
//
// this function CAN CAUSE PANIC if misconfiguration is found.
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

type ArraydConfigMarshall struct {
	Port     int    `yaml:"port"`
	Root     string `yaml:"root"`
	APIKey   string `yaml:"apiKey,omitempty"`
	LogLevel string `yaml:"loglevel,omitempty"`
}

var _ Marshalled[*ArraydConfig] = &ArraydConfigMarshall{}

func (m *ArraydConfigMarshall) trySeal(path string) *ArraydConfig {
	return &ArraydConfig{
		port:     required(m.Port, path+".port"),
		root:     required(m.Root, path+".root"),
		apiKey:   m.APIKey,
		loglevel: m.LogLevel,
	}
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}
