package domain

import (
	"gopkg.in/yaml.v3"
)

// RunParams is the parameter document handed to a run as a YAML file.
//
// Its "io_parameters" section carries run chaining:
//
//   - uid_save: always set to the current run's ID, so the run stores its
//     outputs under its own ID.
//   - uid_retrieve: the run ID whose outputs this run reads. Filled from
//     the previous run only when the submitter left it empty.
type RunParams map[string]any

const (
	ioParametersKey = "io_parameters"
	uidSaveKey      = "uid_save"
	uidRetrieveKey  = "uid_retrieve"
)

// Chained returns a copy of p with uid_save / uid_retrieve applied for
// the run identified by runID, chained after prevRunID.
func (p RunParams) Chained(runID string, prevRunID string) RunParams {
	out := RunParams{}
	for k, v := range p {
		out[k] = v
	}

	iop := map[string]any{}
	if prev, ok := out[ioParametersKey].(map[string]any); ok {
		for k, v := range prev {
			iop[k] = v
		}
	}

	if prevRunID != "" {
		if cur, ok := iop[uidRetrieveKey].(string); !ok || cur == "" {
			iop[uidRetrieveKey] = prevRunID
		}
	}
	iop[uidSaveKey] = runID

	out[ioParametersKey] = iop
	return out
}

func (p RunParams) MarshalYAML() (any, error) {
	return map[string]any(p), nil
}

// Bytes renders the params as a YAML document.
func (p RunParams) Bytes() ([]byte, error) {
	return yaml.Marshal(map[string]any(p))
}

func ParseRunParams(b []byte) (RunParams, error) {
	p := RunParams{}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	return p, nil
}
