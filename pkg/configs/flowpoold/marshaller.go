package flowpoold

import (
	"os"

	"gopkg.in/yaml.v3"
)

// load flowpoold config from a file.
func LoadFlowpooldConfig(filepath string) (*FlowpooldConfig, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

func Unmarshal(conf []byte) (out *FlowpooldConfig, err error) {
	var _out *FlowpooldConfigMarshall
	err = yaml.Unmarshal(conf, &_out)
	if err != nil {
		return nil, err
	}
	out = TrySeal(_out)
	return out, nil
}
