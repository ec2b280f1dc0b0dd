package arrayd

import (
	"os"

	"gopkg.in/yaml.v3"
)

// load arrayd config from a file.
func LoadArraydConfig(filepath string) (*ArraydConfig, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

func Unmarshal(conf []byte) (out *ArraydConfig, err error) {
	var _out *ArraydConfigMarshall
	err = yaml.Unmarshal(conf, &_out)
	if err != nil {
		return nil, err
	}
	out = TrySeal(_out)
	return out, nil
}
