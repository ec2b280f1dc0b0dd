package resultd

import (
	"os"

	"gopkg.in/yaml.v3"
)

// load resultd config from a file.
func LoadResultdConfig(filepath string) (*ResultdConfig, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

func Unmarshal(conf []byte) (out *ResultdConfig, err error) {
	var _out *ResultdConfigMarshall
	err = yaml.Unmarshal(conf, &_out)
	if err != nil {
		return nil, err
	}
	out = TrySeal(_out)
	return out, nil
}
