package workerd

import (
	"os"

	"gopkg.in/yaml.v3"
)

// load workerd config from a file.
func LoadWorkerdConfig(filepath string) (*WorkerdConfig, error) {
	content, err := os.ReadFile(filepath)
	if err != nil {
		return nil, err
	}
	return Unmarshal(content)
}

func Unmarshal(conf []byte) (out *WorkerdConfig, err error) {
	var _out *WorkerdConfigMarshall
	err = yaml.Unmarshal(conf, &_out)
	if err != nil {
		return nil, err
	}
	out = TrySeal(_out)
	return out, nil
}
