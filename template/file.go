package template

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// templateFile is the YAML layout read by LoadFile:
//
//	templates:
//	  - name: SpokenCaps
//	    prompt: text
//	    audio: speech.path
//	    prefix: "Generate: "
type templateFile struct {
	Templates []FieldTemplate `yaml:"templates"`
}

// LoadFile reads field templates from a YAML file, registers them and
// returns their names.
func LoadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file %s: %w", path, err)
	}
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse template file %s: %w", path, err)
	}

	names := make([]string, 0, len(file.Templates))
	for i := range file.Templates {
		t := file.Templates[i]
		if t.Name == "" || t.PromptPath == "" || t.AudioPath == "" {
			return nil, fmt.Errorf("template %d in %s needs name, prompt and audio", i, path)
		}
		Register(t.Name, &t)
		names = append(names, t.Name)
	}
	return names, nil
}
