package module

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk half of a module.
//
//	name: core
//	versions: ">=0.3.0 <1.0.0"
//	settings:
//	  greeting: hello
type Manifest struct {
	Name     string            `yaml:"name"`
	Versions VersionList       `yaml:"versions,omitempty"`
	Disabled bool              `yaml:"disabled,omitempty"`
	Settings map[string]string `yaml:"settings,omitempty"`
}

// VersionList accepts either a single range or a sequence of ranges.
type VersionList []string

func (v *VersionList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		*v = VersionList{s}
		return nil
	case yaml.SequenceNode:
		var ss []string
		if err := node.Decode(&ss); err != nil {
			return err
		}
		*v = ss
		return nil
	default:
		return fmt.Errorf("line %d: versions must be a string or a list of strings", node.Line)
	}
}

// ReadManifest parses the manifest at path.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("parse %s: name is required", path)
	}
	return &m, nil
}
