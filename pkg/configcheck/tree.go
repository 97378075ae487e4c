package configcheck

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stanchionhq/stanchion/pkg/faults"
)

// Tree is a flat configuration tree: section name to key to value.
// Values are kept as strings; numeric YAML scalars are rendered with
// their literal form preserved.
type Tree map[string]map[string]string

// Lookup resolves a dotted "Section.key" path.
func (t Tree) Lookup(field string) (string, bool) {
	section, key, ok := strings.Cut(field, ".")
	if !ok {
		return "", false
	}
	keys, ok := t[section]
	if !ok {
		return "", false
	}
	value, ok := keys[key]
	return value, ok
}

// Set writes a value, creating the section if needed.
func (t Tree) Set(field, value string) {
	section, key, ok := strings.Cut(field, ".")
	if !ok {
		return
	}
	if t[section] == nil {
		t[section] = make(map[string]string)
	}
	t[section][key] = value
}

// LoadTree reads a YAML configuration file into a Tree. Read failures are
// file-operation faults; decode failures are config faults. Scalar values
// of any YAML type are flattened to strings; nested sections beyond one
// level are rejected.
func LoadTree(path string) (Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.NewFileOpError("failed to read config file", err).WithField(path)
	}

	var raw map[string]map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, faults.NewConfigError("failed to parse config file", err).WithField(path)
	}

	tree := make(Tree, len(raw))
	for section, keys := range raw {
		tree[section] = make(map[string]string, len(keys))
		for key, value := range keys {
			switch v := value.(type) {
			case map[string]interface{}:
				return nil, faults.NewConfigError("nested sections are not supported", nil).
					WithField(section + "." + key)
			case nil:
				tree[section][key] = ""
			default:
				tree[section][key] = fmt.Sprint(v)
			}
		}
	}

	return tree, nil
}
