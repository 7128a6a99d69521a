package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// coerceToJSONBytes returns the file content as JSON plus its format name.
// YAML (by extension) is converted so both formats share one strict decoder.
func coerceToJSONBytes(path string, raw []byte) ([]byte, string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
	default:
		return raw, "json", nil
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, "yaml", fmt.Errorf("yaml config %s: %w", path, err)
	}
	if doc == nil {
		return []byte("{}"), "yaml", nil
	}
	out, err := json.Marshal(stringKeys(doc))
	if err != nil {
		return nil, "yaml", fmt.Errorf("yaml config %s: %w", path, err)
	}
	return out, "yaml", nil
}

// stringKeys rewrites non-string mapping keys (e.g. `1: x`) so the tree
// can be encoded as JSON.
func stringKeys(v any) any {
	switch node := v.(type) {
	case map[string]any:
		for k, child := range node {
			node[k] = stringKeys(child)
		}
		return node
	case map[any]any:
		conv := make(map[string]any, len(node))
		for k, child := range node {
			conv[fmt.Sprint(k)] = stringKeys(child)
		}
		return conv
	case []any:
		for i, child := range node {
			node[i] = stringKeys(child)
		}
		return node
	}
	return v
}
