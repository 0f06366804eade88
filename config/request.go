package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/smallnest/dialoggraph/pipeline"
)

// LoadRequest reads a generation request from a JSON file, or from YAML for any other
// extension.
func LoadRequest(path string) (pipeline.Request, error) {
	var req pipeline.Request

	data, err := os.ReadFile(path)
	if err != nil {
		return req, fmt.Errorf("failed to read request: %w", err)
	}

	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	} else {
		if err := yaml.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}
	return req, nil
}
