package graphdoc

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nodeflowio/nodeflow/internal/graph"
)

// LoadYAML reads a graph document from a YAML file. It accepts the same
// shape as LoadJSON (nodes/connections/version), for hosts that author
// graphs by hand alongside the teacher's YAML-based config files.
func LoadYAML(path string) (*graph.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("graphdoc: read %s: %w", path, err)
	}

	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("graphdoc: parse %s: %w", path, err)
	}
	if raw.Version != 0 && raw.Version != supportedDocumentVersion {
		return nil, fmt.Errorf("graphdoc: %s: unsupported document version %d", path, raw.Version)
	}
	return raw.toDocument(), nil
}
