package graphdoc

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nodeflowio/nodeflow/internal/graph"
)

// LoadJSON reads a graph document from a JSON file, the primary format
// spec §6.1 describes.
func LoadJSON(path string) (*graph.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("graphdoc: read %s: %w", path, err)
	}

	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("graphdoc: parse %s: %w", path, err)
	}
	if raw.Version != 0 && raw.Version != supportedDocumentVersion {
		return nil, fmt.Errorf("graphdoc: %s: unsupported document version %d", path, raw.Version)
	}
	return raw.toDocument(), nil
}
