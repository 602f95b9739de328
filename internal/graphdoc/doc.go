// Package graphdoc ingests the external graph document (§6.1) — JSON or
// YAML — into internal/graph's Document shape. It follows the teacher's
// "read file, unmarshal, version-check" loader idiom
// (internal/orchestrator/loader.go, internal/config/config.go).
package graphdoc

import "github.com/nodeflowio/nodeflow/internal/graph"

const supportedDocumentVersion = 1

type rawPort struct {
	ID   string `json:"id" yaml:"id"`
	Type string `json:"type" yaml:"type"`
}

type rawNode struct {
	ID         string                 `json:"id" yaml:"id"`
	Type       string                 `json:"type" yaml:"type"`
	Inputs     []rawPort              `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs    []rawPort              `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// Field names follow spec §6.1's connections[] shape exactly
// (fromNode/fromPort/toNode/toPort), not the snake_case convention the
// rest of this document otherwise uses.
type rawConnection struct {
	FromNode string `json:"fromNode" yaml:"fromNode"`
	FromPort string `json:"fromPort" yaml:"fromPort"`
	ToNode   string `json:"toNode" yaml:"toNode"`
	ToPort   string `json:"toPort" yaml:"toPort"`
}

type rawDocument struct {
	Version     int             `json:"version" yaml:"version"`
	Nodes       []rawNode       `json:"nodes" yaml:"nodes"`
	Connections []rawConnection `json:"connections" yaml:"connections"`
}

func (r *rawDocument) toDocument() *graph.Document {
	doc := &graph.Document{
		Nodes:       make([]graph.NodeDecl, len(r.Nodes)),
		Connections: make([]graph.ConnectionDecl, len(r.Connections)),
	}
	for i, n := range r.Nodes {
		doc.Nodes[i] = graph.NodeDecl{
			ID:         n.ID,
			Type:       n.Type,
			Inputs:     toPortDecls(n.Inputs),
			Outputs:    toPortDecls(n.Outputs),
			Parameters: n.Parameters,
		}
	}
	for i, c := range r.Connections {
		doc.Connections[i] = graph.ConnectionDecl{
			FromNode: c.FromNode,
			FromPort: c.FromPort,
			ToNode:   c.ToNode,
			ToPort:   c.ToPort,
		}
	}
	return doc
}

func toPortDecls(raws []rawPort) []graph.PortDecl {
	if len(raws) == 0 {
		return nil
	}
	out := make([]graph.PortDecl, len(raws))
	for i, p := range raws {
		out[i] = graph.PortDecl{ID: p.ID, Type: p.Type}
	}
	return out
}
