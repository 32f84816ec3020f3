package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/OFFIS-RIT/soapkg/pkg/common"
)

// Format names accepted by Write.
const (
	FormatJSON    = "json"
	FormatGraphML = "graphml"
)

// Graph is the node/edge list form of a snapshot.
type Graph struct {
	Nodes []common.Entity       `json:"nodes"`
	Edges []common.Relationship `json:"edges"`
}

// Write exports snap in the named format.
func Write(w io.Writer, format string, snap common.GraphSnapshot) error {
	switch format {
	case FormatJSON:
		return WriteJSON(w, snap)
	case FormatGraphML:
		return WriteGraphML(w, snap)
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// WriteJSON writes every entity and relationship, with all fields, as
// indented JSON node and edge lists.
func WriteJSON(w io.Writer, snap common.GraphSnapshot) error {
	g := Graph{
		Nodes: snap.Entities,
		Edges: snap.Relationships,
	}
	if g.Nodes == nil {
		g.Nodes = []common.Entity{}
	}
	if g.Edges == nil {
		g.Edges = []common.Relationship{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(g); err != nil {
		return fmt.Errorf("failed to write json export: %w", err)
	}
	return nil
}
