package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/OFFIS-RIT/soapkg/pkg/common"
)

const graphMLNamespace = "http://graphml.graphdrawing.org/xmlns"

type graphML struct {
	XMLName xml.Name     `xml:"graphml"`
	XMLNS   string       `xml:"xmlns,attr"`
	Keys    []graphMLKey `xml:"key"`
	Graph   graphMLGraph `xml:"graph"`
}

type graphMLKey struct {
	ID       string `xml:"id,attr"`
	For      string `xml:"for,attr"`
	AttrName string `xml:"attr.name,attr"`
	AttrType string `xml:"attr.type,attr"`
}

type graphMLGraph struct {
	ID          string        `xml:"id,attr"`
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []graphMLNode `xml:"node"`
	Edges       []graphMLEdge `xml:"edge"`
}

type graphMLNode struct {
	ID   string        `xml:"id,attr"`
	Data []graphMLData `xml:"data"`
}

type graphMLEdge struct {
	ID     string        `xml:"id,attr"`
	Source string        `xml:"source,attr"`
	Target string        `xml:"target,attr"`
	Data   []graphMLData `xml:"data"`
}

type graphMLData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

var graphMLKeys = []graphMLKey{
	{ID: "n_text", For: "node", AttrName: "text", AttrType: "string"},
	{ID: "n_type", For: "node", AttrName: "type", AttrType: "string"},
	{ID: "n_soap", For: "node", AttrName: "soap_category", AttrType: "string"},
	{ID: "n_conf", For: "node", AttrName: "confidence", AttrType: "double"},
	{ID: "n_refs", For: "node", AttrName: "source_refs", AttrType: "int"},
	{ID: "e_type", For: "edge", AttrName: "type", AttrType: "string"},
	{ID: "e_soap", For: "edge", AttrName: "soap_category", AttrType: "string"},
	{ID: "e_conf", For: "edge", AttrName: "confidence", AttrType: "double"},
	{ID: "e_refs", For: "edge", AttrName: "source_refs", AttrType: "int"},
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// WriteGraphML writes snap as a directed GraphML document. Nodes carry
// text, type, SOAP category and confidence; edges carry type, SOAP category
// and confidence.
func WriteGraphML(w io.Writer, snap common.GraphSnapshot) error {
	doc := graphML{
		XMLNS: graphMLNamespace,
		Keys:  graphMLKeys,
		Graph: graphMLGraph{
			ID:          "soap-kg",
			EdgeDefault: "directed",
			Nodes:       make([]graphMLNode, 0, len(snap.Entities)),
			Edges:       make([]graphMLEdge, 0, len(snap.Relationships)),
		},
	}

	for _, e := range snap.Entities {
		doc.Graph.Nodes = append(doc.Graph.Nodes, graphMLNode{
			ID: e.ID,
			Data: []graphMLData{
				{Key: "n_text", Value: e.Text},
				{Key: "n_type", Value: string(e.Type)},
				{Key: "n_soap", Value: string(e.SOAPCategory)},
				{Key: "n_conf", Value: formatFloat(e.Confidence)},
				{Key: "n_refs", Value: strconv.Itoa(len(e.SourceRefs))},
			},
		})
	}
	for _, r := range snap.Relationships {
		doc.Graph.Edges = append(doc.Graph.Edges, graphMLEdge{
			ID:     r.ID,
			Source: r.SourceID,
			Target: r.TargetID,
			Data: []graphMLData{
				{Key: "e_type", Value: string(r.Type)},
				{Key: "e_soap", Value: string(r.SOAPCategory)},
				{Key: "e_conf", Value: formatFloat(r.Confidence)},
				{Key: "e_refs", Value: strconv.Itoa(len(r.SourceRefs))},
			},
		})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("failed to write graphml header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to write graphml export: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to flush graphml export: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}
