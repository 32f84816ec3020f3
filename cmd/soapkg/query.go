package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/OFFIS-RIT/soapkg/pkg/common"
	"github.com/OFFIS-RIT/soapkg/pkg/graph"

	"github.com/spf13/cobra"
)

var (
	queryText          string
	queryType          string
	queryCategory      string
	queryMinConfidence float64
	queryDocument      string
	queryPatient       string
	queryRelation      string
	queryDirection     string
	queryDepth         int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the stored graph",
	Long: `Query the stored graph.

Examples:
  soapkg query entities --type MEDICATION --category PLAN
  soapkg query neighbors aspirin --relation TREATS
  soapkg query neighbors mi --depth 2
  soapkg query path aspirin "chest pain"
  soapkg query communities`,
}

var queryEntitiesCmd = &cobra.Command{
	Use:   "entities",
	Short: "List entities matching all given filters",
	Args:  cobra.NoArgs,
	RunE:  runQueryEntities,
}

var queryNeighborsCmd = &cobra.Command{
	Use:   "neighbors <entity text>",
	Short: "List the entities linked to an entity",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueryNeighbors,
}

var queryCommunitiesCmd = &cobra.Command{
	Use:   "communities",
	Short: "Group entities into densely connected communities",
	Args:  cobra.NoArgs,
	RunE:  runQueryCommunities,
}

var queryPathCmd = &cobra.Command{
	Use:   "path <from text> <to text>",
	Short: "Find a shortest path between two entities, ignoring direction",
	Args:  cobra.ExactArgs(2),
	RunE:  runQueryPath,
}

func init() {
	ef := queryEntitiesCmd.Flags()
	ef.StringVar(&queryText, "text", "", "substring of the entity text")
	ef.StringVar(&queryType, "type", "", "entity type, e.g. MEDICATION")
	ef.StringVar(&queryCategory, "category", "", "SOAP category, e.g. PLAN or P")
	ef.Float64Var(&queryMinConfidence, "min-confidence", 0, "minimum entity confidence")
	ef.StringVar(&queryDocument, "document", "", "only entities observed in this document")
	ef.StringVar(&queryPatient, "patient", "", "only entities observed in this patient's documents")

	nf := queryNeighborsCmd.Flags()
	nf.StringVar(&queryRelation, "relation", "", "only follow relationships of this type")
	nf.StringVar(&queryDirection, "direction", "both", "out, in or both")
	nf.IntVar(&queryDepth, "depth", 1, "maximum number of hops; above one lists entities with their distance")

	queryCmd.AddCommand(queryEntitiesCmd, queryNeighborsCmd, queryPathCmd, queryCommunitiesCmd)
}

func openBuilder(ctx context.Context) (*graph.Builder, error) {
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer closeStore()
	return loadBuilder(ctx, st, false)
}

func writeResult(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func entityByText(b *graph.Builder, text string) (common.Entity, error) {
	e, ok := b.EntityByText(text)
	if !ok {
		return common.Entity{}, fmt.Errorf("no entity with text %q", text)
	}
	return e, nil
}

func parseDirection(s string) (graph.Direction, error) {
	switch s {
	case "out":
		return graph.Outgoing, nil
	case "in":
		return graph.Incoming, nil
	case "both", "":
		return graph.Both, nil
	default:
		return 0, fmt.Errorf("unknown direction %q", s)
	}
}

func runQueryEntities(cmd *cobra.Command, args []string) error {
	q := graph.EntityQuery{
		Text:          queryText,
		MinConfidence: queryMinConfidence,
		DocumentID:    queryDocument,
		PatientID:     queryPatient,
	}
	if queryType != "" {
		t, err := common.ParseEntityType(queryType)
		if err != nil {
			return err
		}
		q.Type = t
	}
	if queryCategory != "" {
		c, err := common.ParseSOAPCategory(queryCategory)
		if err != nil {
			return err
		}
		q.Category = c
	}

	b, err := openBuilder(cmd.Context())
	if err != nil {
		return err
	}
	entities := b.QueryEntities(q)
	if entities == nil {
		entities = []common.Entity{}
	}
	return writeResult(cmd.OutOrStdout(), entities)
}

func runQueryNeighbors(cmd *cobra.Command, args []string) error {
	dir, err := parseDirection(queryDirection)
	if err != nil {
		return err
	}
	var relType common.RelationType
	if queryRelation != "" {
		relType, err = common.ParseRelationType(queryRelation)
		if err != nil {
			return err
		}
	}

	b, err := openBuilder(cmd.Context())
	if err != nil {
		return err
	}
	e, err := entityByText(b, args[0])
	if err != nil {
		return err
	}

	if queryDepth > 1 {
		if relType != "" {
			return fmt.Errorf("--relation cannot be combined with --depth above one")
		}
		within := b.NeighborsWithin(e.ID, queryDepth, dir)
		if within == nil {
			within = []graph.DistantEntity{}
		}
		return writeResult(cmd.OutOrStdout(), within)
	}

	neighbors := []graph.Neighbor{}
	for _, n := range b.Neighbors(e.ID, dir) {
		if relType != "" && n.Relationship.Type != relType {
			continue
		}
		neighbors = append(neighbors, n)
	}
	return writeResult(cmd.OutOrStdout(), neighbors)
}

func runQueryPath(cmd *cobra.Command, args []string) error {
	b, err := openBuilder(cmd.Context())
	if err != nil {
		return err
	}
	from, err := entityByText(b, args[0])
	if err != nil {
		return err
	}
	to, err := entityByText(b, args[1])
	if err != nil {
		return err
	}

	path, ok := b.ShortestPath(from.ID, to.ID)
	if !ok {
		return fmt.Errorf("no path between %q and %q", from.Text, to.Text)
	}
	return writeResult(cmd.OutOrStdout(), path)
}

func runQueryCommunities(cmd *cobra.Command, args []string) error {
	b, err := openBuilder(cmd.Context())
	if err != nil {
		return err
	}

	type member struct {
		ID   string            `json:"id"`
		Text string            `json:"text"`
		Type common.EntityType `json:"type"`
	}
	out := [][]member{}
	for _, ids := range b.Communities() {
		c := make([]member, 0, len(ids))
		for _, id := range ids {
			e, _ := b.Entity(id)
			c = append(c, member{ID: e.ID, Text: e.Text, Type: e.Type})
		}
		out = append(out, c)
	}
	return writeResult(cmd.OutOrStdout(), out)
}
