package graph

import (
	"context"
	"fmt"
	"sync"

	"github.com/OFFIS-RIT/soapkg/internal/timing"
	"github.com/OFFIS-RIT/soapkg/pkg/ai"
	"github.com/OFFIS-RIT/soapkg/pkg/common"
	"github.com/OFFIS-RIT/soapkg/pkg/extract"
	"github.com/OFFIS-RIT/soapkg/pkg/soap"
)

// Pipeline defaults.
const (
	DefaultParallelDocuments = 4
	DefaultChunkTokens       = 512
	DefaultMinConfidence     = 0.3
)

// Checkpointer persists graph snapshots during a run. store.SnapshotStore
// implementations satisfy it.
type Checkpointer interface {
	Save(ctx context.Context, snap common.GraphSnapshot) error
}

// GraphClient runs the extraction pipeline over clinical documents and
// merges the results into a Builder. It manages document parallelism,
// section detection, token windows and periodic checkpoints.
//
// A GraphClient should be created using NewGraphClient.
type GraphClient struct {
	entities      extract.EntityExtractor
	relations     extract.RelationshipExtractor
	categorizer   *soap.Categorizer
	builder       *Builder
	checkpointer  Checkpointer
	checkpointMu  sync.Mutex
	timings       *timing.Recorder
	tokenEncoder  string
	parallelDocs  int
	chunkTokens   int
	minConfidence float64
	checkpointN   int
	splitSections bool
}

// NewGraphClientParams defines the configuration parameters for creating
// a new GraphClient.
//
// EntityExtractor and RelationshipExtractor default to the rule based
// extractors. Builder defaults to an empty graph. ChunkTokens bounds the
// size of an extraction window, counted with TokenEncoder. Documents with
// a SectionHint are used as a whole; others are split at known section
// headers unless DisableSectionDetection is set. Every CheckpointInterval
// finished documents the graph is saved through Checkpointer.
type NewGraphClientParams struct {
	EntityExtractor         extract.EntityExtractor
	RelationshipExtractor   extract.RelationshipExtractor
	Categorizer             *soap.Categorizer
	Builder                 *Builder
	Checkpointer            Checkpointer
	Timings                 *timing.Recorder
	TokenEncoder            string
	ParallelDocuments       int
	ChunkTokens             int
	MinConfidence           float64
	CheckpointInterval      int
	DisableSectionDetection bool
}

// NewGraphClient creates and returns a new GraphClient configured with
// the provided parameters.
//
// Example:
//
//	client, err := graph.NewGraphClient(graph.NewGraphClientParams{
//		TokenEncoder:      "o200k_base",
//		ParallelDocuments: 4,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
func NewGraphClient(params NewGraphClientParams) (*GraphClient, error) {
	if params.MinConfidence < 0 || params.MinConfidence > 1 {
		return nil, fmt.Errorf("min confidence %v out of range [0,1]", params.MinConfidence)
	}
	if params.CheckpointInterval < 0 {
		return nil, fmt.Errorf("checkpoint interval must not be negative, got %d", params.CheckpointInterval)
	}

	g := &GraphClient{
		entities:      params.EntityExtractor,
		relations:     params.RelationshipExtractor,
		categorizer:   params.Categorizer,
		builder:       params.Builder,
		checkpointer:  params.Checkpointer,
		timings:       params.Timings,
		tokenEncoder:  params.TokenEncoder,
		parallelDocs:  params.ParallelDocuments,
		chunkTokens:   params.ChunkTokens,
		minConfidence: params.MinConfidence,
		checkpointN:   params.CheckpointInterval,
		splitSections: !params.DisableSectionDetection,
	}

	if g.entities == nil {
		g.entities = extract.NewRuleEntityExtractor()
	}
	if g.relations == nil {
		g.relations = extract.NewRuleRelationshipExtractor(extract.NewRelationshipExtractorParams{})
	}
	if g.categorizer == nil {
		g.categorizer = soap.NewCategorizer()
	}
	if g.builder == nil {
		g.builder = NewBuilder(NewBuilderParams{})
	}
	if g.timings == nil {
		g.timings = timing.NewRecorder()
	}
	if g.tokenEncoder == "" {
		g.tokenEncoder = ai.DefaultEncoding
	}
	if g.parallelDocs <= 0 {
		g.parallelDocs = DefaultParallelDocuments
	}
	if g.chunkTokens <= 0 {
		g.chunkTokens = DefaultChunkTokens
	}

	return g, nil
}

// Builder returns the graph the client ingests into.
func (g *GraphClient) Builder() *Builder {
	return g.builder
}

// Timings returns the per stage processing times of all runs so far.
func (g *GraphClient) Timings() map[string]timing.StageStats {
	return g.timings.Stages()
}

func (g *GraphClient) countTokens(s string) int {
	return ai.CountTokens(g.tokenEncoder, s)
}
