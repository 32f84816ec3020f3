package extract

import (
	"context"

	"github.com/OFFIS-RIT/soapkg/pkg/ai"
	"github.com/OFFIS-RIT/soapkg/pkg/common"
)

// Defaults taken over by the model backed extractors when a param is zero.
const (
	DefaultMaxTextLength  = 10000
	DefaultMaxTokens      = 2048
	DefaultWindowTokens   = 8
	DefaultMaxEntities    = 100
	DefaultMaxEntityPairs = 1000
)

// EntityResult is the outcome of one entity extraction. Degraded is set when
// the remote model failed and the rule based fallback produced the entities.
type EntityResult struct {
	Entities []common.CandidateEntity `json:"entities"`
	Degraded bool                     `json:"degraded"`
}

// RelationResult is the outcome of one relationship extraction. Discarded
// counts model proposals that were dropped because their type or endpoints
// were unknown.
type RelationResult struct {
	Relationships []common.CandidateRelationship `json:"relationships"`
	Degraded      bool                           `json:"degraded"`
	Discarded     int                            `json:"discarded"`
}

// EntityExtractor finds clinical entity mentions in a piece of text. It never
// fails: implementations degrade to rules instead of returning an error.
type EntityExtractor interface {
	Extract(ctx context.Context, text string, ec common.ExtractionContext) EntityResult
}

// RelationshipExtractor proposes relationships between the given entities,
// all of which were extracted from text.
type RelationshipExtractor interface {
	Extract(ctx context.Context, text string, entities []common.CandidateEntity) RelationResult
}

// NewEntityExtractorParams configures the model backed entity extractor.
type NewEntityExtractorParams struct {
	Client        *ai.ResilientClient
	MaxTextLength int
	Options       []ai.GenerateOption
}

// NewEntityExtractor returns a ModelEntityExtractor when a client is
// configured and the rule based extractor otherwise.
func NewEntityExtractor(params NewEntityExtractorParams) EntityExtractor {
	rules := NewRuleEntityExtractor()
	if params.Client == nil {
		return rules
	}
	return NewModelEntityExtractor(params, rules)
}

// NewRelationshipExtractorParams configures both relationship extractors.
type NewRelationshipExtractorParams struct {
	Client       *ai.ResilientClient
	Options      []ai.GenerateOption
	WindowTokens int
	MaxEntities  int
	MaxPairs     int
	// DisableCoOccurrence turns off the same sentence domain rules that
	// fire when no explicit cue links two entities.
	DisableCoOccurrence bool
}

// NewRelationshipExtractor returns a ModelRelationshipExtractor when a
// client is configured and the rule based extractor otherwise.
func NewRelationshipExtractor(params NewRelationshipExtractorParams) RelationshipExtractor {
	rules := NewRuleRelationshipExtractor(params)
	if params.Client == nil {
		return rules
	}
	return NewModelRelationshipExtractor(params, rules)
}

func clampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
