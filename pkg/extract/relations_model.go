package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/soapkg/internal/util"
	"github.com/OFFIS-RIT/soapkg/pkg/ai"
	"github.com/OFFIS-RIT/soapkg/pkg/common"
	"github.com/OFFIS-RIT/soapkg/pkg/logger"
)

type modelRelation struct {
	Source     string  `json:"source" jsonschema_description:"Text of the source entity, copied from the entity list"`
	Target     string  `json:"target" jsonschema_description:"Text of the target entity, copied from the entity list"`
	Relation   string  `json:"relation" jsonschema_description:"One of the provided relationship types"`
	Confidence float64 `json:"confidence" jsonschema_description:"Confidence between 0.0 and 1.0"`
}

type modelRelationResponse struct {
	Relationships []modelRelation `json:"relationships" jsonschema_description:"Relationships between the listed entities"`
}

func (r *modelRelationResponse) Validate() error {
	if r.Relationships == nil {
		return errors.New("answer has no relationships list")
	}
	return nil
}

// ModelRelationshipExtractor asks a remote model for relationships between
// already extracted entities and falls back to rules on failure.
type ModelRelationshipExtractor struct {
	client      *ai.ResilientClient
	fallback    *RuleRelationshipExtractor
	maxEntities int
	opts        []ai.GenerateOption
}

func NewModelRelationshipExtractor(
	params NewRelationshipExtractorParams,
	fallback *RuleRelationshipExtractor,
) *ModelRelationshipExtractor {
	if fallback == nil {
		fallback = NewRuleRelationshipExtractor(params)
	}
	maxEntities := params.MaxEntities
	if maxEntities <= 0 {
		maxEntities = DefaultMaxEntities
	}
	return &ModelRelationshipExtractor{
		client:      params.Client,
		fallback:    fallback,
		maxEntities: maxEntities,
		opts:        params.Options,
	}
}

func relationTypeList() string {
	names := make([]string, len(common.RelationTypes))
	for i, t := range common.RelationTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ",")
}

func (m *ModelRelationshipExtractor) Extract(
	ctx context.Context,
	text string,
	entities []common.CandidateEntity,
) RelationResult {
	ents := m.fallback.selectEntities(text, entities)
	if len(ents) < 2 {
		return RelationResult{}
	}

	var list strings.Builder
	for _, e := range ents {
		fmt.Fprintf(&list, "- %s (%s)\n", e.Text, e.Type)
	}
	types := relationTypeList()
	systemPrompt := fmt.Sprintf(ai.ExtractRelationshipsPrompt, types, list.String(), types)
	opts := append([]ai.GenerateOption{ai.WithSystemPrompts(systemPrompt)}, m.opts...)

	var res modelRelationResponse
	err := m.client.CompleteJSON(
		ctx,
		"extract_clinical_relationships",
		"Extract relationships between clinical entities of a note.",
		text,
		&res,
		opts...,
	)
	if err != nil {
		logger.Warn("[Extract] Model relationship extraction failed, falling back to rules", "err", err)
		return RelationResult{
			Relationships: m.fallback.ExtractCandidates(text, ents),
			Degraded:      true,
		}
	}

	rels, discarded := resolveModelRelations(ents, res.Relationships)
	if discarded > 0 {
		logger.Debug("[Extract] Discarded model relationships", "discarded", discarded)
	}
	return RelationResult{Relationships: rels, Discarded: discarded}
}

// resolveModelRelations keeps relationships whose type is known and whose
// endpoints name entities of the given list.
func resolveModelRelations(
	ents []common.CandidateEntity,
	raw []modelRelation,
) ([]common.CandidateRelationship, int) {
	byKey := make(map[string]common.CandidateEntity, len(ents))
	for _, e := range ents {
		key := util.NormalizeKey(e.Text)
		if _, ok := byKey[key]; !ok {
			byKey[key] = e
		}
	}

	discarded := 0
	out := make([]common.CandidateRelationship, 0, len(raw))
	for _, r := range raw {
		relType, err := common.ParseRelationType(r.Relation)
		if err != nil {
			discarded++
			continue
		}
		sourceKey, targetKey := util.NormalizeKey(r.Source), util.NormalizeKey(r.Target)
		source, okS := byKey[sourceKey]
		target, okT := byKey[targetKey]
		if !okS || !okT || sourceKey == targetKey {
			discarded++
			continue
		}

		confidence := r.Confidence
		if confidence == 0 {
			confidence = defaultModelConfidence
		}
		first, last := source, target
		if target.Span.Start < source.Span.Start {
			first, last = target, source
		}
		out = append(out, newCandidateRelationship(
			source, target, relType, clampConfidence(confidence), common.MethodModel, first, last,
		))
	}

	return dedupeRelationships(out), discarded
}
