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

// defaultModelConfidence is used when the model omits a confidence.
const defaultModelConfidence = 0.8

type modelEntity struct {
	Text       string  `json:"text" jsonschema_description:"The entity exactly as written in the note"`
	Type       string  `json:"type" jsonschema_description:"One of the provided entity types"`
	Confidence float64 `json:"confidence" jsonschema_description:"Confidence between 0.0 and 1.0"`
}

type modelEntityResponse struct {
	Entities []modelEntity `json:"entities" jsonschema_description:"Clinical entities found in the note"`
}

// Validate rejects answers without an entities list, such as null or an
// error object.
func (r *modelEntityResponse) Validate() error {
	if r.Entities == nil {
		return errors.New("answer has no entities list")
	}
	return nil
}

// ModelEntityExtractor asks a remote model for entities and falls back to
// its rule extractor when the model cannot be reached or answers garbage.
type ModelEntityExtractor struct {
	client        *ai.ResilientClient
	fallback      *RuleEntityExtractor
	maxTextLength int
	opts          []ai.GenerateOption
}

func NewModelEntityExtractor(params NewEntityExtractorParams, fallback *RuleEntityExtractor) *ModelEntityExtractor {
	maxLen := params.MaxTextLength
	if maxLen <= 0 {
		maxLen = DefaultMaxTextLength
	}
	if fallback == nil {
		fallback = NewRuleEntityExtractor()
	}
	return &ModelEntityExtractor{
		client:        params.Client,
		fallback:      fallback,
		maxTextLength: maxLen,
		opts:          params.Options,
	}
}

func entityTypeList() string {
	names := make([]string, len(common.EntityTypes))
	for i, t := range common.EntityTypes {
		names[i] = string(t)
	}
	return strings.Join(names, ",")
}

func (m *ModelEntityExtractor) Extract(
	ctx context.Context,
	text string,
	ec common.ExtractionContext,
) EntityResult {
	if strings.TrimSpace(text) == "" {
		return EntityResult{}
	}
	text = util.TruncateRunes(text, m.maxTextLength)

	types := entityTypeList()
	systemPrompt := fmt.Sprintf(ai.ExtractEntitiesPrompt, types, ec.SectionHint, types)
	opts := append([]ai.GenerateOption{ai.WithSystemPrompts(systemPrompt)}, m.opts...)

	var res modelEntityResponse
	err := m.client.CompleteJSON(
		ctx,
		"extract_clinical_entities",
		"Extract clinical entities from a section of a clinical note.",
		text,
		&res,
		opts...,
	)
	if err != nil {
		logger.Warn("[Extract] Model entity extraction failed, falling back to rules", "document", ec.DocumentID, "err", err)
		out := m.fallback.Extract(ctx, text, ec)
		out.Degraded = true
		return out
	}

	entities, dropped := locateEntities(text, res.Entities)
	if dropped > 0 {
		logger.Debug("[Extract] Dropped model entities", "document", ec.DocumentID, "dropped", dropped)
	}
	return EntityResult{Entities: entities}
}

// locateEntities maps model output onto spans of text. Entities with an
// unknown type or whose text does not occur in the source are dropped.
// Repeated mentions are assigned successive occurrences.
func locateEntities(text string, raw []modelEntity) ([]common.CandidateEntity, int) {
	lower := strings.ToLower(text)
	searchable := len(lower) == len(text)
	cursor := map[string]int{}
	seen := map[common.Span]struct{}{}

	dropped := 0
	out := make([]common.CandidateEntity, 0, len(raw))
	for _, e := range raw {
		mention := strings.TrimSpace(e.Text)
		typ, err := common.ParseEntityType(e.Type)
		if mention == "" || err != nil {
			dropped++
			continue
		}

		haystack, needle := text, mention
		if searchable {
			haystack, needle = lower, strings.ToLower(mention)
		}

		start := cursor[needle]
		idx := strings.Index(haystack[start:], needle)
		if idx >= 0 {
			idx += start
		} else {
			idx = strings.Index(haystack, needle)
		}
		if idx < 0 {
			dropped++
			continue
		}

		span := common.Span{Start: idx, End: idx + len(needle)}
		cursor[needle] = span.End
		if _, dup := seen[span]; dup {
			continue
		}
		seen[span] = struct{}{}

		confidence := e.Confidence
		if confidence == 0 {
			confidence = defaultModelConfidence
		}
		out = append(out, common.CandidateEntity{
			Text:       text[span.Start:span.End],
			Type:       typ,
			Span:       span,
			Confidence: clampConfidence(confidence),
			Method:     common.MethodModel,
		})
	}

	return out, dropped
}
