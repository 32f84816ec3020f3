package extract

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/OFFIS-RIT/soapkg/internal/util"
	"github.com/OFFIS-RIT/soapkg/pkg/common"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	cueConfidence       = 0.7
	adjacentConfidence  = 0.6
	cooccurConfidence   = 0.5
	adjacentGapTokens   = 2
	cooccurWindowFactor = 3
	patternCacheSize    = 64
)

// cueRule links an earlier entity (first) to a later one (second) when one
// of the cue phrases occurs in the text between them. With reverse set the
// later entity becomes the relationship source. A rule without cues fires
// on adjacency (at most adjacentGapTokens tokens between both spans).
type cueRule struct {
	first      []common.EntityType
	second     []common.EntityType
	cues       []string
	relation   common.RelationType
	reverse    bool
	numeric    bool
	confidence float64
}

var (
	therapies  = []common.EntityType{common.EntityMedication, common.EntityProcedure, common.EntityTreatment}
	conditions = []common.EntityType{common.EntityDisease, common.EntitySymptom}
	findings   = []common.EntityType{common.EntityLabValue, common.EntityVitalSign, common.EntityProcedure, common.EntitySymptom}
	measures   = []common.EntityType{common.EntityLabValue, common.EntityVitalSign}
)

// Rules are tried in order; the first match wins for an ordered pair.
var defaultCueRules = []cueRule{
	{
		first:    therapies,
		second:   conditions,
		cues:     []string{"for", "given for", "prescribed for", "started for", "to treat", "treats", "treatment for", "treatment of", "for presumed", "for suspected", "for possible"},
		relation: common.RelationTreats,
	},
	{
		first:    conditions,
		second:   therapies,
		cues:     []string{"treated with", "started on", "managed with", "given", "received", "requiring", "improved with", "responded to"},
		relation: common.RelationTreats,
		reverse:  true,
	},
	{
		first:    []common.EntityType{common.EntityDisease},
		second:   conditions,
		cues:     []string{"causes", "caused", "causing", "leads to", "led to", "leading to", "results in", "resulting in", "complicated by"},
		relation: common.RelationCauses,
	},
	{
		first:    conditions,
		second:   []common.EntityType{common.EntityDisease},
		cues:     []string{"due to", "secondary to", "caused by", "from", "in setting of", "attributed to"},
		relation: common.RelationCauses,
		reverse:  true,
	},
	{
		first:    []common.EntityType{common.EntityDisease},
		second:   []common.EntityType{common.EntityProcedure, common.EntityLabValue},
		cues:     []string{"diagnosed by", "diagnosed with", "confirmed by", "confirmed on", "seen on", "noted on", "evident on"},
		relation: common.RelationDiagnosedWith,
	},
	{
		first:    findings,
		second:   []common.EntityType{common.EntityDisease},
		cues:     []string{"indicates", "indicating", "indicative of", "suggests", "suggesting", "suggestive of", "consistent with", "concerning for", "shows", "showed", "revealed"},
		relation: common.RelationIndicates,
	},
	{
		first:    []common.EntityType{common.EntityDisease},
		second:   []common.EntityType{common.EntitySymptom},
		cues:     []string{"presents with", "presented with", "presenting with", "with", "associated with", "manifesting as"},
		relation: common.RelationHasSymptom,
	},
	{
		first:      []common.EntityType{common.EntityAnatomy},
		second:     conditions,
		relation:   common.RelationLocatedIn,
		reverse:    true,
		confidence: adjacentConfidence,
	},
	{
		first:    conditions,
		second:   []common.EntityType{common.EntityAnatomy},
		cues:     []string{"in", "of", "in the", "of the", "located in", "involving", "over the", "radiating to"},
		relation: common.RelationLocatedIn,
	},
	{
		first:    conditions,
		second:   measures,
		cues:     []string{"monitored with", "measured by", "followed by", "followed with", "trended", "tracked with"},
		relation: common.RelationMeasuredBy,
	},
	{
		first:      measures,
		second:     measures,
		relation:   common.RelationMeasuredBy,
		numeric:    true,
		confidence: adjacentConfidence,
	},
}

type cooccurRule struct {
	source   common.EntityType
	target   common.EntityType
	relation common.RelationType
}

var defaultCooccurRules = []cooccurRule{
	{source: common.EntityMedication, target: common.EntityDisease, relation: common.RelationTreats},
	{source: common.EntityProcedure, target: common.EntityDisease, relation: common.RelationTreats},
	{source: common.EntityDisease, target: common.EntitySymptom, relation: common.RelationHasSymptom},
	{source: common.EntityLabValue, target: common.EntityDisease, relation: common.RelationIndicates},
	{source: common.EntityVitalSign, target: common.EntityDisease, relation: common.RelationIndicates},
}

// RuleRelationshipExtractor proposes relationships from cue phrases between
// two entity mentions of the same sentence, plus optional co-occurrence
// rules. Output is deterministic for identical input.
type RuleRelationshipExtractor struct {
	rules        []cueRule
	cooccur      []cooccurRule
	windowTokens int
	maxEntities  int
	maxPairs     int

	patterns *lru.Cache[string, *regexp.Regexp]
}

func NewRuleRelationshipExtractor(params NewRelationshipExtractorParams) *RuleRelationshipExtractor {
	windowTokens := params.WindowTokens
	if windowTokens <= 0 {
		windowTokens = DefaultWindowTokens
	}
	maxEntities := params.MaxEntities
	if maxEntities <= 0 {
		maxEntities = DefaultMaxEntities
	}
	maxPairs := params.MaxPairs
	if maxPairs <= 0 {
		maxPairs = DefaultMaxEntityPairs
	}

	var cooccur []cooccurRule
	if !params.DisableCoOccurrence {
		cooccur = defaultCooccurRules
	}

	// only fails for a non-positive size
	patterns, _ := lru.New[string, *regexp.Regexp](patternCacheSize)

	return &RuleRelationshipExtractor{
		rules:        defaultCueRules,
		cooccur:      cooccur,
		windowTokens: windowTokens,
		maxEntities:  maxEntities,
		maxPairs:     maxPairs,
		patterns:     patterns,
	}
}

func (r *RuleRelationshipExtractor) Extract(
	ctx context.Context,
	text string,
	entities []common.CandidateEntity,
) RelationResult {
	return RelationResult{Relationships: r.ExtractCandidates(text, entities)}
}

// ExtractCandidates returns deduplicated relationship candidates between the
// given entities, whose spans must index into text.
func (r *RuleRelationshipExtractor) ExtractCandidates(
	text string,
	entities []common.CandidateEntity,
) []common.CandidateRelationship {
	ents := r.selectEntities(text, entities)
	if len(ents) < 2 {
		return nil
	}

	var out []common.CandidateRelationship
	pairs := 0
	for i := 0; i < len(ents); i++ {
		for j := i + 1; j < len(ents); j++ {
			if pairs >= r.maxPairs {
				return dedupeRelationships(out)
			}
			pairs++

			a, b := ents[i], ents[j]
			if util.NormalizeKey(a.Text) == util.NormalizeKey(b.Text) {
				continue
			}
			gap := text[a.Span.End:b.Span.Start]
			if crossesSentence(gap) {
				continue
			}

			if rel, ok := r.matchCue(a, b, gap); ok {
				out = append(out, rel)
				continue
			}
			if rel, ok := r.matchCooccurrence(a, b, gap); ok {
				out = append(out, rel)
			}
		}
	}

	return dedupeRelationships(out)
}

// selectEntities keeps the most confident entities up to the cap, drops
// spans that do not fit text and returns them in text order.
func (r *RuleRelationshipExtractor) selectEntities(
	text string,
	entities []common.CandidateEntity,
) []common.CandidateEntity {
	ents := make([]common.CandidateEntity, 0, len(entities))
	for _, e := range entities {
		if e.Span.Start < 0 || e.Span.End > len(text) || e.Span.Start >= e.Span.End {
			continue
		}
		ents = append(ents, e)
	}

	if len(ents) > r.maxEntities {
		sort.SliceStable(ents, func(i, j int) bool {
			return ents[i].Confidence > ents[j].Confidence
		})
		ents = ents[:r.maxEntities]
	}

	sort.SliceStable(ents, func(i, j int) bool {
		if ents[i].Span.Start != ents[j].Span.Start {
			return ents[i].Span.Start < ents[j].Span.Start
		}
		return ents[i].Span.End < ents[j].Span.End
	})

	// overlapping spans cannot be ordered; keep the first
	out := ents[:0]
	lastEnd := -1
	for _, e := range ents {
		if e.Span.Start < lastEnd {
			continue
		}
		out = append(out, e)
		lastEnd = e.Span.End
	}
	return out
}

func (r *RuleRelationshipExtractor) matchCue(
	a common.CandidateEntity,
	b common.CandidateEntity,
	gap string,
) (common.CandidateRelationship, bool) {
	tokens := len(strings.Fields(gap))

	for _, rule := range r.rules {
		if !hasType(rule.first, a.Type) || !hasType(rule.second, b.Type) {
			continue
		}

		if len(rule.cues) == 0 {
			if tokens > adjacentGapTokens {
				continue
			}
			if rule.numeric && !startsWithDigit(b.Text) {
				continue
			}
			if !rule.numeric && strings.TrimSpace(gap) != "" && !isFiller(gap) {
				continue
			}
		} else {
			if tokens > r.windowTokens {
				continue
			}
			if !r.cuePattern(rule.cues).MatchString(gap) {
				continue
			}
		}

		confidence := rule.confidence
		if confidence == 0 {
			confidence = cueConfidence
		}
		method := common.MethodRulesCue

		source, target := a, b
		if rule.reverse {
			source, target = b, a
		}
		return newCandidateRelationship(source, target, rule.relation, confidence, method, a, b), true
	}

	return common.CandidateRelationship{}, false
}

func (r *RuleRelationshipExtractor) matchCooccurrence(
	a common.CandidateEntity,
	b common.CandidateEntity,
	gap string,
) (common.CandidateRelationship, bool) {
	if len(r.cooccur) == 0 {
		return common.CandidateRelationship{}, false
	}
	if len(strings.Fields(gap)) > r.windowTokens*cooccurWindowFactor {
		return common.CandidateRelationship{}, false
	}

	for _, rule := range r.cooccur {
		switch {
		case a.Type == rule.source && b.Type == rule.target:
			return newCandidateRelationship(a, b, rule.relation, cooccurConfidence, common.MethodRulesCooccur, a, b), true
		case b.Type == rule.source && a.Type == rule.target:
			return newCandidateRelationship(b, a, rule.relation, cooccurConfidence, common.MethodRulesCooccur, a, b), true
		}
	}
	return common.CandidateRelationship{}, false
}

// cuePattern compiles the cue phrases into one word bounded, whitespace
// tolerant pattern. Compiled patterns are cached by their source.
func (r *RuleRelationshipExtractor) cuePattern(cues []string) *regexp.Regexp {
	src := dictionaryPattern(cues)
	if re, ok := r.patterns.Get(src); ok {
		return re
	}
	re := regexp.MustCompile(src)
	r.patterns.Add(src, re)
	return re
}

func newCandidateRelationship(
	source common.CandidateEntity,
	target common.CandidateEntity,
	relation common.RelationType,
	confidence float64,
	method string,
	first common.CandidateEntity,
	last common.CandidateEntity,
) common.CandidateRelationship {
	return common.CandidateRelationship{
		Source:     source.Ref(),
		Target:     target.Ref(),
		Type:       relation,
		Confidence: confidence,
		Span:       common.Span{Start: first.Span.Start, End: last.Span.End},
		Method:     method,
	}
}

// dedupeRelationships keeps one candidate per (source, target, type), the
// most confident one, in first-seen order.
func dedupeRelationships(rels []common.CandidateRelationship) []common.CandidateRelationship {
	index := map[string]int{}
	out := make([]common.CandidateRelationship, 0, len(rels))
	for _, rel := range rels {
		key := util.NormalizeKey(rel.Source.Text) + "\x1f" + util.NormalizeKey(rel.Target.Text) + "\x1f" + string(rel.Type)
		if i, ok := index[key]; ok {
			if rel.Confidence > out[i].Confidence {
				out[i] = rel
			}
			continue
		}
		index[key] = len(out)
		out = append(out, rel)
	}
	return out
}

func hasType(types []common.EntityType, t common.EntityType) bool {
	for _, et := range types {
		if et == t {
			return true
		}
	}
	return false
}

func crossesSentence(gap string) bool {
	if strings.ContainsAny(gap, ";!?") || strings.Contains(gap, "\n\n") {
		return true
	}
	for i := 0; i < len(gap); i++ {
		if gap[i] != '.' {
			continue
		}
		// decimal points such as "3.5" stay inside the sentence
		if i > 0 && i+1 < len(gap) && isDigit(gap[i-1]) && isDigit(gap[i+1]) {
			continue
		}
		return true
	}
	return false
}

var fillerWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "left": {}, "right": {}, "lower": {}, "upper": {}, "bilateral": {},
}

// isFiller reports whether the gap only holds articles, laterality or punctuation.
func isFiller(gap string) bool {
	for _, w := range strings.Fields(gap) {
		w = strings.ToLower(strings.TrimFunc(w, unicode.IsPunct))
		if w == "" {
			continue
		}
		if _, ok := fillerWords[w]; !ok {
			return false
		}
	}
	return true
}

func startsWithDigit(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && isDigit(s[0])
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
