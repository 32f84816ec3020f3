// Package soap assigns SOAP note categories to clinical entities and
// relationships.
package soap

import (
	"regexp"

	"github.com/OFFIS-RIT/soapkg/internal/util"
	"github.com/OFFIS-RIT/soapkg/pkg/common"
)

var defaultTypeCategories = map[common.EntityType]common.SOAPCategory{
	common.EntityDisease:    common.SOAPAssessment,
	common.EntitySymptom:    common.SOAPSubjective,
	common.EntityMedication: common.SOAPPlan,
	common.EntityProcedure:  common.SOAPPlan,
	common.EntityAnatomy:    common.SOAPObjective,
	common.EntityLabValue:   common.SOAPObjective,
	common.EntityVitalSign:  common.SOAPObjective,
	common.EntityTreatment:  common.SOAPPlan,
}

// sectionOverrides maps normalised note section titles to the category
// every entity of that section receives, whatever its type.
var sectionOverrides = map[string]common.SOAPCategory{
	"chief complaint":            common.SOAPSubjective,
	"cc":                         common.SOAPSubjective,
	"history of present illness": common.SOAPSubjective,
	"hpi":                        common.SOAPSubjective,
	"past medical history":       common.SOAPSubjective,
	"pmh":                        common.SOAPSubjective,
	"past surgical history":      common.SOAPSubjective,
	"social history":             common.SOAPSubjective,
	"family history":             common.SOAPSubjective,
	"review of systems":          common.SOAPSubjective,
	"ros":                        common.SOAPSubjective,
	"subjective":                 common.SOAPSubjective,

	"physical exam":        common.SOAPObjective,
	"physical examination": common.SOAPObjective,
	"pertinent results":    common.SOAPObjective,
	"vital signs":          common.SOAPObjective,
	"vitals":               common.SOAPObjective,
	"labs":                 common.SOAPObjective,
	"imaging":              common.SOAPObjective,
	"objective":            common.SOAPObjective,

	"discharge diagnosis": common.SOAPAssessment,
	"discharge diagnoses": common.SOAPAssessment,
	"impression":          common.SOAPAssessment,
	"assessment":          common.SOAPAssessment,
	"discharge condition": common.SOAPAssessment,
	"differential":        common.SOAPAssessment,

	"plan":                   common.SOAPPlan,
	"assessment and plan":    common.SOAPPlan,
	"discharge medications":  common.SOAPPlan,
	"discharge instructions": common.SOAPPlan,
	"discharge disposition":  common.SOAPPlan,
	"followup instructions":  common.SOAPPlan,
	"follow-up instructions": common.SOAPPlan,
}

type hintCue struct {
	category common.SOAPCategory
	re       *regexp.Regexp
}

// hintCues score free-form hints that are not in the override table.
var hintCues = []hintCue{
	{common.SOAPSubjective, regexp.MustCompile(`\b(?:patient (?:states?|reports?|complains?|describes?|denies|feels)|complaint|history|hpi|symptoms?)\b`)},
	{common.SOAPObjective, regexp.MustCompile(`\b(?:vital|vitals|exam|examination|labs?|laboratory|results?|imaging|radiology|findings)\b`)},
	{common.SOAPAssessment, regexp.MustCompile(`\b(?:diagnos[ie]s|dx|impression|assessment|differential|problem list)\b`)},
	{common.SOAPPlan, regexp.MustCompile(`\b(?:plan|treatment|therapy|management|medications?|rx|follow-?up|instructions|disposition|procedures?)\b`)},
}

// Categorizer resolves SOAP categories. The zero value is not usable; use
// NewCategorizer or the package level functions.
type Categorizer struct {
	types     map[common.EntityType]common.SOAPCategory
	overrides map[string]common.SOAPCategory
	cues      []hintCue
}

func NewCategorizer() *Categorizer {
	return &Categorizer{
		types:     defaultTypeCategories,
		overrides: sectionOverrides,
		cues:      hintCues,
	}
}

var defaultCategorizer = NewCategorizer()

// DefaultCategory returns the category of an entity type without any hint.
func DefaultCategory(t common.EntityType) common.SOAPCategory {
	if c, ok := defaultTypeCategories[t]; ok {
		return c
	}
	return common.SOAPObjective
}

// CategorizeEntity categorizes with the default Categorizer.
func CategorizeEntity(t common.EntityType, sectionHint string) common.SOAPCategory {
	return defaultCategorizer.CategorizeEntity(t, sectionHint)
}

// CategorizeRelationship categorizes with the default Categorizer.
func CategorizeRelationship(t common.RelationType, sourceCategory common.SOAPCategory) common.SOAPCategory {
	return defaultCategorizer.CategorizeRelationship(t, sourceCategory)
}

// CategorizeEntity returns the category of an entity of type t found in the
// section named by sectionHint. A known section title decides on its own;
// otherwise keyword cues in the hint are scored and the clear winner is
// taken. Without a usable hint the type default applies.
func (c *Categorizer) CategorizeEntity(t common.EntityType, sectionHint string) common.SOAPCategory {
	hint := util.NormalizeKey(sectionHint)
	if hint != "" {
		if cat, ok := c.overrides[hint]; ok {
			return cat
		}
		if cat, ok := c.scoreHint(hint); ok {
			return cat
		}
	}

	if cat, ok := c.types[t]; ok {
		return cat
	}
	return common.SOAPObjective
}

func (c *Categorizer) scoreHint(hint string) (common.SOAPCategory, bool) {
	var best common.SOAPCategory
	bestScore, tie := 0, false
	for _, cue := range c.cues {
		score := len(cue.re.FindAllStringIndex(hint, -1))
		switch {
		case score > bestScore:
			best, bestScore, tie = cue.category, score, false
		case score > 0 && score == bestScore:
			tie = true
		}
	}
	if bestScore == 0 || tie {
		return "", false
	}
	return best, true
}

// CategorizeRelationship derives the category of a relationship from its
// source entity. DIAGNOSED_WITH is always ASSESSMENT.
func (c *Categorizer) CategorizeRelationship(t common.RelationType, sourceCategory common.SOAPCategory) common.SOAPCategory {
	if t == common.RelationDiagnosedWith {
		return common.SOAPAssessment
	}
	if !sourceCategory.Valid() {
		return common.SOAPObjective
	}
	return sourceCategory
}
