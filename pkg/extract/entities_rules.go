package extract

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/OFFIS-RIT/soapkg/pkg/common"
)

const (
	exactConfidence   = 0.9
	patternConfidence = 0.6
)

var entityDictionary = map[common.EntityType][]string{
	common.EntityDisease: {
		"hypertension", "htn", "diabetes", "diabetes mellitus", "type 2 diabetes", "type 1 diabetes",
		"dm", "pneumonia", "sepsis", "septic shock", "copd", "asthma", "cancer", "tumor", "infection",
		"mi", "myocardial infarction", "nstemi", "stemi", "stroke", "cva", "heart failure", "chf",
		"congestive heart failure", "cardiac arrest", "atrial fibrillation", "afib", "cad",
		"coronary artery disease", "dvt", "deep vein thrombosis", "pulmonary embolism", "anemia",
		"acute kidney injury", "aki", "ckd", "chronic kidney disease", "uti", "urinary tract infection",
		"cirrhosis", "pancreatitis", "cellulitis", "hyperlipidemia", "depression", "anxiety",
		"dementia", "delirium", "psychosis",
	},
	common.EntitySymptom: {
		"chest pain", "cp", "shortness of breath", "sob", "dyspnea", "nausea", "vomiting", "fever",
		"fatigue", "weakness", "dizziness", "headache", "cough", "abdominal pain", "back pain", "pain",
		"palpitations", "syncope", "diarrhea", "constipation", "confusion", "edema", "chills",
		"diaphoresis", "lightheadedness", "wheezing", "hemoptysis", "malaise", "discomfort",
	},
	common.EntityMedication: {
		"aspirin", "asa", "metformin", "insulin", "lisinopril", "atorvastatin", "amlodipine",
		"morphine", "fentanyl", "propofol", "midazolam", "lorazepam", "antibiotic", "antibiotics",
		"penicillin", "amoxicillin", "vancomycin", "heparin", "warfarin", "coumadin", "metoprolol",
		"furosemide", "lasix", "nitroglycerin", "clopidogrel", "plavix", "acetaminophen", "tylenol",
		"ibuprofen", "prednisone", "albuterol", "ceftriaxone", "zosyn", "pantoprazole", "omeprazole",
		"levothyroxine", "hydralazine", "enoxaparin", "lovenox",
	},
	common.EntityProcedure: {
		"surgery", "operation", "biopsy", "intubation", "catheterization", "cardiac catheterization",
		"ecg", "ekg", "x-ray", "chest x-ray", "cxr", "ct", "ct scan", "mri", "ultrasound", "echo",
		"echocardiogram", "tte", "blood transfusion", "transfusion", "dialysis", "hemodialysis",
		"chemotherapy", "colonoscopy", "endoscopy", "egd", "pci", "cabg", "angioplasty",
		"thoracentesis", "paracentesis", "lumbar puncture", "bronchoscopy", "stent placement",
	},
	common.EntityAnatomy: {
		"heart", "lung", "lungs", "liver", "kidney", "kidneys", "brain", "stomach", "chest", "abdomen",
		"left ventricle", "right ventricle", "right atrium", "left atrium", "aorta", "pulmonary artery",
		"coronary artery", "head", "neck", "arm", "leg", "legs", "hand", "foot", "back", "spine",
		"colon", "pancreas", "bladder", "lower extremity", "lower extremities",
	},
	common.EntityLabValue: {
		"glucose", "creatinine", "cr", "bun", "hemoglobin", "hgb", "hematocrit", "hct", "wbc", "rbc",
		"sodium", "potassium", "chloride", "co2", "bicarbonate", "anion gap", "troponin", "bnp",
		"d-dimer", "lactate", "procalcitonin", "platelets", "inr", "hba1c", "a1c", "albumin",
		"bilirubin", "alt", "ast", "lipase", "tsh",
	},
	common.EntityVitalSign: {
		"blood pressure", "bp", "heart rate", "hr", "temperature", "temp", "respiratory rate", "rr",
		"pulse", "o2 sat", "oxygen saturation", "spo2", "o2 saturation",
	},
	common.EntityTreatment: {
		"physical therapy", "occupational therapy", "oxygen therapy", "oxygen", "supplemental oxygen",
		"radiation", "radiation therapy", "iv fluids", "fluids", "mechanical ventilation", "bipap",
		"cpap", "rehabilitation", "wound care", "lifestyle modification", "diet",
	},
}

type patternSpec struct {
	typ     common.EntityType
	pattern string
	stop    []string
}

var entityPatterns = []patternSpec{
	{
		typ:     common.EntityDisease,
		pattern: `(?i)\b[a-z]{3,}(?:itis|osis|emia|opathy)\b`,
		stop:    []string{"diagnosis", "prognosis", "hypnosis", "osmosis"},
	},
	{
		typ:     common.EntityMedication,
		pattern: `(?i)\b[a-z]{2,}(?:cillin|mycin|floxacin|olol|pril|sartan|statin|azole|parin|profen|dipine|semide|cycline)\b`,
	},
	{
		typ:     common.EntityVitalSign,
		pattern: `(?i)\b\d{2,3}\s*/\s*\d{2,3}\s*mm\s*hg\b`,
	},
	{
		typ:     common.EntityVitalSign,
		pattern: `(?i)\b\d{2,3}\s*bpm\b`,
	},
	{
		typ:     common.EntityLabValue,
		pattern: `(?i)\b\d+(?:\.\d+)?\s*(?:mg/dl|mmol/l|meq/l|g/dl|ng/ml|u/l|iu/l)`,
	},
}

type entityRule struct {
	typ        common.EntityType
	re         *regexp.Regexp
	confidence float64
	method     string
	stop       map[string]struct{}
}

// dictionaryPattern builds one case-insensitive alternation per type. Longer
// terms come first so that the leftmost-first regexp engine prefers them.
func dictionaryPattern(terms []string) string {
	sorted := append([]string(nil), terms...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if len(sorted[i]) != len(sorted[j]) {
			return len(sorted[i]) > len(sorted[j])
		}
		return sorted[i] < sorted[j]
	})

	alts := make([]string, 0, len(sorted))
	for _, term := range sorted {
		words := strings.Fields(term)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		alts = append(alts, strings.Join(words, `\s+`))
	}
	return `(?i)\b(?:` + strings.Join(alts, "|") + `)\b`
}

var defaultEntityRules = buildEntityRules()

func buildEntityRules() []entityRule {
	rules := make([]entityRule, 0, len(common.EntityTypes)+len(entityPatterns))
	for _, typ := range common.EntityTypes {
		terms, ok := entityDictionary[typ]
		if !ok {
			continue
		}
		rules = append(rules, entityRule{
			typ:        typ,
			re:         regexp.MustCompile(dictionaryPattern(terms)),
			confidence: exactConfidence,
			method:     common.MethodRulesExact,
		})
	}
	for _, p := range entityPatterns {
		stop := make(map[string]struct{}, len(p.stop))
		for _, s := range p.stop {
			stop[s] = struct{}{}
		}
		rules = append(rules, entityRule{
			typ:        p.typ,
			re:         regexp.MustCompile(p.pattern),
			confidence: patternConfidence,
			method:     common.MethodRulesPattern,
			stop:       stop,
		})
	}
	return rules
}

// RuleEntityExtractor finds entities with curated dictionaries and
// morphological patterns. It is deterministic and needs no network.
type RuleEntityExtractor struct {
	rules []entityRule
}

func NewRuleEntityExtractor() *RuleEntityExtractor {
	return &RuleEntityExtractor{rules: defaultEntityRules}
}

func (r *RuleEntityExtractor) Extract(
	ctx context.Context,
	text string,
	ec common.ExtractionContext,
) EntityResult {
	return EntityResult{Entities: r.ExtractCandidates(text)}
}

// ExtractCandidates returns non-overlapping entity mentions in text order.
func (r *RuleEntityExtractor) ExtractCandidates(text string) []common.CandidateEntity {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var matches []common.CandidateEntity
	for _, rule := range r.rules {
		for _, loc := range rule.re.FindAllStringIndex(text, -1) {
			surface := text[loc[0]:loc[1]]
			if _, skip := rule.stop[strings.ToLower(surface)]; skip {
				continue
			}
			matches = append(matches, common.CandidateEntity{
				Text:       surface,
				Type:       rule.typ,
				Span:       common.Span{Start: loc[0], End: loc[1]},
				Confidence: rule.confidence,
				Method:     rule.method,
			})
		}
	}

	return resolveOverlaps(matches)
}

func typeRank(t common.EntityType) int {
	for i, et := range common.EntityTypes {
		if et == t {
			return i
		}
	}
	return len(common.EntityTypes)
}

// resolveOverlaps keeps, among overlapping matches, the one that starts
// first, then the longest, then the most confident.
func resolveOverlaps(matches []common.CandidateEntity) []common.CandidateEntity {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Span.Start != b.Span.Start {
			return a.Span.Start < b.Span.Start
		}
		if a.Span.Len() != b.Span.Len() {
			return a.Span.Len() > b.Span.Len()
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return typeRank(a.Type) < typeRank(b.Type)
	})

	out := make([]common.CandidateEntity, 0, len(matches))
	lastEnd := -1
	for _, m := range matches {
		if m.Span.Start < lastEnd {
			continue
		}
		out = append(out, m)
		lastEnd = m.Span.End
	}
	return out
}
