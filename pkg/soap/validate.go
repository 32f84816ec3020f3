package soap

import (
	"github.com/OFFIS-RIT/soapkg/pkg/common"
)

// ConfidenceStats summarises the confidences of one category.
type ConfidenceStats struct {
	Mean float64 `json:"mean"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// ValidationReport describes how entities spread over the SOAP categories.
type ValidationReport struct {
	TotalEntities int                                     `json:"total_entities"`
	Distribution  map[common.SOAPCategory]int             `json:"category_distribution"`
	Confidence    map[common.SOAPCategory]ConfidenceStats `json:"confidence_stats"`
	Warnings      []string                                `json:"potential_issues"`
}

// Validate checks a categorised entity set for obvious gaps, such as a
// graph without any plan entity.
func Validate(entities []common.Entity) ValidationReport {
	report := ValidationReport{
		TotalEntities: len(entities),
		Distribution:  make(map[common.SOAPCategory]int, len(common.SOAPCategories)),
		Confidence:    map[common.SOAPCategory]ConfidenceStats{},
		Warnings:      []string{},
	}

	sums := map[common.SOAPCategory]float64{}
	for _, cat := range common.SOAPCategories {
		report.Distribution[cat] = 0
	}
	for _, e := range entities {
		cat := e.SOAPCategory
		report.Distribution[cat]++
		sums[cat] += e.Confidence

		stats, ok := report.Confidence[cat]
		if !ok {
			stats = ConfidenceStats{Min: e.Confidence, Max: e.Confidence}
		}
		stats.Min = min(stats.Min, e.Confidence)
		stats.Max = max(stats.Max, e.Confidence)
		report.Confidence[cat] = stats
	}
	for cat, stats := range report.Confidence {
		stats.Mean = sums[cat] / float64(report.Distribution[cat])
		report.Confidence[cat] = stats
	}

	s := report.Distribution[common.SOAPSubjective]
	o := report.Distribution[common.SOAPObjective]
	a := report.Distribution[common.SOAPAssessment]
	p := report.Distribution[common.SOAPPlan]

	if s == 0 {
		report.Warnings = append(report.Warnings, "no subjective entities found, patient symptoms or complaints are missing")
	}
	if a == 0 {
		report.Warnings = append(report.Warnings, "no assessment entities found, diagnoses or impressions are missing")
	}
	if p == 0 {
		report.Warnings = append(report.Warnings, "no plan entities found, treatments or interventions are missing")
	}
	if o > s+a+p {
		report.Warnings = append(report.Warnings, "objective entities outnumber all other categories combined")
	}

	return report
}
