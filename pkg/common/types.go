package common

import (
	"fmt"
	"strings"
)

// EntityType is the closed set of clinical entity kinds.
type EntityType string

const (
	EntityDisease    EntityType = "DISEASE"
	EntitySymptom    EntityType = "SYMPTOM"
	EntityMedication EntityType = "MEDICATION"
	EntityProcedure  EntityType = "PROCEDURE"
	EntityAnatomy    EntityType = "ANATOMY"
	EntityLabValue   EntityType = "LAB_VALUE"
	EntityVitalSign  EntityType = "VITAL_SIGN"
	EntityTreatment  EntityType = "TREATMENT"
)

// EntityTypes lists every EntityType in a stable order.
var EntityTypes = []EntityType{
	EntityDisease,
	EntitySymptom,
	EntityMedication,
	EntityProcedure,
	EntityAnatomy,
	EntityLabValue,
	EntityVitalSign,
	EntityTreatment,
}

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	for _, et := range EntityTypes {
		if et == t {
			return true
		}
	}
	return false
}

// SOAPCategory is one of the four sections of a SOAP note.
type SOAPCategory string

const (
	SOAPSubjective SOAPCategory = "SUBJECTIVE"
	SOAPObjective  SOAPCategory = "OBJECTIVE"
	SOAPAssessment SOAPCategory = "ASSESSMENT"
	SOAPPlan       SOAPCategory = "PLAN"
)

// SOAPCategories lists every SOAPCategory in note order.
var SOAPCategories = []SOAPCategory{
	SOAPSubjective,
	SOAPObjective,
	SOAPAssessment,
	SOAPPlan,
}

// Valid reports whether c is one of the four SOAP categories.
func (c SOAPCategory) Valid() bool {
	for _, sc := range SOAPCategories {
		if sc == c {
			return true
		}
	}
	return false
}

// RelationType is the closed set of relationship kinds.
type RelationType string

const (
	RelationTreats        RelationType = "TREATS"
	RelationCauses        RelationType = "CAUSES"
	RelationIndicates     RelationType = "INDICATES"
	RelationHasSymptom    RelationType = "HAS_SYMPTOM"
	RelationDiagnosedWith RelationType = "DIAGNOSED_WITH"
	RelationLocatedIn     RelationType = "LOCATED_IN"
	RelationMeasuredBy    RelationType = "MEASURED_BY"
)

// RelationTypes lists every RelationType in a stable order.
var RelationTypes = []RelationType{
	RelationTreats,
	RelationCauses,
	RelationIndicates,
	RelationHasSymptom,
	RelationDiagnosedWith,
	RelationLocatedIn,
	RelationMeasuredBy,
}

// Valid reports whether r is one of the known relation types.
func (r RelationType) Valid() bool {
	for _, rt := range RelationTypes {
		if rt == r {
			return true
		}
	}
	return false
}

func canonicalLabel(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToUpper(s)
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return s
}

// ParseEntityType converts free-form labels such as "lab value" or
// "Vital-Sign" into an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(canonicalLabel(s))
	switch t {
	case "LAB", "LAB_TEST", "LABORATORY":
		t = EntityLabValue
	case "VITAL", "VITALS", "VITAL_SIGNS":
		t = EntityVitalSign
	case "DRUG", "MEDICINE":
		t = EntityMedication
	case "CONDITION", "DIAGNOSIS":
		t = EntityDisease
	}
	if !t.Valid() {
		return "", fmt.Errorf("unknown entity type %q", s)
	}
	return t, nil
}

// ParseSOAPCategory converts a label such as "subjective" or "S" into a SOAPCategory.
func ParseSOAPCategory(s string) (SOAPCategory, error) {
	c := SOAPCategory(canonicalLabel(s))
	switch c {
	case "S":
		c = SOAPSubjective
	case "O":
		c = SOAPObjective
	case "A":
		c = SOAPAssessment
	case "P":
		c = SOAPPlan
	}
	if !c.Valid() {
		return "", fmt.Errorf("unknown SOAP category %q", s)
	}
	return c, nil
}

// ParseRelationType converts a label such as "has symptom" into a RelationType.
func ParseRelationType(s string) (RelationType, error) {
	r := RelationType(canonicalLabel(s))
	if !r.Valid() {
		return "", fmt.Errorf("unknown relation type %q", s)
	}
	return r, nil
}
