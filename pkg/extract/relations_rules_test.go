package extract

import (
	"reflect"
	"testing"

	"github.com/OFFIS-RIT/soapkg/pkg/common"
)

func TestRuleRelationshipExtractor_ExtractCandidates(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		disable bool
		want    []common.CandidateRelationship
	}{
		{
			name: "treats cue inside one sentence only",
			text: "Patient reports chest pain. Given aspirin for suspected MI.",
			want: []common.CandidateRelationship{
				{
					Source:     common.EntityRef{Text: "aspirin", Type: common.EntityMedication},
					Target:     common.EntityRef{Text: "MI", Type: common.EntityDisease},
					Type:       common.RelationTreats,
					Confidence: cueConfidence,
					Span:       common.Span{Start: 34, End: 58},
					Method:     common.MethodRulesCue,
				},
			},
		},
		{
			name: "located in by cue",
			text: "Severe pain in the chest.",
			want: []common.CandidateRelationship{
				{
					Source:     common.EntityRef{Text: "pain", Type: common.EntitySymptom},
					Target:     common.EntityRef{Text: "chest", Type: common.EntityAnatomy},
					Type:       common.RelationLocatedIn,
					Confidence: cueConfidence,
					Span:       common.Span{Start: 7, End: 24},
					Method:     common.MethodRulesCue,
				},
			},
		},
		{
			name: "located in by adjacency is reversed",
			text: "Left lung pneumonia.",
			want: []common.CandidateRelationship{
				{
					Source:     common.EntityRef{Text: "pneumonia", Type: common.EntityDisease},
					Target:     common.EntityRef{Text: "lung", Type: common.EntityAnatomy},
					Type:       common.RelationLocatedIn,
					Confidence: adjacentConfidence,
					Span:       common.Span{Start: 5, End: 19},
					Method:     common.MethodRulesCue,
				},
			},
		},
		{
			name: "vital sign measured by numeric value",
			text: "BP 120/80 mmHg",
			want: []common.CandidateRelationship{
				{
					Source:     common.EntityRef{Text: "BP", Type: common.EntityVitalSign},
					Target:     common.EntityRef{Text: "120/80 mmHg", Type: common.EntityVitalSign},
					Type:       common.RelationMeasuredBy,
					Confidence: adjacentConfidence,
					Span:       common.Span{Start: 0, End: 14},
					Method:     common.MethodRulesCue,
				},
			},
		},
		{
			name: "co-occurrence fallback",
			text: "Metformin and diabetes noted.",
			want: []common.CandidateRelationship{
				{
					Source:     common.EntityRef{Text: "Metformin", Type: common.EntityMedication},
					Target:     common.EntityRef{Text: "diabetes", Type: common.EntityDisease},
					Type:       common.RelationTreats,
					Confidence: cooccurConfidence,
					Span:       common.Span{Start: 0, End: 22},
					Method:     common.MethodRulesCooccur,
				},
			},
		},
		{
			name:    "co-occurrence disabled",
			text:    "Metformin and diabetes noted.",
			disable: true,
			want:    nil,
		},
		{
			name: "no relation across sentences",
			text: "Patient has hypertension. Metformin started.",
			want: nil,
		},
	}

	entities := NewRuleEntityExtractor()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRuleRelationshipExtractor(NewRelationshipExtractorParams{DisableCoOccurrence: tt.disable})
			got := r.ExtractCandidates(tt.text, entities.ExtractCandidates(tt.text))
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractCandidates() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRuleRelationshipExtractor_MaxPairs(t *testing.T) {
	text := "Aspirin for MI. Heparin for MI."
	entities := NewRuleEntityExtractor().ExtractCandidates(text)

	r := NewRuleRelationshipExtractor(NewRelationshipExtractorParams{MaxPairs: 1})
	got := r.ExtractCandidates(text, entities)
	if len(got) != 1 {
		t.Fatalf("expected only the first pair to be evaluated, got %+v", got)
	}
}

func TestCrossesSentence(t *testing.T) {
	tests := []struct {
		gap  string
		want bool
	}{
		{gap: " for ", want: false},
		{gap: " of 3.5 with ", want: false},
		{gap: ". Given ", want: true},
		{gap: "; ", want: true},
		{gap: "\n\n", want: true},
	}
	for _, tt := range tests {
		t.Run(tt.gap, func(t *testing.T) {
			if got := crossesSentence(tt.gap); got != tt.want {
				t.Errorf("crossesSentence(%q) = %v, want %v", tt.gap, got, tt.want)
			}
		})
	}
}

func TestDedupeRelationships(t *testing.T) {
	ref := func(s string) common.EntityRef { return common.EntityRef{Text: s} }
	in := []common.CandidateRelationship{
		{Source: ref("aspirin"), Target: ref("MI"), Type: common.RelationTreats, Confidence: 0.5},
		{Source: ref("Aspirin"), Target: ref("mi"), Type: common.RelationTreats, Confidence: 0.9},
		{Source: ref("aspirin"), Target: ref("MI"), Type: common.RelationCauses, Confidence: 0.4},
	}
	want := []common.CandidateRelationship{
		{Source: ref("Aspirin"), Target: ref("mi"), Type: common.RelationTreats, Confidence: 0.9},
		{Source: ref("aspirin"), Target: ref("MI"), Type: common.RelationCauses, Confidence: 0.4},
	}
	if got := dedupeRelationships(in); !reflect.DeepEqual(got, want) {
		t.Errorf("dedupeRelationships() = %+v, want %+v", got, want)
	}
}
