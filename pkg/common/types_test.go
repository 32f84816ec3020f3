package common

import "testing"

func TestParseEntityType(t *testing.T) {
	tests := []struct {
		in      string
		want    EntityType
		wantErr bool
	}{
		{in: "DISEASE", want: EntityDisease},
		{in: " lab value ", want: EntityLabValue},
		{in: "Vital-Sign", want: EntityVitalSign},
		{in: "lab", want: EntityLabValue},
		{in: "drug", want: EntityMedication},
		{in: "diagnosis", want: EntityDisease},
		{in: "organ", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEntityType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseEntityType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseEntityType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseSOAPCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    SOAPCategory
		wantErr bool
	}{
		{in: "subjective", want: SOAPSubjective},
		{in: "O", want: SOAPObjective},
		{in: "a", want: SOAPAssessment},
		{in: "Plan", want: SOAPPlan},
		{in: "history", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSOAPCategory(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSOAPCategory(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSOAPCategory(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseRelationType(t *testing.T) {
	tests := []struct {
		in      string
		want    RelationType
		wantErr bool
	}{
		{in: "treats", want: RelationTreats},
		{in: "has symptom", want: RelationHasSymptom},
		{in: "Diagnosed-With", want: RelationDiagnosedWith},
		{in: "cures", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRelationType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRelationType(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRelationType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSpan(t *testing.T) {
	a := Span{Start: 2, End: 6}
	if a.Len() != 4 {
		t.Errorf("Len() = %d, want 4", a.Len())
	}
	if !a.Overlaps(Span{Start: 5, End: 9}) {
		t.Error("expected overlapping spans")
	}
	if a.Overlaps(Span{Start: 6, End: 9}) {
		t.Error("touching spans must not overlap")
	}
	if got := a.Shift(10); got != (Span{Start: 12, End: 16}) {
		t.Errorf("Shift() = %+v", got)
	}
}
