package graph

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/OFFIS-RIT/soapkg/pkg/common"
)

func scenarioCandidates() ([]common.CandidateEntity, []common.CandidateRelationship) {
	entities := []common.CandidateEntity{
		{Text: "chest pain", Type: common.EntitySymptom, Span: common.Span{Start: 16, End: 26}, Confidence: 0.9, SOAPCategory: common.SOAPSubjective},
		{Text: "aspirin", Type: common.EntityMedication, Span: common.Span{Start: 34, End: 41}, Confidence: 0.9, SOAPCategory: common.SOAPPlan},
		{Text: "MI", Type: common.EntityDisease, Span: common.Span{Start: 56, End: 58}, Confidence: 0.9, SOAPCategory: common.SOAPAssessment},
	}
	relations := []common.CandidateRelationship{
		{
			Source:       common.EntityRef{Text: "aspirin", Type: common.EntityMedication},
			Target:       common.EntityRef{Text: "MI", Type: common.EntityDisease},
			Type:         common.RelationTreats,
			Confidence:   0.7,
			SOAPCategory: common.SOAPPlan,
			Span:         common.Span{Start: 34, End: 58},
		},
	}
	return entities, relations
}

func mustIngest(t *testing.T, b *Builder, doc string, e []common.CandidateEntity, r []common.CandidateRelationship) IngestResult {
	t.Helper()
	res, err := b.Ingest(doc, e, r)
	if err != nil {
		t.Fatalf("Ingest(%s) failed: %v", doc, err)
	}
	return res
}

func TestBuilder_IngestScenario(t *testing.T) {
	b := NewBuilder(NewBuilderParams{})
	entities, relations := scenarioCandidates()

	got := mustIngest(t, b, "doc-1", entities, relations)
	want := IngestResult{NewEntities: 3, NewRelationships: 1}
	if got != want {
		t.Fatalf("Ingest() = %+v, want %+v", got, want)
	}

	aspirin, ok := b.EntityByText("Aspirin")
	if !ok {
		t.Fatal("aspirin not found")
	}
	mi, ok := b.EntityByText("mi")
	if !ok || mi.Type != common.EntityDisease || mi.SOAPCategory != common.SOAPAssessment {
		t.Fatalf("unexpected MI entity %+v", mi)
	}

	rels := b.Relationships()
	if len(rels) != 1 {
		t.Fatalf("expected one relationship, got %d", len(rels))
	}
	r := rels[0]
	if r.SourceID != aspirin.ID || r.TargetID != mi.ID || r.Type != common.RelationTreats || r.SOAPCategory != common.SOAPPlan {
		t.Errorf("unexpected relationship %+v", r)
	}
	wantRefs := []common.SourceRef{{DocumentID: "doc-1", Span: common.Span{Start: 34, End: 58}}}
	if !reflect.DeepEqual(r.SourceRefs, wantRefs) {
		t.Errorf("SourceRefs = %+v, want %+v", r.SourceRefs, wantRefs)
	}
}

func TestBuilder_Idempotent(t *testing.T) {
	b := NewBuilder(NewBuilderParams{})
	entities, relations := scenarioCandidates()

	mustIngest(t, b, "doc-1", entities, relations)
	before := b.Snapshot()

	got := mustIngest(t, b, "doc-1", entities, relations)
	want := IngestResult{MergedEntities: 3, MergedRelationships: 1}
	if got != want {
		t.Errorf("second Ingest() = %+v, want %+v", got, want)
	}
	if after := b.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Errorf("graph changed on re-ingest:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestBuilder_DeterministicIDs(t *testing.T) {
	entities, relations := scenarioCandidates()

	a := NewBuilder(NewBuilderParams{})
	b := NewBuilder(NewBuilderParams{})
	mustIngest(t, a, "doc-1", entities, relations)
	mustIngest(t, b, "doc-1", entities, relations)

	if !reflect.DeepEqual(a.Snapshot(), b.Snapshot()) {
		t.Error("identical input produced different snapshots")
	}
}

func TestBuilder_TypeConflict(t *testing.T) {
	b := NewBuilder(NewBuilderParams{})
	cand := func(typ common.EntityType, conf float64) []common.CandidateEntity {
		return []common.CandidateEntity{{Text: "Cold", Type: typ, Confidence: conf}}
	}

	mustIngest(t, b, "doc-1", cand(common.EntityDisease, 0.6), nil)
	first, _ := b.EntityByText("cold")

	mustIngest(t, b, "doc-2", cand(common.EntitySymptom, 0.7), nil)
	got, _ := b.EntityByText("cold")
	if got.Type != common.EntityDisease || got.SOAPCategory != common.SOAPAssessment {
		t.Fatalf("type changed without a material confidence gain: %+v", got)
	}
	if got.Confidence != 0.7 {
		t.Errorf("confidence = %v, want max 0.7", got.Confidence)
	}

	mustIngest(t, b, "doc-3", cand(common.EntitySymptom, 0.95), nil)
	got, _ = b.EntityByText("cold")
	if got.Type != common.EntitySymptom || got.SOAPCategory != common.SOAPSubjective {
		t.Fatalf("expected relabel to SYMPTOM, got %+v", got)
	}
	if got.ID != first.ID {
		t.Errorf("id changed on relabel: %s -> %s", first.ID, got.ID)
	}
	if len(got.SourceRefs) != 3 {
		t.Errorf("expected 3 source refs, got %+v", got.SourceRefs)
	}
}

func TestBuilder_CategoryTieKeepsExisting(t *testing.T) {
	b := NewBuilder(NewBuilderParams{})
	mustIngest(t, b, "doc-1", []common.CandidateEntity{
		{Text: "aspirin", Type: common.EntityMedication, Confidence: 0.8, SOAPCategory: common.SOAPPlan},
	}, nil)
	mustIngest(t, b, "doc-2", []common.CandidateEntity{
		{Text: "aspirin", Type: common.EntityMedication, Confidence: 0.8, SOAPCategory: common.SOAPSubjective},
	}, nil)

	got, _ := b.EntityByText("aspirin")
	if got.SOAPCategory != common.SOAPPlan {
		t.Errorf("category = %s, want PLAN", got.SOAPCategory)
	}

	mustIngest(t, b, "doc-3", []common.CandidateEntity{
		{Text: "aspirin", Type: common.EntityMedication, Confidence: 0.9, SOAPCategory: common.SOAPSubjective},
	}, nil)
	got, _ = b.EntityByText("aspirin")
	if got.SOAPCategory != common.SOAPSubjective {
		t.Errorf("category = %s, want SUBJECTIVE after a more confident observation", got.SOAPCategory)
	}
}

func TestBuilder_RejectsRelationships(t *testing.T) {
	entities := []common.CandidateEntity{
		{Text: "aspirin", Type: common.EntityMedication, Confidence: 0.9},
		{Text: "MI", Type: common.EntityDisease, Confidence: 0.9},
	}
	ref := func(text string, typ common.EntityType) common.EntityRef {
		return common.EntityRef{Text: text, Type: typ}
	}

	tests := []struct {
		name string
		rel  common.CandidateRelationship
	}{
		{
			name: "target filtered upstream",
			rel:  common.CandidateRelationship{Source: ref("aspirin", common.EntityMedication), Target: ref("stroke", common.EntityDisease), Type: common.RelationTreats, Confidence: 0.7},
		},
		{
			name: "type of reference differs",
			rel:  common.CandidateRelationship{Source: ref("aspirin", common.EntityProcedure), Target: ref("MI", common.EntityDisease), Type: common.RelationTreats, Confidence: 0.7},
		},
		{
			name: "self loop",
			rel:  common.CandidateRelationship{Source: ref("MI", ""), Target: ref("mi", ""), Type: common.RelationCauses, Confidence: 0.7},
		},
		{
			name: "unknown relation type",
			rel:  common.CandidateRelationship{Source: ref("aspirin", ""), Target: ref("MI", ""), Type: "CURES", Confidence: 0.7},
		},
		{
			name: "confidence out of range",
			rel:  common.CandidateRelationship{Source: ref("aspirin", ""), Target: ref("MI", ""), Type: common.RelationTreats, Confidence: 1.3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(NewBuilderParams{})
			got := mustIngest(t, b, "doc-1", entities, []common.CandidateRelationship{tt.rel})
			if got.RejectedRelationships != 1 || got.NewRelationships != 0 {
				t.Errorf("Ingest() = %+v, want one rejected relationship", got)
			}
			if b.RelationshipCount() != 0 {
				t.Errorf("rejected relationship was inserted")
			}
			if err := b.Validate(); err != nil {
				t.Errorf("Validate() = %v", err)
			}
		})
	}
}

func TestBuilder_SkipsInvalidEntities(t *testing.T) {
	b := NewBuilder(NewBuilderParams{})
	got := mustIngest(t, b, "doc-1", []common.CandidateEntity{
		{Text: "  ", Type: common.EntitySymptom, Confidence: 0.9},
		{Text: "fever", Type: "ORGAN", Confidence: 0.9},
		{Text: "cough", Type: common.EntitySymptom, Confidence: 1.5},
		{Text: "nausea", Type: common.EntitySymptom, Confidence: 0.9},
	}, nil)
	if got.SkippedEntities != 3 || got.NewEntities != 1 {
		t.Errorf("Ingest() = %+v, want 3 skipped and 1 new", got)
	}
}

func TestBuilder_UntypedRefResolvesByText(t *testing.T) {
	b := NewBuilder(NewBuilderParams{})
	entities, _ := scenarioCandidates()
	got := mustIngest(t, b, "doc-1", entities, []common.CandidateRelationship{
		{Source: common.EntityRef{Text: "ASPIRIN"}, Target: common.EntityRef{Text: "mi"}, Type: common.RelationTreats, Confidence: 0.6},
	})
	if got.NewRelationships != 1 {
		t.Fatalf("Ingest() = %+v, want one new relationship", got)
	}
	r := b.Relationships()[0]
	if r.SOAPCategory != common.SOAPPlan {
		t.Errorf("category derived from source = %s, want PLAN", r.SOAPCategory)
	}
}

func TestBuilder_ReferentialIntegrity(t *testing.T) {
	b := NewBuilder(NewBuilderParams{})
	docs := []struct {
		id   string
		ents []string
		rels [][2]string
	}{
		{id: "a", ents: []string{"aspirin", "mi", "chest pain"}, rels: [][2]string{{"aspirin", "mi"}, {"mi", "chest pain"}}},
		{id: "b", ents: []string{"heparin", "mi"}, rels: [][2]string{{"heparin", "mi"}, {"heparin", "stroke"}}},
		{id: "c", ents: []string{"chest pain"}, rels: [][2]string{{"chest pain", "mi"}}},
	}
	for _, d := range docs {
		var ents []common.CandidateEntity
		for _, e := range d.ents {
			ents = append(ents, common.CandidateEntity{Text: e, Type: common.EntityDisease, Confidence: 0.8})
		}
		var rels []common.CandidateRelationship
		for _, r := range d.rels {
			rels = append(rels, common.CandidateRelationship{
				Source: common.EntityRef{Text: r[0]}, Target: common.EntityRef{Text: r[1]},
				Type: common.RelationCauses, Confidence: 0.5,
			})
		}
		mustIngest(t, b, d.id, ents, rels)
	}

	ids := map[string]struct{}{}
	texts := map[string]struct{}{}
	for _, e := range b.Entities() {
		ids[e.ID] = struct{}{}
		if _, dup := texts[e.Text]; dup {
			t.Errorf("duplicate entity key %q", e.Text)
		}
		texts[e.Text] = struct{}{}
	}
	keys := map[string]struct{}{}
	for _, r := range b.Relationships() {
		if _, ok := ids[r.SourceID]; !ok {
			t.Errorf("dangling source %s", r.SourceID)
		}
		if _, ok := ids[r.TargetID]; !ok {
			t.Errorf("dangling target %s", r.TargetID)
		}
		k := relationKey(r.SourceID, r.TargetID, r.Type)
		if _, dup := keys[k]; dup {
			t.Errorf("duplicate canonical key %q", k)
		}
		keys[k] = struct{}{}
	}
	if b.RelationshipCount() != 3 {
		t.Errorf("RelationshipCount() = %d, want 3", b.RelationshipCount())
	}
}

func TestBuilder_ValidateDetectsCorruption(t *testing.T) {
	b := NewBuilder(NewBuilderParams{})
	entities, relations := scenarioCandidates()
	mustIngest(t, b, "doc-1", entities, relations)

	mi, _ := b.EntityByText("mi")
	delete(b.entities, mi.ID)
	delete(b.textIndex, "mi")

	if err := b.Validate(); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("Validate() = %v, want ErrInvariantViolation", err)
	}
}

func TestBuilder_IngestChecksTouchedElements(t *testing.T) {
	b := NewBuilder(NewBuilderParams{})
	entities, relations := scenarioCandidates()
	mustIngest(t, b, "doc-1", entities, relations)

	rel := b.Relationships()[0]
	delete(b.out[rel.SourceID], rel.ID)

	// Entities alone do not touch the damaged relationship.
	if _, err := b.Ingest("doc-2", entities, nil); err != nil {
		t.Fatalf("Ingest() without relationships = %v, want nil", err)
	}
	if _, err := b.Ingest("doc-3", entities, relations); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("Ingest() = %v, want ErrInvariantViolation", err)
	}
	if err := b.Validate(); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("Validate() = %v, want ErrInvariantViolation", err)
	}
}

func TestBuilder_IngestFromPatientRecordsPatient(t *testing.T) {
	b := NewBuilder(NewBuilderParams{})
	entities, relations := scenarioCandidates()
	if _, err := b.IngestFromPatient("doc-1", "p1", entities, relations); err != nil {
		t.Fatalf("IngestFromPatient failed: %v", err)
	}

	aspirin, _ := b.EntityByText("aspirin")
	want := []common.SourceRef{{DocumentID: "doc-1", PatientID: "p1", Span: common.Span{Start: 34, End: 41}}}
	if !reflect.DeepEqual(aspirin.SourceRefs, want) {
		t.Fatalf("SourceRefs = %+v, want %+v", aspirin.SourceRefs, want)
	}
	if got := b.Relationships()[0].SourceRefs[0].PatientID; got != "p1" {
		t.Fatalf("relationship patient = %q, want p1", got)
	}
}

func BenchmarkBuilder_Ingest(b *testing.B) {
	builder := NewBuilder(NewBuilderParams{})
	for i := 0; b.Loop(); i++ {
		n := fmt.Sprint(i)
		entities := []common.CandidateEntity{
			{Text: "drug " + n, Type: common.EntityMedication, Confidence: 0.9},
			{Text: "disease " + n, Type: common.EntityDisease, Confidence: 0.9},
		}
		relations := []common.CandidateRelationship{{
			Source:     common.EntityRef{Text: "drug " + n},
			Target:     common.EntityRef{Text: "disease " + n},
			Type:       common.RelationTreats,
			Confidence: 0.8,
		}}
		if _, err := builder.Ingest("doc-"+n, entities, relations); err != nil {
			b.Fatal(err)
		}
	}
}

func TestLoadSnapshot_RoundTrip(t *testing.T) {
	b := NewBuilder(NewBuilderParams{})
	entities, relations := scenarioCandidates()
	mustIngest(t, b, "doc-1", entities, relations)
	snap := b.Snapshot()

	loaded, err := LoadSnapshot(snap, NewBuilderParams{})
	if err != nil {
		t.Fatalf("LoadSnapshot() failed: %v", err)
	}
	if !reflect.DeepEqual(loaded.Snapshot(), snap) {
		t.Fatalf("snapshot changed on reload")
	}

	got := mustIngest(t, loaded, "doc-1", entities, relations)
	if got.NewEntities != 0 || got.NewRelationships != 0 {
		t.Errorf("reloaded graph did not resolve existing keys: %+v", got)
	}
	if len(loaded.Neighbors(snap.Relationships[0].SourceID, Outgoing)) != 1 {
		t.Error("adjacency index was not rebuilt")
	}
}

func TestLoadSnapshot_Invalid(t *testing.T) {
	b := NewBuilder(NewBuilderParams{})
	entities, relations := scenarioCandidates()
	mustIngest(t, b, "doc-1", entities, relations)

	tests := []struct {
		name   string
		mutate func(s *common.GraphSnapshot)
	}{
		{name: "version", mutate: func(s *common.GraphSnapshot) { s.Version = 99 }},
		{name: "dangling relationship", mutate: func(s *common.GraphSnapshot) { s.Relationships[0].TargetID = "ent_missing" }},
		{name: "duplicate text", mutate: func(s *common.GraphSnapshot) {
			e := s.Entities[0]
			e.ID = "ent_copy"
			s.Entities = append(s.Entities, e)
		}},
		{name: "no source refs", mutate: func(s *common.GraphSnapshot) { s.Entities[0].SourceRefs = nil }},
		{name: "invalid type", mutate: func(s *common.GraphSnapshot) { s.Entities[0].Type = "ORGAN" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := b.Snapshot()
			tt.mutate(&snap)
			if _, err := LoadSnapshot(snap, NewBuilderParams{}); !errors.Is(err, ErrInvalidSnapshot) {
				t.Errorf("LoadSnapshot() = %v, want ErrInvalidSnapshot", err)
			}
		})
	}
}
