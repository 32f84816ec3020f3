package graph

import (
	"math"
	"reflect"
	"testing"

	"github.com/OFFIS-RIT/soapkg/pkg/common"
)

// twoNoteGraph holds chest pain (isolated), aspirin -> mi and heparin -> mi.
func twoNoteGraph(t *testing.T) *Builder {
	t.Helper()
	b := NewBuilder(NewBuilderParams{})
	entities, relations := scenarioCandidates()
	mustIngest(t, b, "d1", entities, relations)
	mustIngest(t, b, "d2", []common.CandidateEntity{
		{Text: "heparin", Type: common.EntityMedication, Confidence: 0.9, SOAPCategory: common.SOAPPlan},
		{Text: "MI", Type: common.EntityDisease, Confidence: 0.8, SOAPCategory: common.SOAPAssessment},
	}, []common.CandidateRelationship{
		{Source: common.EntityRef{Text: "heparin"}, Target: common.EntityRef{Text: "MI"}, Type: common.RelationTreats, Confidence: 0.7},
	})
	return b
}

func texts(entities []common.Entity) map[string]bool {
	out := map[string]bool{}
	for _, e := range entities {
		out[e.Text] = true
	}
	return out
}

func TestBuilder_Neighbors(t *testing.T) {
	b := twoNoteGraph(t)
	mi, _ := b.EntityByText("mi")
	aspirin, _ := b.EntityByText("aspirin")

	if got := b.Neighbors(mi.ID, Incoming); len(got) != 2 {
		t.Errorf("incoming neighbors of mi = %d, want 2", len(got))
	}
	if got := b.Neighbors(mi.ID, Outgoing); len(got) != 0 {
		t.Errorf("outgoing neighbors of mi = %d, want 0", len(got))
	}
	got := b.Neighbors(aspirin.ID, Both)
	if len(got) != 1 || got[0].Entity.ID != mi.ID || got[0].Relationship.Type != common.RelationTreats {
		t.Errorf("neighbors of aspirin = %+v", got)
	}
}

func TestBuilder_Related(t *testing.T) {
	b := twoNoteGraph(t)
	mi, _ := b.EntityByText("mi")

	got := texts(b.Related(mi.ID, common.RelationTreats))
	if len(got) != 2 || !got["aspirin"] || !got["heparin"] {
		t.Errorf("Related(TREATS) = %v", got)
	}
	if got := b.Related(mi.ID, common.RelationCauses); len(got) != 0 {
		t.Errorf("Related(CAUSES) = %+v, want none", got)
	}
}

func TestBuilder_QueryEntities(t *testing.T) {
	b := twoNoteGraph(t)
	tests := []struct {
		name  string
		query EntityQuery
		want  []string
	}{
		{name: "all", query: EntityQuery{}, want: []string{"chest pain", "aspirin", "mi", "heparin"}},
		{name: "by type", query: EntityQuery{Type: common.EntityMedication}, want: []string{"aspirin", "heparin"}},
		{name: "by text", query: EntityQuery{Text: "CHEST"}, want: []string{"chest pain"}},
		{name: "by category", query: EntityQuery{Category: common.SOAPAssessment}, want: []string{"mi"}},
		{name: "by document", query: EntityQuery{DocumentID: "d2"}, want: []string{"heparin", "mi"}},
		{name: "by confidence", query: EntityQuery{MinConfidence: 0.95}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := texts(b.QueryEntities(tt.query))
			if len(got) != len(tt.want) {
				t.Fatalf("QueryEntities() = %v, want %v", got, tt.want)
			}
			for _, w := range tt.want {
				if !got[w] {
					t.Errorf("QueryEntities() misses %q", w)
				}
			}
		})
	}
}

func TestBuilder_DocumentSubgraph(t *testing.T) {
	b := twoNoteGraph(t)
	sub := b.DocumentSubgraph("d2")
	got := texts(sub.Entities)
	if len(got) != 2 || !got["heparin"] || !got["mi"] {
		t.Errorf("subgraph entities = %v", got)
	}
	if len(sub.Relationships) != 1 {
		t.Errorf("subgraph relationships = %d, want 1", len(sub.Relationships))
	}
	if sub := b.DocumentSubgraph("unknown"); len(sub.Entities) != 0 || len(sub.Relationships) != 0 {
		t.Errorf("unknown document subgraph = %+v", sub)
	}
}

func TestBuilder_ShortestPath(t *testing.T) {
	b := twoNoteGraph(t)
	aspirin, _ := b.EntityByText("aspirin")
	heparin, _ := b.EntityByText("heparin")
	chest, _ := b.EntityByText("chest pain")

	path, ok := b.ShortestPath(aspirin.ID, heparin.ID)
	if !ok {
		t.Fatal("expected a path between aspirin and heparin")
	}
	var got []string
	for _, e := range path {
		got = append(got, e.Text)
	}
	if len(got) != 3 || got[0] != "aspirin" || got[1] != "mi" || got[2] != "heparin" {
		t.Errorf("ShortestPath() = %v", got)
	}

	if _, ok := b.ShortestPath(aspirin.ID, chest.ID); ok {
		t.Error("expected no path to an isolated entity")
	}
	if _, ok := b.ShortestPath(aspirin.ID, "ent_missing"); ok {
		t.Error("expected no path to an unknown entity")
	}
}

func TestBuilder_Statistics(t *testing.T) {
	b := twoNoteGraph(t)
	s := b.Statistics(2)

	if s.Entities != 4 || s.Relationships != 2 || s.Documents != 2 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if s.EntityTypes[common.EntityMedication] != 2 || s.RelationTypes[common.RelationTreats] != 2 {
		t.Errorf("unexpected distributions %+v %+v", s.EntityTypes, s.RelationTypes)
	}
	if s.ConnectedComponents != 2 || s.LargestComponent != 3 {
		t.Errorf("components = %d, largest = %d", s.ConnectedComponents, s.LargestComponent)
	}
	wantDegrees := map[int]int{0: 1, 1: 2, 2: 1}
	for deg, n := range wantDegrees {
		if s.DegreeDistribution[deg] != n {
			t.Errorf("degree %d count = %d, want %d", deg, s.DegreeDistribution[deg], n)
		}
	}
	if s.AverageDegree != 1 {
		t.Errorf("AverageDegree = %v, want 1", s.AverageDegree)
	}
	if len(s.TopEntities) != 2 || s.TopEntities[0].Text != "mi" {
		t.Errorf("TopEntities = %+v, want mi first", s.TopEntities)
	}
}

func TestBuilder_StatisticsEmpty(t *testing.T) {
	s := NewBuilder(NewBuilderParams{}).Statistics(0)
	if s.Entities != 0 || s.ConnectedComponents != 0 || len(s.TopEntities) != 0 {
		t.Errorf("unexpected statistics for empty graph %+v", s)
	}
}

func TestBuilder_NeighborsWithin(t *testing.T) {
	b := twoNoteGraph(t)
	aspirin, _ := b.EntityByText("aspirin")

	tests := []struct {
		name     string
		distance int
		dir      Direction
		want     map[string]int
	}{
		{"one hop", 1, Both, map[string]int{"mi": 1}},
		{"two hops", 2, Both, map[string]int{"mi": 1, "heparin": 2}},
		{"zero is one hop", 0, Both, map[string]int{"mi": 1}},
		{"outgoing only", 3, Outgoing, map[string]int{"mi": 1}},
		{"incoming only", 2, Incoming, map[string]int{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := map[string]int{}
			for _, n := range b.NeighborsWithin(aspirin.ID, tc.distance, tc.dir) {
				got[n.Entity.Text] = n.Distance
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("NeighborsWithin(%d) = %v, want %v", tc.distance, got, tc.want)
			}
		})
	}

	if got := b.NeighborsWithin("ent_missing", 2, Both); got != nil {
		t.Errorf("unknown entity gave %+v", got)
	}
}

func TestBuilder_PatientSubgraph(t *testing.T) {
	b := NewBuilder(NewBuilderParams{})
	entities, relations := scenarioCandidates()
	if _, err := b.IngestFromPatient("d1", "p1", entities, relations); err != nil {
		t.Fatal(err)
	}
	if _, err := b.IngestFromPatient("d2", "p2", []common.CandidateEntity{
		{Text: "heparin", Type: common.EntityMedication, Confidence: 0.9},
		{Text: "MI", Type: common.EntityDisease, Confidence: 0.8},
	}, []common.CandidateRelationship{
		{Source: common.EntityRef{Text: "heparin"}, Target: common.EntityRef{Text: "MI"}, Type: common.RelationTreats, Confidence: 0.7},
	}); err != nil {
		t.Fatal(err)
	}

	sub := b.PatientSubgraph("p2")
	got := texts(sub.Entities)
	if len(got) != 2 || !got["heparin"] || !got["mi"] {
		t.Errorf("PatientSubgraph(p2) entities = %v", got)
	}
	if len(sub.Relationships) != 1 {
		t.Errorf("PatientSubgraph(p2) relationships = %d, want 1", len(sub.Relationships))
	}
	if sub := b.PatientSubgraph("p3"); len(sub.Entities) != 0 || len(sub.Relationships) != 0 {
		t.Errorf("unknown patient gave %+v", sub)
	}

	if got := texts(b.QueryEntities(EntityQuery{PatientID: "p1", Type: common.EntityMedication})); len(got) != 1 || !got["aspirin"] {
		t.Errorf("QueryEntities(p1, MEDICATION) = %v", got)
	}
	if s := b.Statistics(0); s.Patients != 2 {
		t.Errorf("Patients = %d, want 2", s.Patients)
	}
}

func TestBuilder_Communities(t *testing.T) {
	b := twoNoteGraph(t)

	communities := b.Communities()
	if len(communities) != 2 {
		t.Fatalf("Communities() = %v, want 2 communities", communities)
	}
	got := map[string]bool{}
	for _, id := range communities[0] {
		e, _ := b.Entity(id)
		got[e.Text] = true
	}
	if len(got) != 3 || !got["aspirin"] || !got["heparin"] || !got["mi"] {
		t.Errorf("largest community = %v", got)
	}

	s := b.Statistics(0)
	if s.Communities != 2 || s.LargestCommunity != 3 {
		t.Errorf("communities = %d, largest = %d", s.Communities, s.LargestCommunity)
	}
	if s.AverageClustering != 0 {
		t.Errorf("AverageClustering = %v, want 0 for a star", s.AverageClustering)
	}
}

func TestBuilder_AverageClusteringTriangle(t *testing.T) {
	b := NewBuilder(NewBuilderParams{})
	mustIngest(t, b, "d1", []common.CandidateEntity{
		{Text: "hypertension", Type: common.EntityDisease, Confidence: 0.9},
		{Text: "lisinopril", Type: common.EntityMedication, Confidence: 0.9},
		{Text: "blood pressure", Type: common.EntityVitalSign, Confidence: 0.9},
	}, []common.CandidateRelationship{
		{Source: common.EntityRef{Text: "lisinopril"}, Target: common.EntityRef{Text: "hypertension"}, Type: common.RelationTreats, Confidence: 0.8},
		{Source: common.EntityRef{Text: "hypertension"}, Target: common.EntityRef{Text: "blood pressure"}, Type: common.RelationIndicates, Confidence: 0.8},
		{Source: common.EntityRef{Text: "lisinopril"}, Target: common.EntityRef{Text: "blood pressure"}, Type: common.RelationTreats, Confidence: 0.8},
	})

	s := b.Statistics(0)
	if s.Relationships != 3 {
		t.Fatalf("Relationships = %d, want 3", s.Relationships)
	}
	if math.Abs(s.AverageClustering-1) > 1e-9 {
		t.Errorf("AverageClustering = %v, want 1", s.AverageClustering)
	}
	if s.Communities != 1 {
		t.Errorf("Communities = %d, want 1", s.Communities)
	}
}

func TestBuilder_Centrality(t *testing.T) {
	b := twoNoteGraph(t)

	c := b.Centrality(0)
	if len(c.Betweenness) != 1 || c.Betweenness[0].Text != "mi" {
		t.Errorf("Betweenness = %+v, want only mi", c.Betweenness)
	}
	if len(c.Closeness) != 4 || c.Closeness[0].Text != "mi" || math.Abs(c.Closeness[0].Score-0.5) > 1e-9 {
		t.Errorf("Closeness = %+v, want mi first with 0.5", c.Closeness)
	}
	if last := c.Closeness[len(c.Closeness)-1]; last.Text != "chest pain" || last.Score != 0 {
		t.Errorf("isolated entity closeness = %+v, want 0", last)
	}

	empty := NewBuilder(NewBuilderParams{}).Centrality(5)
	if len(empty.Betweenness) != 0 || len(empty.Closeness) != 0 {
		t.Errorf("unexpected centrality for empty graph %+v", empty)
	}
}
