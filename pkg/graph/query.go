package graph

import (
	"sort"
	"strings"

	"github.com/OFFIS-RIT/soapkg/internal/util"
	"github.com/OFFIS-RIT/soapkg/pkg/common"
)

// Direction selects which relationships of an entity are followed.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
	Both
)

// Neighbor is an entity reached over one relationship.
type Neighbor struct {
	Entity       common.Entity       `json:"entity"`
	Relationship common.Relationship `json:"relationship"`
}

// Neighbors returns the entities linked to id, ordered by relationship id.
func (b *Builder) Neighbors(id string, dir Direction) []Neighbor {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.neighbors(id, dir, "")
}

// Related returns the entities linked to id by relationships of type t, in
// either direction.
func (b *Builder) Related(id string, t common.RelationType) []common.Entity {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []common.Entity
	seen := map[string]struct{}{}
	for _, n := range b.neighbors(id, Both, t) {
		if _, ok := seen[n.Entity.ID]; ok {
			continue
		}
		seen[n.Entity.ID] = struct{}{}
		out = append(out, n.Entity)
	}
	return out
}

func (b *Builder) neighbors(id string, dir Direction, t common.RelationType) []Neighbor {
	var relIDs []string
	if dir == Outgoing || dir == Both {
		for relID := range b.out[id] {
			relIDs = append(relIDs, relID)
		}
	}
	if dir == Incoming || dir == Both {
		for relID := range b.in[id] {
			relIDs = append(relIDs, relID)
		}
	}
	sort.Strings(relIDs)

	out := make([]Neighbor, 0, len(relIDs))
	for _, relID := range relIDs {
		r := b.relationships[relID]
		if t != "" && r.Type != t {
			continue
		}
		other := r.TargetID
		if other == id {
			other = r.SourceID
		}
		out = append(out, Neighbor{
			Entity:       cloneEntity(b.entities[other]),
			Relationship: cloneRelationship(r),
		})
	}
	return out
}

// DistantEntity is an entity at a number of hops from another one.
type DistantEntity struct {
	Entity   common.Entity `json:"entity"`
	Distance int           `json:"distance"`
}

// NeighborsWithin returns the entities reachable from id in at most
// maxDistance hops along dir, ordered by distance, then id. The start
// entity is not included. maxDistance below one is treated as one.
func (b *Builder) NeighborsWithin(id string, maxDistance int, dir Direction) []DistantEntity {
	maxDistance = max(maxDistance, 1)

	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, ok := b.entities[id]; !ok {
		return nil
	}

	dist := map[string]int{id: 0}
	frontier := []string{id}
	var out []DistantEntity
	for d := 1; d <= maxDistance && len(frontier) > 0; d++ {
		var next []string
		for _, cur := range frontier {
			for _, n := range b.adjacent(cur, dir) {
				if _, seen := dist[n]; seen {
					continue
				}
				dist[n] = d
				next = append(next, n)
			}
		}
		sort.Strings(next)
		for _, n := range next {
			out = append(out, DistantEntity{Entity: cloneEntity(b.entities[n]), Distance: d})
		}
		frontier = next
	}
	return out
}

func (b *Builder) adjacent(id string, dir Direction) []string {
	var out []string
	if dir == Outgoing || dir == Both {
		for relID := range b.out[id] {
			out = append(out, b.relationships[relID].TargetID)
		}
	}
	if dir == Incoming || dir == Both {
		for relID := range b.in[id] {
			out = append(out, b.relationships[relID].SourceID)
		}
	}
	return out
}

// EntityQuery filters entities. Zero fields match everything; Text matches
// a substring of the normalised entity text.
type EntityQuery struct {
	Text          string
	Type          common.EntityType
	Category      common.SOAPCategory
	MinConfidence float64
	DocumentID    string
	PatientID     string
}

func (q EntityQuery) matches(e *common.Entity) bool {
	if q.Text != "" && !strings.Contains(e.Text, util.NormalizeKey(q.Text)) {
		return false
	}
	if q.Type != "" && e.Type != q.Type {
		return false
	}
	if q.Category != "" && e.SOAPCategory != q.Category {
		return false
	}
	if e.Confidence < q.MinConfidence {
		return false
	}
	if q.DocumentID != "" && !hasDocument(e.SourceRefs, q.DocumentID) {
		return false
	}
	if q.PatientID != "" && !hasPatient(e.SourceRefs, q.PatientID) {
		return false
	}
	return true
}

func hasDocument(refs []common.SourceRef, documentID string) bool {
	for _, r := range refs {
		if r.DocumentID == documentID {
			return true
		}
	}
	return false
}

func hasPatient(refs []common.SourceRef, patientID string) bool {
	for _, r := range refs {
		if r.PatientID == patientID {
			return true
		}
	}
	return false
}

// QueryEntities returns the entities matching q sorted by id.
func (b *Builder) QueryEntities(q EntityQuery) []common.Entity {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []common.Entity
	for _, e := range b.entities {
		if q.matches(e) {
			out = append(out, cloneEntity(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DocumentSubgraph returns the entities and relationships observed in one
// document. Relationships are included only when they were seen in that
// document themselves.
func (b *Builder) DocumentSubgraph(documentID string) common.GraphSnapshot {
	return b.subgraph(func(refs []common.SourceRef) bool { return hasDocument(refs, documentID) })
}

// PatientSubgraph is DocumentSubgraph over all documents of one patient.
func (b *Builder) PatientSubgraph(patientID string) common.GraphSnapshot {
	return b.subgraph(func(refs []common.SourceRef) bool { return hasPatient(refs, patientID) })
}

func (b *Builder) subgraph(observed func([]common.SourceRef) bool) common.GraphSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snap := common.GraphSnapshot{
		Version:       common.SnapshotVersion,
		Entities:      []common.Entity{},
		Relationships: []common.Relationship{},
	}
	for _, e := range b.sortedEntities() {
		if observed(e.SourceRefs) {
			snap.Entities = append(snap.Entities, e)
		}
	}
	for _, r := range b.sortedRelationships() {
		if observed(r.SourceRefs) {
			snap.Relationships = append(snap.Relationships, r)
		}
	}
	return snap
}
