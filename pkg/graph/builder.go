package graph

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/OFFIS-RIT/soapkg/internal/util"
	"github.com/OFFIS-RIT/soapkg/pkg/common"
	"github.com/OFFIS-RIT/soapkg/pkg/soap"
)

var (
	// ErrInvariantViolation signals a defect in the merge logic. It is never
	// caused by bad input and stops the whole run.
	ErrInvariantViolation = errors.New("graph invariant violated")
	// ErrInvalidSnapshot is returned when a snapshot cannot be loaded.
	ErrInvalidSnapshot = errors.New("invalid graph snapshot")
)

// DefaultRelabelMargin is how much more confident a candidate must be to
// change the type of an existing entity.
const DefaultRelabelMargin = 0.15

const confidenceEpsilon = 1e-9

// IngestResult counts what a single Ingest call did to the graph.
type IngestResult struct {
	NewEntities           int `json:"new_entities"`
	MergedEntities        int `json:"merged_entities"`
	SkippedEntities       int `json:"skipped_entities"`
	NewRelationships      int `json:"new_relationships"`
	MergedRelationships   int `json:"merged_relationships"`
	RejectedRelationships int `json:"rejected_relationships"`
}

// Add sums two results.
func (r IngestResult) Add(o IngestResult) IngestResult {
	return IngestResult{
		NewEntities:           r.NewEntities + o.NewEntities,
		MergedEntities:        r.MergedEntities + o.MergedEntities,
		SkippedEntities:       r.SkippedEntities + o.SkippedEntities,
		NewRelationships:      r.NewRelationships + o.NewRelationships,
		MergedRelationships:   r.MergedRelationships + o.MergedRelationships,
		RejectedRelationships: r.RejectedRelationships + o.RejectedRelationships,
	}
}

type idSet map[string]struct{}

// Builder owns the knowledge graph. Ingest is the only way to change it and
// calls are serialised; reads may run concurrently with each other.
//
// A Builder should be created using NewBuilder or LoadSnapshot.
type Builder struct {
	mu            sync.RWMutex
	relabelMargin float64

	entities      map[string]*common.Entity
	relationships map[string]*common.Relationship
	textIndex     map[string]string
	relIndex      map[string]string
	out           map[string]idSet
	in            map[string]idSet
}

// NewBuilderParams configures a Builder. A zero RelabelMargin uses
// DefaultRelabelMargin.
type NewBuilderParams struct {
	RelabelMargin float64
}

func NewBuilder(params NewBuilderParams) *Builder {
	margin := params.RelabelMargin
	if margin <= 0 {
		margin = DefaultRelabelMargin
	}
	return &Builder{
		relabelMargin: margin,
		entities:      map[string]*common.Entity{},
		relationships: map[string]*common.Relationship{},
		textIndex:     map[string]string{},
		relIndex:      map[string]string{},
		out:           map[string]idSet{},
		in:            map[string]idSet{},
	}
}

func entityKey(text string) string {
	return util.NormalizeKey(text)
}

func relationKey(sourceID, targetID string, t common.RelationType) string {
	return sourceID + "\x1f" + targetID + "\x1f" + string(t)
}

func validConfidence(c float64) bool {
	return !math.IsNaN(c) && c >= 0 && c <= 1
}

// Ingest merges the candidates of one document into the graph. Relationship
// endpoints are resolved against the entities of this call only; endpoints
// that cannot be resolved reject the relationship. Ingesting the same
// document and candidates again leaves the graph unchanged.
//
// The returned error wraps ErrInvariantViolation and is fatal.
func (b *Builder) Ingest(
	documentID string,
	entities []common.CandidateEntity,
	relations []common.CandidateRelationship,
) (IngestResult, error) {
	return b.IngestFromPatient(documentID, "", entities, relations)
}

// IngestFromPatient is Ingest for a document of a known patient. The
// patient id is recorded on every source reference of the document.
func (b *Builder) IngestFromPatient(
	documentID string,
	patientID string,
	entities []common.CandidateEntity,
	relations []common.CandidateRelationship,
) (IngestResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var res IngestResult
	touchedEntities := make([]string, 0, len(entities))
	touchedRelations := make([]string, 0, len(relations))

	// (normalised text, candidate type) and normalised text -> entity id
	byRef := map[string]string{}
	byText := map[string]string{}

	for _, c := range entities {
		key := entityKey(c.Text)
		if key == "" || !c.Type.Valid() || !validConfidence(c.Confidence) {
			res.SkippedEntities++
			continue
		}

		category := c.SOAPCategory
		if !category.Valid() {
			category = soap.DefaultCategory(c.Type)
		}
		ref := common.SourceRef{DocumentID: documentID, PatientID: patientID, Span: c.Span}

		id, exists := b.textIndex[key]
		if exists {
			b.mergeEntity(b.entities[id], c, category, ref)
			res.MergedEntities++
		} else {
			id = util.DeterministicID("ent", key, string(c.Type))
			b.entities[id] = &common.Entity{
				ID:           id,
				Text:         key,
				Type:         c.Type,
				SOAPCategory: category,
				Confidence:   c.Confidence,
				SourceRefs:   []common.SourceRef{ref},
			}
			b.textIndex[key] = id
			res.NewEntities++
		}

		touchedEntities = append(touchedEntities, id)
		byRef[key+"\x1f"+string(c.Type)] = id
		if _, ok := byText[key]; !ok {
			byText[key] = id
		}
	}

	for _, r := range relations {
		sourceID, okS := resolveRef(r.Source, byRef, byText)
		targetID, okT := resolveRef(r.Target, byRef, byText)
		if !okS || !okT || sourceID == targetID || !r.Type.Valid() || !validConfidence(r.Confidence) {
			res.RejectedRelationships++
			continue
		}

		category := r.SOAPCategory
		if !category.Valid() {
			category = soap.CategorizeRelationship(r.Type, b.entities[sourceID].SOAPCategory)
		}
		ref := common.SourceRef{DocumentID: documentID, PatientID: patientID, Span: r.Span}

		key := relationKey(sourceID, targetID, r.Type)
		if id, ok := b.relIndex[key]; ok {
			rel := b.relationships[id]
			if category != rel.SOAPCategory && r.Confidence > rel.Confidence {
				rel.SOAPCategory = category
			}
			rel.Confidence = max(rel.Confidence, r.Confidence)
			rel.SourceRefs = appendRef(rel.SourceRefs, ref)
			touchedRelations = append(touchedRelations, id)
			res.MergedRelationships++
			continue
		}

		id := util.DeterministicID("rel", sourceID, targetID, string(r.Type))
		b.relationships[id] = &common.Relationship{
			ID:           id,
			SourceID:     sourceID,
			TargetID:     targetID,
			Type:         r.Type,
			Confidence:   r.Confidence,
			SOAPCategory: category,
			SourceRefs:   []common.SourceRef{ref},
		}
		b.relIndex[key] = id
		b.link(id, sourceID, targetID)
		touchedRelations = append(touchedRelations, id)
		res.NewRelationships++
	}

	if err := b.checkTouched(touchedEntities, touchedRelations); err != nil {
		return res, fmt.Errorf("ingest of document %q: %w", documentID, err)
	}
	return res, nil
}

func (b *Builder) mergeEntity(
	e *common.Entity,
	c common.CandidateEntity,
	category common.SOAPCategory,
	ref common.SourceRef,
) {
	switch {
	case c.Type != e.Type:
		if c.Confidence-e.Confidence >= b.relabelMargin-confidenceEpsilon {
			e.Type = c.Type
			e.SOAPCategory = category
		}
	case category != e.SOAPCategory:
		if c.Confidence > e.Confidence {
			e.SOAPCategory = category
		}
	}
	e.Confidence = max(e.Confidence, c.Confidence)
	e.SourceRefs = appendRef(e.SourceRefs, ref)
}

func resolveRef(ref common.EntityRef, byRef map[string]string, byText map[string]string) (string, bool) {
	key := entityKey(ref.Text)
	if key == "" {
		return "", false
	}
	if ref.Type != "" {
		id, ok := byRef[key+"\x1f"+string(ref.Type)]
		return id, ok
	}
	id, ok := byText[key]
	return id, ok
}

func appendRef(refs []common.SourceRef, ref common.SourceRef) []common.SourceRef {
	for _, r := range refs {
		if r == ref {
			return refs
		}
	}
	return append(refs, ref)
}

func (b *Builder) link(relID, sourceID, targetID string) {
	if b.out[sourceID] == nil {
		b.out[sourceID] = idSet{}
	}
	if b.in[targetID] == nil {
		b.in[targetID] = idSet{}
	}
	b.out[sourceID][relID] = struct{}{}
	b.in[targetID][relID] = struct{}{}
}

// Validate runs the full invariant check on the current graph.
func (b *Builder) Validate() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.checkInvariants()
}

func violation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}

func (b *Builder) checkSizes() error {
	if len(b.textIndex) != len(b.entities) {
		return violation("text index holds %d keys for %d entities", len(b.textIndex), len(b.entities))
	}
	if len(b.relIndex) != len(b.relationships) {
		return violation("relationship index holds %d keys for %d relationships", len(b.relIndex), len(b.relationships))
	}
	return nil
}

func (b *Builder) checkEntity(id string) error {
	e, ok := b.entities[id]
	if !ok {
		return violation("entity %q is not stored", id)
	}
	if e.ID != id {
		return violation("entity stored under %q has id %q", id, e.ID)
	}
	if b.textIndex[entityKey(e.Text)] != id {
		return violation("entity %q missing from text index", id)
	}
	if len(e.SourceRefs) == 0 {
		return violation("entity %q has no source references", id)
	}
	return nil
}

func (b *Builder) checkRelationship(id string) error {
	r, ok := b.relationships[id]
	if !ok {
		return violation("relationship %q is not stored", id)
	}
	if r.ID != id {
		return violation("relationship stored under %q has id %q", id, r.ID)
	}
	if _, ok := b.entities[r.SourceID]; !ok {
		return violation("relationship %q has dangling source %q", id, r.SourceID)
	}
	if _, ok := b.entities[r.TargetID]; !ok {
		return violation("relationship %q has dangling target %q", id, r.TargetID)
	}
	if r.SourceID == r.TargetID {
		return violation("relationship %q is a self loop", id)
	}
	if b.relIndex[relationKey(r.SourceID, r.TargetID, r.Type)] != id {
		return violation("relationship %q missing from canonical key index", id)
	}
	if _, ok := b.out[r.SourceID][id]; !ok {
		return violation("relationship %q missing from outgoing adjacency", id)
	}
	if _, ok := b.in[r.TargetID][id]; !ok {
		return violation("relationship %q missing from incoming adjacency", id)
	}
	if len(r.SourceRefs) == 0 {
		return violation("relationship %q has no source references", id)
	}
	return nil
}

// checkTouched checks what one Ingest call created or merged. Ingest never
// removes anything, so the rest of the graph keeps the invariants it had.
func (b *Builder) checkTouched(entityIDs, relationIDs []string) error {
	if err := b.checkSizes(); err != nil {
		return err
	}
	for _, id := range entityIDs {
		if err := b.checkEntity(id); err != nil {
			return err
		}
	}
	for _, id := range relationIDs {
		if err := b.checkRelationship(id); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) checkInvariants() error {
	if err := b.checkSizes(); err != nil {
		return err
	}
	for id := range b.entities {
		if err := b.checkEntity(id); err != nil {
			return err
		}
	}
	for id := range b.relationships {
		if err := b.checkRelationship(id); err != nil {
			return err
		}
	}

	for entityID, rels := range b.out {
		for relID := range rels {
			r, ok := b.relationships[relID]
			if !ok || r.SourceID != entityID {
				return violation("outgoing adjacency of %q lists unknown relationship %q", entityID, relID)
			}
		}
	}
	for entityID, rels := range b.in {
		for relID := range rels {
			r, ok := b.relationships[relID]
			if !ok || r.TargetID != entityID {
				return violation("incoming adjacency of %q lists unknown relationship %q", entityID, relID)
			}
		}
	}

	return nil
}

func cloneEntity(e *common.Entity) common.Entity {
	c := *e
	c.SourceRefs = append([]common.SourceRef(nil), e.SourceRefs...)
	return c
}

func cloneRelationship(r *common.Relationship) common.Relationship {
	c := *r
	c.SourceRefs = append([]common.SourceRef(nil), r.SourceRefs...)
	return c
}

// EntityCount returns the number of entities.
func (b *Builder) EntityCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entities)
}

// RelationshipCount returns the number of relationships.
func (b *Builder) RelationshipCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.relationships)
}

// Entity returns a copy of the entity with the given id.
func (b *Builder) Entity(id string) (common.Entity, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entities[id]
	if !ok {
		return common.Entity{}, false
	}
	return cloneEntity(e), true
}

// EntityByText looks an entity up by its surface form.
func (b *Builder) EntityByText(text string) (common.Entity, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.textIndex[entityKey(text)]
	if !ok {
		return common.Entity{}, false
	}
	return cloneEntity(b.entities[id]), true
}

// Entities returns copies of all entities sorted by id.
func (b *Builder) Entities() []common.Entity {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sortedEntities()
}

// Relationships returns copies of all relationships sorted by id.
func (b *Builder) Relationships() []common.Relationship {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sortedRelationships()
}

func (b *Builder) sortedEntities() []common.Entity {
	out := make([]common.Entity, 0, len(b.entities))
	for _, e := range b.entities {
		out = append(out, cloneEntity(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (b *Builder) sortedRelationships() []common.Relationship {
	out := make([]common.Relationship, 0, len(b.relationships))
	for _, r := range b.relationships {
		out = append(out, cloneRelationship(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot returns the serialisable state of the graph. Two builders with
// the same content produce equal snapshots.
func (b *Builder) Snapshot() common.GraphSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return common.GraphSnapshot{
		Version:       common.SnapshotVersion,
		Entities:      b.sortedEntities(),
		Relationships: b.sortedRelationships(),
	}
}

// LoadSnapshot rebuilds a Builder from a snapshot, including every index,
// and runs the invariant check before handing it out. Errors wrap
// ErrInvalidSnapshot.
func LoadSnapshot(snap common.GraphSnapshot, params NewBuilderParams) (*Builder, error) {
	if snap.Version != common.SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, snap.Version)
	}

	b := NewBuilder(params)
	for i := range snap.Entities {
		e := snap.Entities[i]
		if e.ID == "" {
			return nil, fmt.Errorf("%w: entity without id", ErrInvalidSnapshot)
		}
		if _, dup := b.entities[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate entity id %q", ErrInvalidSnapshot, e.ID)
		}
		if !e.Type.Valid() || !e.SOAPCategory.Valid() || !validConfidence(e.Confidence) {
			return nil, fmt.Errorf("%w: entity %q has invalid attributes", ErrInvalidSnapshot, e.ID)
		}
		key := entityKey(e.Text)
		if _, dup := b.textIndex[key]; dup || key == "" {
			return nil, fmt.Errorf("%w: entity %q has an empty or duplicate text key", ErrInvalidSnapshot, e.ID)
		}
		b.entities[e.ID] = &e
		b.textIndex[key] = e.ID
	}

	for i := range snap.Relationships {
		r := snap.Relationships[i]
		if r.ID == "" {
			return nil, fmt.Errorf("%w: relationship without id", ErrInvalidSnapshot)
		}
		if _, dup := b.relationships[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate relationship id %q", ErrInvalidSnapshot, r.ID)
		}
		if !r.Type.Valid() || !r.SOAPCategory.Valid() || !validConfidence(r.Confidence) {
			return nil, fmt.Errorf("%w: relationship %q has invalid attributes", ErrInvalidSnapshot, r.ID)
		}
		key := relationKey(r.SourceID, r.TargetID, r.Type)
		if _, dup := b.relIndex[key]; dup {
			return nil, fmt.Errorf("%w: duplicate canonical key for relationship %q", ErrInvalidSnapshot, r.ID)
		}
		b.relationships[r.ID] = &r
		b.relIndex[key] = r.ID
		b.link(r.ID, r.SourceID, r.TargetID)
	}

	if err := b.checkInvariants(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	return b, nil
}
