package common

// Document is a single clinical note handed to the pipeline. SectionHint
// carries the note section (e.g. "History of Present Illness") when the
// caller already knows it; an empty hint lets the pipeline detect sections.
type Document struct {
	ID          string `json:"id"`
	PatientID   string `json:"patient_id,omitempty"`
	Text        string `json:"text"`
	SectionHint string `json:"section_hint,omitempty"`
}

// Span is a half-open byte range [Start, End) into the source text of a document.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered by the span.
func (s Span) Len() int {
	return s.End - s.Start
}

// Overlaps reports whether both spans share at least one byte.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Shift moves the span by offset bytes.
func (s Span) Shift(offset int) Span {
	return Span{Start: s.Start + offset, End: s.End + offset}
}

// SourceRef records where an entity or relationship was observed.
type SourceRef struct {
	DocumentID string `json:"document_id"`
	PatientID  string `json:"patient_id,omitempty"`
	Span       Span   `json:"span"`
}

// ExtractionContext is passed alongside the text to every extractor.
type ExtractionContext struct {
	DocumentID  string `json:"document_id"`
	SectionHint string `json:"section_hint,omitempty"`
}

// Extraction methods recorded on candidates.
const (
	MethodRulesExact   = "rules-exact"
	MethodRulesPattern = "rules-pattern"
	MethodRulesCue     = "rules-cue"
	MethodRulesCooccur = "rules-cooccurrence"
	MethodModel        = "model"
)

// CandidateEntity is an entity mention proposed by an extractor. It is
// immutable once produced and only becomes a graph node after ingestion.
type CandidateEntity struct {
	Text         string       `json:"text"`
	Type         EntityType   `json:"type"`
	Span         Span         `json:"span"`
	Confidence   float64      `json:"confidence"`
	SOAPCategory SOAPCategory `json:"soap_category,omitempty"`
	Method       string       `json:"method,omitempty"`
}

// Ref returns the reference used by relationships to point at this candidate.
func (c CandidateEntity) Ref() EntityRef {
	return EntityRef{Text: c.Text, Type: c.Type}
}

// EntityRef names an entity of the same extraction window by its surface
// text and, optionally, its type.
type EntityRef struct {
	Text string     `json:"text"`
	Type EntityType `json:"type,omitempty"`
}

// CandidateRelationship is a directed, typed relation between two candidate
// entities of the same extraction window.
type CandidateRelationship struct {
	Source       EntityRef    `json:"source"`
	Target       EntityRef    `json:"target"`
	Type         RelationType `json:"type"`
	Confidence   float64      `json:"confidence"`
	SOAPCategory SOAPCategory `json:"soap_category,omitempty"`
	Span         Span         `json:"span"`
	Method       string       `json:"method,omitempty"`
}

// Entity is a node of the knowledge graph. ID is assigned once at creation
// and never changes; Text is the normalised surface form used for identity
// resolution.
type Entity struct {
	ID           string       `json:"id"`
	Text         string       `json:"text"`
	Type         EntityType   `json:"type"`
	SOAPCategory SOAPCategory `json:"soap_category"`
	Confidence   float64      `json:"confidence"`
	SourceRefs   []SourceRef  `json:"source_refs"`
}

// Relationship is a directed edge of the knowledge graph. At most one
// relationship exists per (SourceID, TargetID, Type).
type Relationship struct {
	ID           string       `json:"id"`
	SourceID     string       `json:"source_id"`
	TargetID     string       `json:"target_id"`
	Type         RelationType `json:"type"`
	Confidence   float64      `json:"confidence"`
	SOAPCategory SOAPCategory `json:"soap_category"`
	SourceRefs   []SourceRef  `json:"source_refs"`
}

// GraphSnapshot is the serialisable state of a knowledge graph. Entities
// and relationships are sorted by ID so that identical graphs produce
// identical snapshots.
type GraphSnapshot struct {
	Version       int            `json:"version"`
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

// SnapshotVersion is the current GraphSnapshot format version.
const SnapshotVersion = 1
