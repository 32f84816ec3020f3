package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/OFFIS-RIT/soapkg/pkg/common"
)

func sampleSnapshot() common.GraphSnapshot {
	return common.GraphSnapshot{
		Version: common.SnapshotVersion,
		Entities: []common.Entity{
			{
				ID:           "ent_a",
				Text:         "aspirin",
				Type:         common.EntityMedication,
				SOAPCategory: common.SOAPPlan,
				Confidence:   0.9,
				SourceRefs: []common.SourceRef{
					{DocumentID: "d1", PatientID: "p1", Span: common.Span{Start: 34, End: 41}},
					{DocumentID: "d2", PatientID: "p2", Span: common.Span{Start: 3, End: 10}},
				},
			},
			{
				ID:           "ent_b",
				Text:         "mi",
				Type:         common.EntityDisease,
				SOAPCategory: common.SOAPAssessment,
				Confidence:   0.85,
				SourceRefs: []common.SourceRef{
					{DocumentID: "d1", PatientID: "p1", Span: common.Span{Start: 56, End: 58}},
				},
			},
		},
		Relationships: []common.Relationship{
			{
				ID:           "rel_a",
				SourceID:     "ent_a",
				TargetID:     "ent_b",
				Type:         common.RelationTreats,
				Confidence:   0.8,
				SOAPCategory: common.SOAPPlan,
				SourceRefs: []common.SourceRef{
					{DocumentID: "d1", PatientID: "p1", Span: common.Span{Start: 34, End: 58}},
				},
			},
		},
	}
}

func TestEncodeDecodeSnapshot(t *testing.T) {
	snap := sampleSnapshot()

	var buf bytes.Buffer
	if err := EncodeSnapshot(&buf, snap); err != nil {
		t.Fatalf("EncodeSnapshot failed: %v", err)
	}

	got, err := DecodeSnapshot(&buf)
	if err != nil {
		t.Fatalf("DecodeSnapshot failed: %v", err)
	}
	if !reflect.DeepEqual(got, snap) {
		t.Fatalf("decoded snapshot differs:\n got %+v\nwant %+v", got, snap)
	}
}

func TestDecodeSnapshotRejectsForeignData(t *testing.T) {
	gzipped := func(s string) []byte {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		zw.Write([]byte(s))
		zw.Close()
		return buf.Bytes()
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"not gzip", []byte(`{"format":"soapkg-graph"}`)},
		{"not json", gzipped("hello")},
		{"wrong format", gzipped(`{"format":"other","version":1,"snapshot":{"version":1}}`)},
		{"version mismatch", gzipped(`{"format":"soapkg-graph","version":2,"snapshot":{"version":1}}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSnapshot(bytes.NewReader(tt.data))
			if !errors.Is(err, ErrInvalidEncoding) {
				t.Fatalf("expected ErrInvalidEncoding, got %v", err)
			}
		})
	}
}

func TestFileSnapshotStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "graph.snap")

	s, err := NewFileSnapshotStore(path)
	if err != nil {
		t.Fatalf("NewFileSnapshotStore failed: %v", err)
	}

	if _, err := s.Load(ctx); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound before first save, got %v", err)
	}

	snap := sampleSnapshot()
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Overwrite with a smaller graph.
	smaller := snap
	smaller.Relationships = []common.Relationship{}
	smaller.Entities = snap.Entities[:1]
	if err := s.Save(ctx, smaller); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(got, smaller) {
		t.Fatalf("loaded snapshot differs:\n got %+v\nwant %+v", got, smaller)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the snapshot file, found %d entries", len(entries))
	}
}

func TestFileSnapshotStoreEmptyPath(t *testing.T) {
	if _, err := NewFileSnapshotStore(""); err == nil {
		t.Fatal("expected an error for an empty path")
	}
}

func TestFileSnapshotStoreCancelled(t *testing.T) {
	s, _ := NewFileSnapshotStore(filepath.Join(t.TempDir(), "graph.snap"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Save(ctx, sampleSnapshot()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSQLiteSnapshotStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteSnapshotStore(filepath.Join(t.TempDir(), "graph.db"))
	if err != nil {
		t.Fatalf("NewSQLiteSnapshotStore failed: %v", err)
	}
	defer s.Close()

	if _, err := s.Load(ctx); !errors.Is(err, ErrSnapshotNotFound) {
		t.Fatalf("expected ErrSnapshotNotFound on an empty database, got %v", err)
	}

	snap := sampleSnapshot()
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	// Saving twice replaces the previous graph instead of duplicating rows.
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(got, snap) {
		t.Fatalf("loaded snapshot differs:\n got %+v\nwant %+v", got, snap)
	}

	var treats int
	err = s.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM relationships r JOIN entities e ON e.id = r.source_id WHERE e.text = ? AND r.type = ?",
		"aspirin", string(common.RelationTreats),
	).Scan(&treats)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if treats != 1 {
		t.Fatalf("expected 1 TREATS edge from aspirin, got %d", treats)
	}

	var p2Entities int
	err = s.DB().QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT e.id) FROM entities e JOIN source_refs s ON s.owner_id = e.id WHERE s.patient_id = ?",
		"p2",
	).Scan(&p2Entities)
	if err != nil {
		t.Fatalf("patient query failed: %v", err)
	}
	if p2Entities != 1 {
		t.Fatalf("expected 1 entity observed for p2, got %d", p2Entities)
	}
}

func TestSQLiteSnapshotStoreRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteSnapshotStore(filepath.Join(t.TempDir(), "graph.db"))
	if err != nil {
		t.Fatalf("NewSQLiteSnapshotStore failed: %v", err)
	}
	defer s.Close()

	snap := sampleSnapshot()
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	broken := sampleSnapshot()
	broken.Relationships[0].TargetID = "ent_missing"
	if err := s.Save(ctx, broken); err == nil {
		t.Fatal("expected a foreign key error")
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !reflect.DeepEqual(got, snap) {
		t.Fatal("failed save must leave the previous graph untouched")
	}
}
