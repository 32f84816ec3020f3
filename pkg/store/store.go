package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/OFFIS-RIT/soapkg/pkg/common"
)

var (
	// ErrSnapshotNotFound is returned by Load when no snapshot has been saved yet.
	ErrSnapshotNotFound = errors.New("snapshot not found")
	// ErrInvalidEncoding is returned when stored bytes are not a snapshot
	// written by EncodeSnapshot.
	ErrInvalidEncoding = errors.New("invalid snapshot encoding")
)

// SnapshotFormat identifies encoded snapshots.
const SnapshotFormat = "soapkg-graph"

// SnapshotStore persists a single graph snapshot. Save replaces whatever was
// stored before.
type SnapshotStore interface {
	Save(ctx context.Context, snap common.GraphSnapshot) error
	Load(ctx context.Context) (common.GraphSnapshot, error)
}

type envelope struct {
	Format   string               `json:"format"`
	Version  int                  `json:"version"`
	Snapshot common.GraphSnapshot `json:"snapshot"`
}

// EncodeSnapshot writes snap as gzip-compressed JSON with a format header.
func EncodeSnapshot(w io.Writer, snap common.GraphSnapshot) error {
	zw := gzip.NewWriter(w)
	zw.Name = SnapshotFormat + ".json"

	enc := json.NewEncoder(zw)
	err := enc.Encode(envelope{
		Format:   SnapshotFormat,
		Version:  snap.Version,
		Snapshot: snap,
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}
	return nil
}

// DecodeSnapshot reads a snapshot written by EncodeSnapshot. It does not
// validate the graph itself; graph.LoadSnapshot does that.
func DecodeSnapshot(r io.Reader) (common.GraphSnapshot, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return common.GraphSnapshot{}, fmt.Errorf("%w: %w", ErrInvalidEncoding, err)
	}
	defer zr.Close()

	var env envelope
	if err := json.NewDecoder(zr).Decode(&env); err != nil {
		return common.GraphSnapshot{}, fmt.Errorf("%w: %w", ErrInvalidEncoding, err)
	}
	if env.Format != SnapshotFormat {
		return common.GraphSnapshot{}, fmt.Errorf("%w: unknown format %q", ErrInvalidEncoding, env.Format)
	}
	if env.Version != env.Snapshot.Version {
		return common.GraphSnapshot{}, fmt.Errorf(
			"%w: header version %d does not match snapshot version %d",
			ErrInvalidEncoding, env.Version, env.Snapshot.Version,
		)
	}
	return env.Snapshot, nil
}

func encodeBytes(snap common.GraphSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeSnapshot(&buf, snap); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
