package main

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/OFFIS-RIT/soapkg/pkg/common"
	"github.com/OFFIS-RIT/soapkg/pkg/logger"
)

const maxRecordBytes = 16 * 1024 * 1024

// noteRecord accepts both our own field names and the MIMIC-IV note columns.
type noteRecord struct {
	ID          any    `json:"id"`
	NoteID      any    `json:"note_id"`
	PatientID   any    `json:"patient_id"`
	SubjectID   any    `json:"subject_id"`
	Text        string `json:"text"`
	SectionHint string `json:"section_hint"`
	Section     string `json:"section"`
}

func firstNonEmpty(values ...any) string {
	for _, v := range values {
		if v == nil {
			continue
		}
		if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
			return s
		}
	}
	return ""
}

func (r noteRecord) document() common.Document {
	hint := r.SectionHint
	if hint == "" {
		hint = r.Section
	}
	return common.Document{
		ID:          firstNonEmpty(r.ID, r.NoteID),
		PatientID:   firstNonEmpty(r.PatientID, r.SubjectID),
		Text:        r.Text,
		SectionHint: hint,
	}
}

// readDocuments parses one JSON note per line. Blank lines are ignored; a
// record without an id gets "<source>:<line>".
func readDocuments(r io.Reader, source string) ([]common.Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRecordBytes)

	var docs []common.Document
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var rec noteRecord
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("%s:%d: invalid record: %w", source, line, err)
		}

		doc := rec.document()
		if doc.ID == "" {
			doc.ID = fmt.Sprintf("%s:%d", source, line)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", source, err)
	}
	return docs, nil
}

// csvColumns maps note fields to accepted CSV header names, MIMIC-IV first.
var csvColumns = map[string][]string{
	"id":      {"note_id", "id"},
	"patient": {"subject_id", "patient_id"},
	"text":    {"text"},
	"section": {"section", "section_hint"},
}

// readCSVDocuments reads notes from a CSV file with a header row, such as
// the MIMIC-IV note tables. Rows without text are skipped.
func readCSVDocuments(r io.Reader, source string) ([]common.Document, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%s: missing header: %w", source, err)
	}
	index := map[string]int{}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(name))
		for field, aliases := range csvColumns {
			if _, ok := index[field]; ok {
				continue
			}
			for _, alias := range aliases {
				if name == alias {
					index[field] = i
				}
			}
		}
	}
	if _, ok := index["text"]; !ok {
		return nil, fmt.Errorf("%s: no text column", source)
	}

	get := func(record []string, field string) string {
		i, ok := index[field]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var docs []common.Document
	row := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", source, row, err)
		}

		doc := common.Document{
			ID:          get(record, "id"),
			PatientID:   get(record, "patient"),
			Text:        get(record, "text"),
			SectionHint: get(record, "section"),
		}
		if doc.Text == "" {
			continue
		}
		if doc.ID == "" {
			doc.ID = fmt.Sprintf("%s:%d", source, row)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// loadDocuments reads all inputs ("-" is stdin) and applies the document
// and patient limits. Zero disables a limit. Files ending in .csv are read
// as note tables, everything else as JSON lines.
func loadDocuments(paths []string, limit int, patients int) ([]common.Document, error) {
	if len(paths) == 0 {
		paths = []string{"-"}
	}

	var docs []common.Document
	for _, p := range paths {
		var (
			r   io.Reader
			src = p
		)
		if p == "-" {
			r, src = os.Stdin, "stdin"
		} else {
			f, err := os.Open(p)
			if err != nil {
				return nil, fmt.Errorf("failed to open input: %w", err)
			}
			defer f.Close()
			r = f
		}

		read, err := readInput(r, src)
		if err != nil {
			return nil, err
		}
		logger.Debug("[Input] Read documents", "source", src, "documents", len(read))
		docs = append(docs, read...)
	}

	return limitDocuments(docs, limit, patients), nil
}

func readInput(r io.Reader, source string) ([]common.Document, error) {
	if strings.EqualFold(filepath.Ext(source), ".csv") {
		return readCSVDocuments(r, source)
	}
	return readDocuments(r, source)
}

func limitDocuments(docs []common.Document, limit int, patients int) []common.Document {
	if patients > 0 {
		seen := map[string]struct{}{}
		kept := docs[:0:0]
		for _, d := range docs {
			if _, ok := seen[d.PatientID]; !ok {
				if len(seen) == patients {
					continue
				}
				seen[d.PatientID] = struct{}{}
			}
			kept = append(kept, d)
		}
		docs = kept
	}
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}
