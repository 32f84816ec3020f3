package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/OFFIS-RIT/soapkg/internal/timing"
	"github.com/OFFIS-RIT/soapkg/internal/util"
	"github.com/OFFIS-RIT/soapkg/pkg/common"
	"github.com/OFFIS-RIT/soapkg/pkg/extract"
	"github.com/OFFIS-RIT/soapkg/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// Summary reports the outcome of a ProcessDocuments run. Entities and
// Relationships are the graph totals after the run.
type Summary struct {
	RunID                  string        `json:"run_id"`
	Documents              int           `json:"documents"`
	Succeeded              int           `json:"succeeded"`
	Degraded               int           `json:"degraded"`
	Failed                 int           `json:"failed"`
	Skipped                int           `json:"skipped"`
	Entities               int           `json:"entities"`
	Relationships          int           `json:"relationships"`
	DiscardedRelationships int           `json:"discarded_relationships"`
	Checkpoints            int           `json:"checkpoints"`
	Duration               time.Duration `json:"duration"`
	IngestResult
}

type documentResult struct {
	entities  []common.CandidateEntity
	relations []common.CandidateRelationship
	degraded  bool
	discarded int
}

type section struct {
	title  string
	text   string
	offset int
}

// ProcessDocuments extracts entities and relationships from all documents
// and ingests them into the client's Builder. Documents are processed in
// parallel; a failing document is counted and the run continues. Only an
// invariant violation of the graph stops the run and is returned. When ctx
// is cancelled no further document is started and ctx.Err() is returned
// together with the partial summary.
func (g *GraphClient) ProcessDocuments(ctx context.Context, docs []common.Document) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: util.NewRunID(), Documents: len(docs)}
	progress := util.NewProgress(len(docs))
	mu := sync.Mutex{}

	logger.Info("[Graph] Processing", "run_id", summary.RunID, "total_documents", len(docs), "parallel", g.parallelDocs)

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.parallelDocs)

	for _, doc := range docs {
		eg.Go(func() error {
			select {
			case <-gCtx.Done():
				mu.Lock()
				summary.Skipped++
				mu.Unlock()
				return nil
			default:
			}

			if strings.TrimSpace(doc.ID) == "" || strings.TrimSpace(doc.Text) == "" {
				logger.Warn("[Graph] Skipping empty document", "document", doc.ID)
				mu.Lock()
				summary.Skipped++
				mu.Unlock()
				return nil
			}

			result, err := g.safeProcessDocument(gCtx, doc)
			if err != nil {
				logger.Error("[Graph] Document failed", "document", doc.ID, "err", err)
				mu.Lock()
				summary.Failed++
				mu.Unlock()
				return nil
			}

			done := g.timings.Track(timing.StageIngest, 1)
			ingest, err := g.builder.IngestFromPatient(doc.ID, doc.PatientID, result.entities, result.relations)
			done()
			if err != nil {
				return err
			}

			mu.Lock()
			summary.IngestResult = summary.IngestResult.Add(ingest)
			summary.DiscardedRelationships += result.discarded
			summary.Succeeded++
			if result.degraded {
				summary.Degraded++
			}
			mu.Unlock()

			finished := progress.Step()
			logger.Debug("[Graph] Document ingested",
				"document", doc.ID,
				"entities", len(result.entities),
				"relationships", len(result.relations),
				"degraded", result.degraded,
				"progress", progress.Percentage(),
				"eta", progress.Remaining().Round(time.Second),
			)

			if g.checkpointer != nil && g.checkpointN > 0 && finished%g.checkpointN == 0 {
				if g.checkpoint(ctx) {
					mu.Lock()
					summary.Checkpoints++
					mu.Unlock()
				}
			}
			return nil
		})
	}

	err := eg.Wait()

	summary.Entities = g.builder.EntityCount()
	summary.Relationships = g.builder.RelationshipCount()
	summary.Duration = time.Since(start)

	if err != nil {
		logger.Error("[Graph] Run aborted", "run_id", summary.RunID, "err", err)
		return summary, err
	}

	if g.checkpointer != nil && g.checkpoint(ctx) {
		summary.Checkpoints++
	}

	logger.Info("[Graph] Run completed",
		"run_id", summary.RunID,
		"succeeded", summary.Succeeded,
		"degraded", summary.Degraded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"entities", summary.Entities,
		"relationships", summary.Relationships,
		"rejected_relationships", summary.RejectedRelationships,
		"duration", summary.Duration.Round(time.Millisecond),
	)

	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	return summary, nil
}

// checkpoint saves a snapshot. Failures are logged and do not stop the run.
// Saves never overlap and each one stores a graph at least as new as the
// one before it.
func (g *GraphClient) checkpoint(ctx context.Context) bool {
	g.checkpointMu.Lock()
	defer g.checkpointMu.Unlock()
	defer g.timings.Track(timing.StageCheckpoint, 1)()

	snap := g.builder.Snapshot()
	if err := g.checkpointer.Save(context.WithoutCancel(ctx), snap); err != nil {
		logger.Warn("[Graph] Checkpoint failed", "err", err)
		return false
	}
	logger.Debug("[Graph] Checkpoint saved", "entities", len(snap.Entities), "relationships", len(snap.Relationships))
	return true
}

func (g *GraphClient) safeProcessDocument(ctx context.Context, doc common.Document) (res documentResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing document: %v", r)
		}
	}()
	return g.processDocument(ctx, doc), nil
}

func (g *GraphClient) sections(doc common.Document) []section {
	if doc.SectionHint != "" || !g.splitSections {
		return []section{{title: doc.SectionHint, text: doc.Text}}
	}
	parts := extract.SplitSections(doc.Text)
	out := make([]section, len(parts))
	for i, p := range parts {
		out[i] = section{title: p.Title, text: p.Text, offset: p.Offset}
	}
	return out
}

// processDocument runs extraction window by window. Spans of the returned
// candidates index into the document text.
func (g *GraphClient) processDocument(ctx context.Context, doc common.Document) documentResult {
	var res documentResult

	for _, sec := range g.sections(doc) {
		for _, w := range extract.SplitWindows(sec.text, g.chunkTokens, g.countTokens) {
			offset := sec.offset + w.Start
			entities, relations, degraded, discarded := g.processWindow(ctx, doc.ID, sec.title, w.Text)

			for _, e := range entities {
				e.Span = e.Span.Shift(offset)
				res.entities = append(res.entities, e)
			}
			for _, r := range relations {
				r.Span = r.Span.Shift(offset)
				res.relations = append(res.relations, r)
			}
			res.degraded = res.degraded || degraded
			res.discarded += discarded
		}
	}

	return res
}

func (g *GraphClient) processWindow(
	ctx context.Context,
	documentID string,
	sectionTitle string,
	text string,
) ([]common.CandidateEntity, []common.CandidateRelationship, bool, int) {
	ec := common.ExtractionContext{DocumentID: documentID, SectionHint: sectionTitle}

	done := g.timings.Track(timing.StageEntities, int64(len(text)))
	er := g.entities.Extract(ctx, text, ec)
	done()

	entities := make([]common.CandidateEntity, 0, len(er.Entities))
	categories := map[string]common.SOAPCategory{}
	for _, e := range er.Entities {
		if e.Confidence < g.minConfidence {
			continue
		}
		e.SOAPCategory = g.categorizer.CategorizeEntity(e.Type, sectionTitle)
		entities = append(entities, e)
		categories[refKey(e.Ref())] = e.SOAPCategory
		if _, ok := categories[util.NormalizeKey(e.Text)]; !ok {
			categories[util.NormalizeKey(e.Text)] = e.SOAPCategory
		}
	}
	if len(entities) < 2 {
		return entities, nil, er.Degraded, 0
	}

	done = g.timings.Track(timing.StageRelationships, int64(len(text)))
	rr := g.relations.Extract(ctx, text, entities)
	done()

	relations := make([]common.CandidateRelationship, 0, len(rr.Relationships))
	for _, r := range rr.Relationships {
		source, ok := categories[refKey(r.Source)]
		if !ok {
			source = categories[util.NormalizeKey(r.Source.Text)]
		}
		r.SOAPCategory = g.categorizer.CategorizeRelationship(r.Type, source)
		relations = append(relations, r)
	}

	return entities, relations, er.Degraded || rr.Degraded, rr.Discarded
}

func refKey(ref common.EntityRef) string {
	return util.NormalizeKey(ref.Text) + "\x1f" + string(ref.Type)
}

// IsFatal reports whether err from ProcessDocuments means the graph can no
// longer be trusted.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}
