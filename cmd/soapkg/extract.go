package main

import (
	"encoding/json"

	"github.com/OFFIS-RIT/soapkg/internal/config"
	"github.com/OFFIS-RIT/soapkg/pkg/common"
	"github.com/OFFIS-RIT/soapkg/pkg/extract"
	"github.com/OFFIS-RIT/soapkg/pkg/logger"
	"github.com/OFFIS-RIT/soapkg/pkg/soap"

	"github.com/spf13/cobra"
)

var (
	extractNoLLM    bool
	extractLimit    int
	extractParallel int
)

var extractCmd = &cobra.Command{
	Use:   "extract [notes.jsonl ...]",
	Short: "Print the entities found in each note without building a graph",
	Long: `Run entity extraction over notes and print one JSON line per note with
the candidates and their SOAP category. The stored graph is not touched.

Examples:
  soapkg extract --no-llm --limit 5 notes.jsonl
  soapkg extract --parallel 8 discharge.csv > entities.jsonl`,
	RunE: runExtract,
}

func init() {
	flags := extractCmd.Flags()
	flags.BoolVar(&extractNoLLM, "no-llm", false, "disable the model and use rule based extraction only")
	flags.IntVar(&extractLimit, "limit", 0, "process at most this many notes")
	flags.IntVar(&extractParallel, "parallel", 0, "notes extracted in parallel (default PARALLEL_DOCUMENTS)")
}

func applyExtractFlags(cmd *cobra.Command) {
	if cmd != extractCmd {
		return
	}
	if extractNoLLM {
		cfg.AIAdapter = config.AdapterNone
	}
	if cmd.Flags().Changed("parallel") {
		cfg.ParallelDocuments = extractParallel
	}
}

type extractedNote struct {
	DocumentID string                   `json:"document_id"`
	PatientID  string                   `json:"patient_id,omitempty"`
	Degraded   bool                     `json:"degraded"`
	Entities   []common.CandidateEntity `json:"entities"`
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	docs, err := loadDocuments(args, extractLimit, 0)
	if err != nil {
		return err
	}

	aiClient, err := newAIClient(cfg)
	if err != nil {
		return err
	}
	extractor := extract.NewEntityExtractor(extract.NewEntityExtractorParams{
		Client:        aiClient,
		MaxTextLength: cfg.MaxTextLength,
	})

	inputs := make([]extract.EntityInput, len(docs))
	for i, d := range docs {
		inputs[i] = extract.EntityInput{
			Text:    d.Text,
			Context: common.ExtractionContext{DocumentID: d.ID, SectionHint: d.SectionHint},
		}
	}
	results := extract.ExtractEntitiesBatch(ctx, extractor, inputs, cfg.ParallelDocuments)

	categorizer := soap.NewCategorizer()
	enc := json.NewEncoder(cmd.OutOrStdout())
	degraded := 0
	for i, res := range results {
		note := extractedNote{
			DocumentID: docs[i].ID,
			PatientID:  docs[i].PatientID,
			Degraded:   res.Degraded,
			Entities:   make([]common.CandidateEntity, 0, len(res.Entities)),
		}
		for _, e := range res.Entities {
			if e.Confidence < cfg.MinConfidence {
				continue
			}
			e.SOAPCategory = categorizer.CategorizeEntity(e.Type, docs[i].SectionHint)
			note.Entities = append(note.Entities, e)
		}
		if res.Degraded {
			degraded++
		}
		if err := enc.Encode(note); err != nil {
			return err
		}
	}

	logger.Info("[Extract] Done", "documents", len(docs), "degraded", degraded)
	return ctx.Err()
}
