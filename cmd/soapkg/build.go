package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/OFFIS-RIT/soapkg/internal/config"
	"github.com/OFFIS-RIT/soapkg/internal/timing"
	"github.com/OFFIS-RIT/soapkg/pkg/ai"
	"github.com/OFFIS-RIT/soapkg/pkg/export"
	"github.com/OFFIS-RIT/soapkg/pkg/extract"
	"github.com/OFFIS-RIT/soapkg/pkg/graph"
	"github.com/OFFIS-RIT/soapkg/pkg/logger"
	"github.com/OFFIS-RIT/soapkg/pkg/soap"

	"github.com/spf13/cobra"
)

var (
	buildResume     bool
	buildNoLLM      bool
	buildAdapter    string
	buildLimit      int
	buildPatients   int
	buildParallel   int
	buildCheckpoint int
	buildExport     string
	buildFormat     string
	buildSummary    string
)

var buildCmd = &cobra.Command{
	Use:   "build [notes.jsonl ...]",
	Short: "Extract a knowledge graph from clinical notes",
	Long: `Read clinical notes as JSON lines and merge them into the knowledge graph.

Each line is one note with "id" (or "note_id"), "text" and optionally
"patient_id" (or "subject_id") and "section_hint". Without arguments
notes are read from stdin.

Examples:
  soapkg build notes.jsonl                      # new graph, rule based
  soapkg build --resume more.jsonl              # extend the stored graph
  soapkg build --adapter ollama notes.jsonl     # use a local model
  soapkg build --patients 10 --export kg.graphml --format graphml notes.jsonl`,
	RunE: runBuild,
}

func init() {
	flags := buildCmd.Flags()
	flags.BoolVar(&buildResume, "resume", false, "continue from the stored snapshot")
	flags.BoolVar(&buildNoLLM, "no-llm", false, "disable the model and use rule based extraction only")
	flags.StringVar(&buildAdapter, "adapter", "", "model adapter: openai, ollama or none")
	flags.IntVar(&buildLimit, "limit", 0, "process at most this many notes")
	flags.IntVar(&buildPatients, "patients", 0, "process the notes of at most this many patients")
	flags.IntVar(&buildParallel, "parallel", 0, "documents processed in parallel")
	flags.IntVar(&buildCheckpoint, "checkpoint", 0, "save a snapshot every N documents")
	flags.StringVar(&buildExport, "export", "", "also export the graph to this file")
	flags.StringVar(&buildFormat, "format", export.FormatJSON, "export format: json or graphml")
	flags.StringVar(&buildSummary, "summary", "", "write the run summary as JSON to this file")
}

func applyBuildFlags(cmd *cobra.Command) {
	if cmd != buildCmd {
		return
	}
	flags := cmd.Flags()
	if flags.Changed("adapter") {
		cfg.AIAdapter = buildAdapter
	}
	if buildNoLLM {
		cfg.AIAdapter = config.AdapterNone
	}
	if flags.Changed("parallel") {
		cfg.ParallelDocuments = buildParallel
	}
	if flags.Changed("checkpoint") {
		cfg.CheckpointInterval = buildCheckpoint
	}
}

type runReport struct {
	Summary    graph.Summary                `json:"summary"`
	Validation soap.ValidationReport        `json:"validation"`
	Timings    map[string]timing.StageStats `json:"timings"`
	AICalls    *ai.ResilienceStats          `json:"ai_calls,omitempty"`
	AIUsage    *ai.ModelMetrics             `json:"ai_usage,omitempty"`
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	docs, err := loadDocuments(args, buildLimit, buildPatients)
	if err != nil {
		return err
	}

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	builder := graph.NewBuilder(graph.NewBuilderParams{})
	if buildResume {
		builder, err = loadBuilder(ctx, st, true)
		if err != nil {
			return fmt.Errorf("cannot resume: %w", err)
		}
	}

	aiClient, err := newAIClient(cfg)
	if err != nil {
		return err
	}

	entities := extract.NewEntityExtractor(extract.NewEntityExtractorParams{
		Client:        aiClient,
		MaxTextLength: cfg.MaxTextLength,
	})
	relations := extract.NewRelationshipExtractor(extract.NewRelationshipExtractorParams{
		Client:              aiClient,
		WindowTokens:        cfg.WindowTokens,
		MaxEntities:         cfg.MaxEntities,
		MaxPairs:            cfg.MaxEntityPairs,
		DisableCoOccurrence: cfg.DisableCoOccurrence,
	})

	var checkpointer graph.Checkpointer
	if cfg.CheckpointInterval > 0 {
		checkpointer = st
	}

	client, err := graph.NewGraphClient(graph.NewGraphClientParams{
		EntityExtractor:         entities,
		RelationshipExtractor:   relations,
		Builder:                 builder,
		Checkpointer:            checkpointer,
		TokenEncoder:            cfg.TokenEncoding,
		ParallelDocuments:       cfg.ParallelDocuments,
		ChunkTokens:             cfg.ChunkTokens,
		MinConfidence:           cfg.MinConfidence,
		CheckpointInterval:      cfg.CheckpointInterval,
		DisableSectionDetection: cfg.DisableSectionDetection,
	})
	if err != nil {
		return err
	}

	summary, runErr := client.ProcessDocuments(ctx, docs)
	if graph.IsFatal(runErr) {
		return runErr
	}

	// The graph is consistent even after cancellation, so keep what was built.
	snap := builder.Snapshot()
	if err := st.Save(context.WithoutCancel(ctx), snap); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	report := runReport{
		Summary:    summary,
		Validation: soap.Validate(snap.Entities),
		Timings:    client.Timings(),
	}
	if aiClient != nil {
		calls, usage := aiClient.Stats(), aiClient.Metrics()
		report.AICalls, report.AIUsage = &calls, &usage
		logger.Info("[AI] Usage", "calls", calls.Calls, "failures", calls.Failures, "tokens", usage.TotalTokens)
	}
	for _, w := range report.Validation.Warnings {
		logger.Warn("[SOAP] " + w)
	}

	if buildSummary != "" {
		if err := writeJSONFile(buildSummary, report); err != nil {
			return err
		}
	}
	if buildExport != "" {
		if err := exportToFile(buildExport, buildFormat, snap); err != nil {
			return err
		}
		logger.Info("[Export] Graph exported", "path", buildExport, "format", buildFormat)
	}

	return runErr
}

func writeJSONFile(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
