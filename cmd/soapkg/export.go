package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/OFFIS-RIT/soapkg/pkg/common"
	"github.com/OFFIS-RIT/soapkg/pkg/export"

	"github.com/spf13/cobra"
)

var (
	exportOut      string
	exportFormat   string
	exportDocument string
	exportPatient  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the stored graph as JSON or GraphML",
	Long: `Export the stored graph. Without --out the export is written to stdout.

Examples:
  soapkg export --format graphml --out kg.graphml
  soapkg export --document note-17              # only what note-17 contributed
  soapkg export --patient 10000032              # all notes of one patient`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	flags := exportCmd.Flags()
	flags.StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
	flags.StringVarP(&exportFormat, "format", "f", export.FormatJSON, "export format: json or graphml")
	flags.StringVar(&exportDocument, "document", "", "only export the subgraph observed in this document")
	flags.StringVar(&exportPatient, "patient", "", "only export the subgraph observed in this patient's documents")
}

func runExport(cmd *cobra.Command, args []string) error {
	if exportDocument != "" && exportPatient != "" {
		return errors.New("--document and --patient cannot be combined")
	}
	ctx := cmd.Context()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	builder, err := loadBuilder(ctx, st, false)
	if err != nil {
		return err
	}

	var snap common.GraphSnapshot
	switch {
	case exportDocument != "":
		snap = builder.DocumentSubgraph(exportDocument)
	case exportPatient != "":
		snap = builder.PatientSubgraph(exportPatient)
	default:
		snap = builder.Snapshot()
	}

	if exportOut == "" {
		return export.Write(cmd.OutOrStdout(), exportFormat, snap)
	}
	return exportToFile(exportOut, exportFormat, snap)
}

func exportToFile(path string, format string, snap common.GraphSnapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := export.Write(f, format, snap); err != nil {
		return err
	}
	return f.Close()
}
