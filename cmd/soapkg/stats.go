package main

import (
	"github.com/OFFIS-RIT/soapkg/pkg/graph"
	"github.com/OFFIS-RIT/soapkg/pkg/soap"

	"github.com/spf13/cobra"
)

var (
	statsTop        int
	statsCentrality bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print structure and SOAP statistics of the stored graph",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().IntVar(&statsTop, "top", 10, "number of top ranked entities to list")
	statsCmd.Flags().BoolVar(&statsCentrality, "centrality", false, "also rank entities by betweenness and closeness (slow on large graphs)")
}

func runStats(cmd *cobra.Command, args []string) error {
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

	out := struct {
		Graph      graph.Statistics      `json:"graph"`
		Validation soap.ValidationReport `json:"validation"`
	}{
		Graph:      builder.Statistics(statsTop),
		Validation: soap.Validate(builder.Entities()),
	}
	if statsCentrality {
		c := builder.Centrality(statsTop)
		out.Graph.Centrality = &c
	}

	return writeResult(cmd.OutOrStdout(), out)
}
