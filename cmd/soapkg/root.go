package main

import (
	"github.com/OFFIS-RIT/soapkg/internal/config"
	"github.com/OFFIS-RIT/soapkg/internal/util"
	"github.com/OFFIS-RIT/soapkg/pkg/logger"
	"github.com/OFFIS-RIT/soapkg/pkg/logger/console"
	"github.com/OFFIS-RIT/soapkg/pkg/logger/file"

	"github.com/spf13/cobra"
)

var (
	envFile      string
	debugFlag    bool
	logFileFlag  string
	backendFlag  string
	snapshotFlag string
	cfg          config.Config
)

var rootCmd = &cobra.Command{
	Use:   "soapkg",
	Short: "Build SOAP organised clinical knowledge graphs",
	Long: `soapkg extracts clinical entities and relationships from free-text notes,
assigns them to SOAP categories (Subjective, Objective, Assessment, Plan)
and merges them into one knowledge graph with stable identifiers.

Configuration is read from the environment and an optional .env file;
flags override the environment.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&envFile, "env-file", "", "additional .env file to load")
	flags.BoolVar(&debugFlag, "debug", false, "enable debug logging")
	flags.StringVar(&logFileFlag, "log-file", "", "also write JSON logs to this rotating file")
	flags.StringVar(&backendFlag, "backend", "", "snapshot backend: file, s3 or sqlite")
	flags.StringVar(&snapshotFlag, "snapshot", "", "snapshot file or database path")

	rootCmd.AddCommand(buildCmd, extractCmd, exportCmd, statsCmd, queryCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	if envFile != "" {
		util.LoadEnv(envFile)
	}

	cfg = config.FromEnv()

	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.Debug = debugFlag
	}
	if flags.Changed("log-file") {
		cfg.LogFile = logFileFlag
	}
	if flags.Changed("backend") {
		cfg.SnapshotBackend = backendFlag
	}
	if flags.Changed("snapshot") {
		cfg.SnapshotPath = snapshotFlag
	}
	applyBuildFlags(cmd)
	applyExtractFlags(cmd)

	if err := cfg.Validate(); err != nil {
		return err
	}

	initLogger(cfg)
	return nil
}

func initLogger(cfg config.Config) {
	instances := []logger.LoggerInstance{
		console.NewConsoleLogger(console.ConsoleLoggerParams{
			Debug:  cfg.Debug,
			Prefix: "soapkg",
		}),
	}
	if cfg.LogFile != "" {
		instances = append(instances, file.NewFileLogger(file.FileLoggerParams{
			Path:       cfg.LogFile,
			Debug:      cfg.Debug,
			MaxSizeMB:  50,
			MaxBackups: 3,
			Compress:   true,
		}))
	}
	logger.Init(instances...)
}
