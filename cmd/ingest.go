package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index preference documents for retrieval",
	Run: func(_ *cobra.Command, _ []string) {
		runIngest()
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().String("dir", "", "directory with preference documents (default is ingest.source-dir)")
	viper.BindPFlag("ingest.source-dir", ingestCmd.Flags().Lookup("dir"))
}

func runIngest() {
	ctx := context.Background()
	logger, config := setup()

	if err := requireSections(config); err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config.Ingest.SourceDir == "" {
		logger.Fatal("source directory is required", zap.String("hint", "set ingest.source-dir or pass --dir"))
	}
	if strings.EqualFold(config.Vector.Driver, vectorMemory) || config.Vector.Driver == "" {
		logger.Warn("memory vector index is not persisted, run serve with ingest.source-dir instead")
	}

	m, err := newModels(ctx, config.AI, config.Embedding.Dimensions, logger)
	if err != nil {
		logger.Fatal("building ai models", zap.Error(err))
	}
	index, err := newIndex(ctx, config.Vector, config.Embedding.Dimensions, logger)
	if err != nil {
		logger.Fatal("opening vector index", zap.Error(err))
	}
	ingester, err := newIngester(m, index, config.Ingest, logger)
	if err != nil {
		logger.Fatal("building ingester", zap.Error(err))
	}

	report, err := ingester.Run(ctx, config.Ingest.SourceDir)
	if err != nil {
		logger.Fatal("ingestion failed", zap.Error(err))
	}

	logger.Info("ingestion finished",
		zap.Int("files", report.Files),
		zap.Int("skipped", report.Skipped),
		zap.Int("chunks", report.Chunks),
		zap.Int64("replaced", report.Deleted),
	)
}
