package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/screener/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the screening and conversation HTTP API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default is server.addr)")
	viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup()
	logger.Info("starting the screener", zap.String("version", version))

	svc, err := newServices(ctx, logger, config)
	if err != nil {
		logger.Fatal("building services", zap.Error(err))
	}

	if config.Ingest.SourceDir != "" && strings.EqualFold(config.Vector.Driver, vectorMemory) {
		ingester, err := newIngester(svc.models, svc.index, config.Ingest, logger)
		if err != nil {
			logger.Fatal("building ingester", zap.Error(err))
		}
		report, err := ingester.Run(ctx, config.Ingest.SourceDir)
		if err != nil {
			logger.Fatal("indexing preference documents", zap.Error(err))
		}
		logger.Info("preference documents indexed", zap.Int("files", report.Files), zap.Int("chunks", report.Chunks))
	}

	serverCfg := server.Config{}
	if config.Server != nil {
		serverCfg = *config.Server
	}
	if serverCfg.PublicDir == "" {
		serverCfg.PublicDir = svc.publicDir
	}

	srv, err := server.New(serverCfg, svc.pipeline, svc.threads, logger.Named("http"))
	if err != nil {
		logger.Fatal("building http server", zap.Error(err))
	}

	if err := srv.Run(ctx); err != nil {
		logger.Fatal("http server stopped", zap.Error(err))
	}
	logger.Info("exiting", zap.String("reason", "shutdown requested"))
}
