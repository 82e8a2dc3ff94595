package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/screener/internal/pipeline"
)

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Screen one job description and print the outcome",
	Long: "Screen one job description through safety, analysis, approval and document steps.\n" +
		"The description is read from --job, --file or standard input.",
	Run: func(cmd *cobra.Command, _ []string) {
		screen(cmd)
	},
}

func init() {
	rootCmd.AddCommand(screenCmd)

	screenCmd.Flags().String("job", "", "job description text")
	screenCmd.Flags().StringP("file", "f", "", "file with the job description")
}

func screen(cmd *cobra.Command) {
	ctx := context.Background()
	logger, config := setup()

	job, err := readJobDescription(cmd, os.Stdin)
	if err != nil {
		logger.Fatal("reading job description", zap.Error(err))
	}

	svc, err := newServices(ctx, logger, config)
	if err != nil {
		logger.Fatal("building services", zap.Error(err))
	}

	result, err := svc.pipeline.Screen(ctx, pipeline.Request{JobDescription: job})

	var rejection *pipeline.RejectionError
	switch {
	case errors.As(err, &rejection):
		logger.Info("exiting", zap.String("reason", "message rejected"),
			zap.String("rejection", rejection.Reason),
			zap.String("language", rejection.Language),
		)
		os.Exit(2)
	case err != nil:
		logger.Fatal("screening failed", zap.Error(err))
	}

	pretty, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(pretty))
}

func readJobDescription(cmd *cobra.Command, stdin io.Reader) (string, error) {
	if job, _ := cmd.Flags().GetString("job"); strings.TrimSpace(job) != "" {
		return job, nil
	}

	if file, _ := cmd.Flags().GetString("file"); file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return string(data), nil
	}

	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errors.New("job description is empty (use --job, --file or stdin)")
	}
	return string(data), nil
}
