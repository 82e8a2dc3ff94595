package cmd

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/screener/internal/resume"
	"github.com/spigell/screener/internal/vectorstore/memory"
)

func newScreenFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "screen"}
	cmd.Flags().String("job", "", "")
	cmd.Flags().StringP("file", "f", "", "")
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return cmd
}

func TestReadJobDescriptionPrefersFlag(t *testing.T) {
	cmd := newScreenFlags(t, "--job", "Senior AI Engineer")

	job, err := readJobDescription(cmd, strings.NewReader("ignored"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job != "Senior AI Engineer" {
		t.Fatalf("unexpected job: %q", job)
	}
}

func TestReadJobDescriptionFallsBackToStdin(t *testing.T) {
	job, err := readJobDescription(newScreenFlags(t), strings.NewReader("Backend role, remote"))
	if err != nil || job != "Backend role, remote" {
		t.Fatalf("unexpected result: %q %v", job, err)
	}

	if _, err := readJobDescription(newScreenFlags(t), strings.NewReader("  \n")); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestRequireSectionsListsMissing(t *testing.T) {
	err := requireSections(&Config{AI: &AIConfig{}})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "embedding") || strings.Contains(err.Error(), "ai,") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRedactedHidesMinioSecret(t *testing.T) {
	config := &Config{Resume: &ResumeConfig{Minio: &resume.MinioConfig{SecretAccessKey: "s3cr3t"}}}

	out := redacted(config)

	if out.Resume.Minio.SecretAccessKey != "***" {
		t.Fatalf("secret leaked: %q", out.Resume.Minio.SecretAccessKey)
	}
	if config.Resume.Minio.SecretAccessKey != "s3cr3t" {
		t.Fatalf("original config must not be modified")
	}
}

func TestNewIndexDefaultsToMemory(t *testing.T) {
	index, err := newIndex(context.Background(), &VectorConfig{}, 8, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := index.(*memory.Store); !ok {
		t.Fatalf("expected memory index, got %T", index)
	}

	if _, err := newIndex(context.Background(), &VectorConfig{Driver: "milvus"}, 8, zap.NewNop()); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}

func TestNewArtifactStoreLocal(t *testing.T) {
	dir := t.TempDir()

	store, publicDir, err := newArtifactStore(context.Background(), &ResumeConfig{PublicDir: dir})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := store.(*resume.LocalStore); !ok || publicDir != dir {
		t.Fatalf("unexpected store %T at %q", store, publicDir)
	}

	if _, _, err := newArtifactStore(context.Background(), &ResumeConfig{Storage: "minio"}); err == nil {
		t.Fatalf("expected error for minio without config")
	}
}

func TestNewModelsRejectsUnknownProvider(t *testing.T) {
	if _, err := newModels(context.Background(), &AIConfig{Provider: "llama"}, 8, zap.NewNop()); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
	if _, err := newModels(context.Background(), &AIConfig{Provider: "gemini"}, 8, zap.NewNop()); err == nil {
		t.Fatalf("expected missing section error")
	}
}
