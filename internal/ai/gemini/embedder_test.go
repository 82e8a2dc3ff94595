package gemini

import (
	"context"
	"testing"

	"google.golang.org/genai"
)

type fakeEmbedContenter struct {
	model  string
	config *genai.EmbedContentConfig
	count  int
	resp   *genai.EmbedContentResponse
}

func (f *fakeEmbedContenter) EmbedContent(_ context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.model = model
	f.config = config
	f.count = len(contents)
	return f.resp, nil
}

func TestEmbedderPassesDimensions(t *testing.T) {
	fake := &fakeEmbedContenter{resp: &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: []float32{0.1, 0.2}}, {Values: []float32{0.3, 0.4}}},
	}}
	e := &Embedder{models: fake, model: "text-embedding-004", dimensions: 2}

	vectors, err := e.Embed(context.Background(), []string{"go", "rust"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(vectors) != 2 || vectors[1][0] != 0.3 {
		t.Fatalf("unexpected vectors: %v", vectors)
	}
	if fake.config.OutputDimensionality == nil || *fake.config.OutputDimensionality != 2 {
		t.Fatalf("expected output dimensionality to be set")
	}
	if fake.count != 2 || fake.model != "text-embedding-004" {
		t.Fatalf("unexpected request: model=%s count=%d", fake.model, fake.count)
	}
}

func TestEmbedderRejectsMissingEmbeddings(t *testing.T) {
	fake := &fakeEmbedContenter{resp: &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: []float32{0.1}}},
	}}
	e := &Embedder{models: fake, model: "m"}

	if _, err := e.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error on count mismatch")
	}
}

func TestEmbedderRejectsEmptyText(t *testing.T) {
	e := &Embedder{models: &fakeEmbedContenter{}, model: "m"}

	if _, err := e.Embed(context.Background(), []string{" "}); err == nil {
		t.Fatal("expected error")
	}
}
