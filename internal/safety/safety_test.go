package safety

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/screener/internal/ai"
	"github.com/spigell/screener/internal/prompts"
)

type stubGenerator struct {
	response   string
	err        error
	lastPrompt string
}

func (s *stubGenerator) GenerateContent(_ context.Context, _, message string) (string, error) {
	s.lastPrompt = message
	return s.response, s.err
}

func (s *stubGenerator) Chat(ctx context.Context, system string, _ []ai.Message, message string) (string, error) {
	return s.GenerateContent(ctx, system, message)
}

func (s *stubGenerator) Model() string { return "stub-model" }

type stubScorer struct {
	scores map[string]float64
	err    error
}

func (s *stubScorer) Score(context.Context, string) (map[string]float64, error) {
	return s.scores, s.err
}

func newClassifier(t *testing.T, gen ai.Generator, scorer ai.Scorer, log *zap.Logger) *Classifier {
	t.Helper()
	set, err := prompts.Default()
	if err != nil {
		t.Fatalf("load prompts: %v", err)
	}
	c, err := New(gen, set, scorer, log, 0)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	return c
}

func TestClassifySafe(t *testing.T) {
	gen := &stubGenerator{response: `{"safe": true, "language": "EN"}`}
	c := newClassifier(t, gen, nil, zap.NewNop())

	verdict, err := c.Classify(context.Background(), "Senior AI Engineer, $220k, remote, blockchain focus")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !verdict.Safe || verdict.Language != "en" || verdict.Reason != "" {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}
	if !strings.Contains(gen.lastPrompt, "Senior AI Engineer") {
		t.Fatalf("message not included in prompt")
	}
}

func TestClassifyUnsafeKeepsLocalisedReason(t *testing.T) {
	gen := &stubGenerator{response: "```json\n{\"safe\": \"false\", \"reason\": \"Este mensaje es ofensivo.\", \"language\": \"es\"}\n```"}
	c := newClassifier(t, gen, nil, zap.NewNop())

	verdict, err := c.Classify(context.Background(), "Te odio")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if verdict.Safe {
		t.Fatal("expected unsafe verdict")
	}
	if verdict.Reason != "Este mensaje es ofensivo." || verdict.Language != "es" {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}
}

func TestClassifyUnsafeDefaultsReason(t *testing.T) {
	gen := &stubGenerator{response: `{"safe": false, "language": "en"}`}
	c := newClassifier(t, gen, nil, zap.NewNop())

	verdict, err := c.Classify(context.Background(), "I hate you")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Safe || verdict.Reason != defaultReason {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}
}

func TestClassifyMissingLanguageNeedsClarification(t *testing.T) {
	gen := &stubGenerator{response: `{"safe": true}`}
	c := newClassifier(t, gen, nil, zap.NewNop())

	verdict, err := c.Classify(context.Background(), "ok")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if verdict.Language != "en" || !verdict.NeedsClarification {
		t.Fatalf("unexpected verdict: %+v", verdict)
	}
}

func TestClassifyFailsClosed(t *testing.T) {
	cases := []struct {
		name string
		gen  *stubGenerator
	}{
		{name: "transport", gen: &stubGenerator{err: errors.New("unavailable")}},
		{name: "garbage", gen: &stubGenerator{response: "I think it is fine"}},
		{name: "missing safe", gen: &stubGenerator{response: `{"language": "en"}`}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newClassifier(t, tc.gen, nil, zap.NewNop())
			verdict, err := c.Classify(context.Background(), "hello")
			if err == nil {
				t.Fatal("expected error")
			}
			if verdict.Safe {
				t.Fatal("failed classification must not be safe")
			}
		})
	}
}

func TestClassifyEmptyMessage(t *testing.T) {
	c := newClassifier(t, &stubGenerator{}, nil, zap.NewNop())

	if _, err := c.Classify(context.Background(), "  \n"); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}

func TestScorerIsObservationalOnly(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	gen := &stubGenerator{response: `{"safe": true, "language": "en"}`}
	scorer := &stubScorer{scores: map[string]float64{"harassment": 0.99}}
	c := newClassifier(t, gen, scorer, zap.New(core))

	verdict, err := c.Classify(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !verdict.Safe {
		t.Fatal("scores must not change the verdict")
	}
	if verdict.Scores["harassment"] != 0.99 {
		t.Fatalf("scores not attached: %v", verdict.Scores)
	}
	if logs.FilterMessage("message classified").Len() != 1 {
		t.Fatal("expected classification log entry")
	}

	failing := newClassifier(t, gen, &stubScorer{err: errors.New("down")}, zap.NewNop())
	if _, err := failing.Classify(context.Background(), "hello"); err != nil {
		t.Fatalf("scorer failure must not fail classification: %v", err)
	}
}
