package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

const defaultModerationModel = "omni-moderation-latest"

type moderator interface {
	Moderations(ctx context.Context, request goopenai.ModerationRequest) (goopenai.ModerationResponse, error)
}

// Scorer reports per-category moderation scores. It implements ai.Scorer.
type Scorer struct {
	client moderator
	model  string
}

func NewScorer(client *goopenai.Client, model string) (*Scorer, error) {
	if client == nil {
		return nil, errors.New("openai client is required")
	}
	if model = strings.TrimSpace(model); model == "" {
		model = defaultModerationModel
	}
	return &Scorer{client: client, model: model}, nil
}

func (s *Scorer) Score(ctx context.Context, text string) (map[string]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("text must not be empty")
	}

	resp, err := s.client.Moderations(ctx, goopenai.ModerationRequest{Input: text, Model: s.model})
	if err != nil {
		return nil, fmt.Errorf("moderations: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, errors.New("openai api returned no moderation results")
	}

	// Category fields vary between API revisions; the JSON tags are the stable names.
	raw, err := json.Marshal(resp.Results[0].CategoryScores)
	if err != nil {
		return nil, fmt.Errorf("encode category scores: %w", err)
	}

	scores := make(map[string]float64)
	if err := json.Unmarshal(raw, &scores); err != nil {
		return nil, fmt.Errorf("decode category scores: %w", err)
	}

	return scores, nil
}
