package agent

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/screener/internal/ai"
	"github.com/spigell/screener/internal/prompts"
	"github.com/spigell/screener/internal/utils"
)

// Assessment is the fit analysis of one job description.
type Assessment struct {
	Title        string   `mapstructure:"title"`
	Verdict      string   `mapstructure:"verdict"`
	Fit          bool     `mapstructure:"fit"`
	Score        float64  `mapstructure:"score"`
	Reasons      []string `mapstructure:"reasons"`
	Compensation string   `mapstructure:"compensation"`
	Raw          string   `mapstructure:"-"`
}

// Analyze evaluates a job description against the retrieved background.
func (a *Agent) Analyze(ctx context.Context, jobDescription string) (*Assessment, error) {
	jobDescription = strings.TrimSpace(jobDescription)
	if jobDescription == "" {
		return nil, errors.New("job description is required")
	}

	preferences := a.retriever.Context(ctx, jobDescription, a.config.TopK)

	prompt, err := a.prompts.Render(prompts.Analysis, map[string]string{
		"JOB_DESCRIPTION": jobDescription,
		"PREFERENCES":     preferences,
		"FOCUS_AREAS":     prompts.SanitizeBlock(a.config.FocusAreas, maxFocusRunes),
	})
	if err != nil {
		return nil, err
	}

	a.logger.Debug("analysis request",
		zap.String("model", a.generator.Model()),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, a.config.MaxLogLength)),
	)

	callCtx, cancel := utils.WithTimeout(ctx, a.config.ModelTimeout)
	defer cancel()

	raw, err := a.generator.GenerateContent(callCtx, "", prompt)
	if err != nil {
		return nil, fmt.Errorf("analyze job description: %w", err)
	}

	a.logger.Debug("analysis response",
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, a.config.MaxLogLength)),
	)

	var assessment Assessment
	if err := ai.DecodeJSONReply(raw, &assessment); err != nil {
		return nil, fmt.Errorf("analyze job description: %w", err)
	}
	assessment.Raw = raw
	assessment.Title = strings.TrimSpace(assessment.Title)
	assessment.Verdict = strings.TrimSpace(assessment.Verdict)
	if math.IsNaN(assessment.Score) {
		assessment.Score = 0
	}

	if a.config.MinimumFitScore > 0 && assessment.Fit && assessment.Score < a.config.MinimumFitScore {
		a.logger.Debug("set fit to false by score threshold",
			zap.Float64("score", assessment.Score),
			zap.Float64("threshold", a.config.MinimumFitScore),
		)
		assessment.Fit = false
	}

	a.logger.Info("job description analyzed",
		zap.String("title", assessment.Title),
		zap.Bool("fit", assessment.Fit),
		zap.Float64("score", assessment.Score),
	)

	return &assessment, nil
}
