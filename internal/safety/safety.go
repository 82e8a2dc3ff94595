package safety

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spigell/screener/internal/ai"
	"github.com/spigell/screener/internal/logger"
	"github.com/spigell/screener/internal/prompts"
	"github.com/spigell/screener/internal/utils"
)

const (
	defaultLanguage     = "en"
	defaultReason       = "This message cannot be processed because it does not meet our content policy."
	defaultMaxLogLength = 200
)

// ErrEmptyMessage is returned for blank input.
var ErrEmptyMessage = errors.New("message must not be empty")

// Verdict is the outcome of classifying one inbound message.
type Verdict struct {
	Safe bool
	// Reason is addressed to the sender in Language. Set only when unsafe.
	Reason             string
	Language           string
	NeedsClarification bool
	Scores             map[string]float64
}

type reply struct {
	Safe               *bool  `mapstructure:"safe"`
	Reason             string `mapstructure:"reason"`
	Language           string `mapstructure:"language"`
	NeedsClarification bool   `mapstructure:"needs_clarification"`
}

// Classifier is the content safety gate.
type Classifier struct {
	generator ai.Generator
	prompts   *prompts.Set
	scorer    ai.Scorer
	logger    *zap.Logger
	maxLogLen int
}

// New creates a Classifier. scorer is optional.
func New(generator ai.Generator, set *prompts.Set, scorer ai.Scorer, log *zap.Logger, maxLogLength int) (*Classifier, error) {
	if generator == nil {
		return nil, errors.New("generator is required")
	}
	if set == nil {
		return nil, errors.New("prompt set is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}

	return &Classifier{
		generator: generator,
		prompts:   set,
		scorer:    scorer,
		logger:    log,
		maxLogLen: maxLogLength,
	}, nil
}

// Classify never reports a message as safe when the model call or its reply fails.
func (c *Classifier) Classify(ctx context.Context, message string) (Verdict, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Verdict{}, ErrEmptyMessage
	}

	prompt, err := c.prompts.Render(prompts.Safety, map[string]string{"MESSAGE": message})
	if err != nil {
		return Verdict{}, err
	}

	fields := logger.CommonFields("", c.generator.Model())
	c.logger.Debug("safety classification request", append(fields,
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("message_preview", utils.TruncateForLog(message, c.maxLogLen)),
	)...)

	raw, err := c.generator.GenerateContent(ctx, "", prompt)
	if err != nil {
		return Verdict{}, fmt.Errorf("classify message: %w", err)
	}

	c.logger.Debug("safety classification response", append(fields,
		zap.String("response_preview", utils.TruncateForLog(raw, c.maxLogLen)),
	)...)

	var parsed reply
	if err := ai.DecodeJSONReply(raw, &parsed); err != nil {
		return Verdict{}, fmt.Errorf("classify message: %w", err)
	}
	if parsed.Safe == nil {
		return Verdict{}, errors.New("classify message: reply has no safe field")
	}

	verdict := Verdict{
		Safe:               *parsed.Safe,
		Language:           strings.ToLower(strings.TrimSpace(parsed.Language)),
		NeedsClarification: parsed.NeedsClarification,
	}
	if verdict.Language == "" {
		verdict.Language = defaultLanguage
		verdict.NeedsClarification = true
	}

	if !verdict.Safe {
		verdict.Reason = strings.TrimSpace(parsed.Reason)
		if verdict.Reason == "" {
			verdict.Reason = defaultReason
		}
	}

	verdict.Scores = c.score(ctx, message)

	c.logger.Info("message classified",
		zap.Bool("safe", verdict.Safe),
		zap.String("language", verdict.Language),
		zap.Bool("needs_clarification", verdict.NeedsClarification),
		zap.Any("scores", verdict.Scores),
	)

	return verdict, nil
}

// score collects secondary moderation signals. Failures are logged only.
func (c *Classifier) score(ctx context.Context, message string) map[string]float64 {
	if c.scorer == nil {
		return nil
	}

	scores, err := c.scorer.Score(ctx, message)
	if err != nil {
		c.logger.Warn("moderation scoring failed", zap.Error(err))
		return nil
	}
	return scores
}
