package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/screener/internal/agent"
	"github.com/spigell/screener/internal/logger"
	"github.com/spigell/screener/internal/safety"
	"github.com/spigell/screener/internal/threads"
)

type Classifier interface {
	Classify(ctx context.Context, message string) (safety.Verdict, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, jobDescription string) (*agent.Assessment, error)
}

type Conversation interface {
	Converse(ctx context.Context, threadID, message, languageHint string) (*agent.Reply, error)
}

// Timeouts bound each external call made by the pipeline. Zero disables a bound.
type Timeouts struct {
	Model   time.Duration `mapstructure:"model"`
	Webhook time.Duration `mapstructure:"webhook"`
	Storage time.Duration `mapstructure:"storage"`
}

type Config struct {
	// StrictAlignment also rejects positive analyses whose verdict text turns the role down.
	StrictAlignment bool
	Timeouts        Timeouts
}

// Pipeline runs screening requests and conversation turns.
type Pipeline struct {
	classifier      Classifier
	analyzer        Analyzer
	conversation    Conversation
	approval        *Approval
	locker          *threads.Locker
	strictAlignment bool
	timeouts        Timeouts
	stats           *Stats
	logger          *zap.Logger
}

// New creates a Pipeline. conversation may be nil when only screening is used.
func New(classifier Classifier, analyzer Analyzer, conversation Conversation, approval *Approval, cfg Config, log *zap.Logger) (*Pipeline, error) {
	if classifier == nil {
		return nil, errors.New("classifier is required")
	}
	if analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if approval == nil {
		return nil, errors.New("approval is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Pipeline{
		classifier:      classifier,
		analyzer:        analyzer,
		conversation:    conversation,
		approval:        approval,
		locker:          threads.NewLocker(),
		strictAlignment: cfg.StrictAlignment,
		timeouts:        cfg.Timeouts,
		stats:           newStats(),
		logger:          log,
	}, nil
}

// Screen runs safety, analysis, alignment, approval and document steps in
// order. An unsafe message returns a *RejectionError and nothing else runs.
func (p *Pipeline) Screen(ctx context.Context, req Request) (*Result, error) {
	result, err := p.screenSteps(ctx, req)
	switch {
	case errors.Is(err, ErrRejected):
		p.stats.record(OutcomeRejected)
	case errors.Is(err, ErrInvalidRequest):
		p.logger.Debug("screening request refused", zap.Error(err))
	case err != nil:
		p.stats.record(OutcomeFailed)
		p.logger.Error("screening failed", zap.Error(err))
	default:
		p.stats.record(result.Status)
		p.logger.Info("screening finished", zap.String("status", string(result.Status)))
	}
	return result, err
}

func (p *Pipeline) screenSteps(ctx context.Context, req Request) (*Result, error) {
	if err := validate.Struct(req); err != nil {
		return nil, &StepError{Step: StepRequest, Err: fmt.Errorf("%w: %w", ErrInvalidRequest, err)}
	}

	s, err := runStep(ctx, p.logger, StepSafety, req, p.screen)
	if err != nil {
		return nil, err
	}

	a, err := runStep(ctx, p.logger, StepAnalysis, s, p.analyze)
	if err != nil {
		return nil, err
	}

	al, err := runStep(ctx, p.logger, StepAlignment, a, p.align)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Status:   OutcomeNoEscalation,
		Title:    al.Title,
		Verdict:  al.Verdict,
		Score:    al.Score,
		Language: al.Language,
	}
	if !al.Aligned {
		return result, nil
	}

	ap, err := runStep(ctx, p.logger, StepApproval, al, p.requestApproval)
	if err != nil {
		return nil, err
	}
	result.Delivered = ap.Delivered
	if !ap.Delivered {
		result.Status = OutcomeApprovalPending
		return result, nil
	}

	doc, err := runStep(ctx, p.logger, StepDocument, ap, p.generate)
	if err != nil {
		return nil, err
	}

	result.Status = OutcomeGenerated
	result.ArtifactRef = doc.ArtifactRef
	return result, nil
}

// Converse gates a conversation message through the safety filter and hands
// it to the agent. Messages on the same thread are processed one at a time
// in arrival order.
func (p *Pipeline) Converse(ctx context.Context, msg Message) (*agent.Reply, error) {
	if p.conversation == nil {
		return nil, errors.New("conversation agent is not configured")
	}
	if err := validate.Struct(msg); err != nil {
		return nil, &StepError{Step: StepRequest, Err: fmt.Errorf("%w: %w", ErrInvalidRequest, err)}
	}

	id, err := threads.NormalizeID(msg.ThreadID)
	if err != nil {
		return nil, &StepError{Step: StepRequest, Err: fmt.Errorf("%w: %w", ErrInvalidRequest, err)}
	}

	unlock, err := p.locker.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	log := logger.WithFields(p.logger, logger.ThreadFields(id, "")...)

	s, err := runStep(ctx, log, StepSafety, Request{JobDescription: msg.Message}, p.screen)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			p.stats.record(OutcomeRejected)
		}
		return nil, err
	}

	reply, err := p.conversation.Converse(ctx, id, msg.Message, s.Language)
	if err != nil {
		return nil, &StepError{Step: "conversation", Err: err}
	}
	p.stats.recordTurn()
	return reply, nil
}

func (p *Pipeline) Stats() Snapshot {
	return p.stats.snapshot()
}
