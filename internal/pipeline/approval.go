package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/screener/internal/agent"
	"github.com/spigell/screener/internal/notify"
	"github.com/spigell/screener/internal/resume"
	"github.com/spigell/screener/internal/utils"
)

type Notifier interface {
	Notify(ctx context.Context, summary, channel string) notify.Result
}

type Documents interface {
	Generate(ctx context.Context, jobDescription, customFocus string) (*resume.Document, error)
}

// Approval is the human-in-the-loop gate: a document is generated only after
// the approval request was delivered. It serves both screening runs and the
// conversational agent.
type Approval struct {
	notifier  Notifier
	documents Documents
	channel   string
	timeouts  Timeouts
	logger    *zap.Logger
}

func NewApproval(notifier Notifier, documents Documents, channel string, timeouts Timeouts, logger *zap.Logger) (*Approval, error) {
	if notifier == nil {
		return nil, errors.New("notifier is required")
	}
	if documents == nil {
		return nil, errors.New("document generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Approval{notifier: notifier, documents: documents, channel: channel, timeouts: timeouts, logger: logger}, nil
}

func (a *Approval) request(ctx context.Context, summary string) bool {
	callCtx, cancel := utils.WithTimeout(ctx, a.timeouts.Webhook)
	defer cancel()
	return a.notifier.Notify(callCtx, summary, a.channel).Delivered
}

func (a *Approval) generate(ctx context.Context, jobDescription, focus string) (*resume.Document, error) {
	callCtx, cancel := utils.WithTimeout(ctx, a.timeouts.Storage)
	defer cancel()
	return a.documents.Generate(callCtx, jobDescription, focus)
}

// Escalate implements agent.Escalator.
func (a *Approval) Escalate(ctx context.Context, req agent.Escalation) (agent.EscalationResult, error) {
	if err := validate.Struct(approvalRequest{Summary: req.Summary, JobDescription: req.JobDescription}); err != nil {
		return agent.EscalationResult{}, &StepError{Step: "approval", Err: fmt.Errorf("%w: %w", ErrInvalidHandoff, err)}
	}

	if !a.request(ctx, req.Summary) {
		a.logger.Info("approval not delivered, document withheld", zap.String("thread_id", req.ThreadID))
		return agent.EscalationResult{}, nil
	}

	doc, err := a.generate(ctx, req.JobDescription, req.CustomFocus)
	if err != nil {
		return agent.EscalationResult{Delivered: true}, &StepError{Step: "document", Err: err}
	}
	return agent.EscalationResult{Delivered: true, ArtifactRef: doc.Ref}, nil
}

type approvalRequest struct {
	Summary        string `validate:"required"`
	JobDescription string `validate:"required"`
}
