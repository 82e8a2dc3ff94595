package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/spigell/screener/internal/logger"
	"github.com/spigell/screener/internal/utils"
)

const (
	StepRequest   = "request"
	StepSafety    = "safety"
	StepAnalysis  = "analysis"
	StepAlignment = "alignment"
	StepApproval  = "approval"
	StepDocument  = "document"

	maxSummaryJobRunes = 1500
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// runStep validates the input handed to a step, runs it and validates what it
// produced. Rejections pass through untouched; other failures are tagged with
// the step name.
func runStep[In, Out any](ctx context.Context, log *zap.Logger, name string, in In, fn func(context.Context, In) (Out, error)) (Out, error) {
	var zero Out

	if err := validate.Struct(in); err != nil {
		return zero, &StepError{Step: name, Err: fmt.Errorf("%w: input: %w", ErrInvalidHandoff, err)}
	}

	started := time.Now()
	out, err := fn(ctx, in)
	if err != nil {
		if _, ok := err.(*RejectionError); ok {
			return zero, err
		}
		return zero, &StepError{Step: name, Err: err}
	}

	if err := validate.Struct(out); err != nil {
		return zero, &StepError{Step: name, Err: fmt.Errorf("%w: output: %w", ErrInvalidHandoff, err)}
	}

	log.Info("pipeline step", zap.String(logger.FieldStep, name), zap.Duration("took", time.Since(started)))
	return out, nil
}

func (p *Pipeline) screen(ctx context.Context, req Request) (screened, error) {
	callCtx, cancel := utils.WithTimeout(ctx, p.timeouts.Model)
	defer cancel()

	verdict, err := p.classifier.Classify(callCtx, req.JobDescription)
	if err != nil {
		return screened{}, err
	}
	if !verdict.Safe {
		return screened{}, &RejectionError{Reason: verdict.Reason, Language: verdict.Language}
	}

	return screened{
		JobDescription: strings.TrimSpace(req.JobDescription),
		Verdict:        verdict,
		Safe:           true,
		Language:       verdict.Language,
	}, nil
}

func (p *Pipeline) analyze(ctx context.Context, in screened) (analyzed, error) {
	assessment, err := p.analyzer.Analyze(ctx, in.JobDescription)
	if err != nil {
		return analyzed{}, err
	}

	return analyzed{
		JobDescription: in.JobDescription,
		Language:       in.Language,
		Assessment:     assessment,
		Verdict:        assessment.Verdict,
		Score:          assessment.Score,
	}, nil
}

func (p *Pipeline) align(_ context.Context, in analyzed) (aligned, error) {
	out := aligned{
		JobDescription: in.JobDescription,
		Language:       in.Language,
		Title:          in.Assessment.Title,
		Verdict:        in.Verdict,
		Score:          in.Score,
		Focus:          strings.Join(in.Assessment.Reasons, "; "),
	}

	out.Aligned = in.Assessment.Fit && strings.TrimSpace(in.Verdict) != ""
	if out.Aligned && p.strictAlignment && RejectsInWords(in.Verdict) {
		p.logger.Info("verdict contains rejection language, not escalating")
		out.Aligned = false
	}

	if out.Aligned {
		out.Summary = approvalSummary(in)
	}
	return out, nil
}

func (p *Pipeline) requestApproval(ctx context.Context, in aligned) (approved, error) {
	return approved{
		Delivered:      p.approval.request(ctx, in.Summary),
		JobDescription: in.JobDescription,
		Focus:          in.Focus,
	}, nil
}

func (p *Pipeline) generate(ctx context.Context, in approved) (generated, error) {
	doc, err := p.approval.generate(ctx, in.JobDescription, in.Focus)
	if err != nil {
		return generated{}, err
	}
	return generated{ArtifactRef: doc.Ref, Name: doc.Name}, nil
}

var rejectionPhrases = []string{
	"not aligned",
	"misaligned",
	"does not align",
	"doesn't align",
	"not a fit",
	"not a good fit",
	"poor fit",
	"no fit",
	"reject",
	"decline",
}

// RejectsInWords reports whether a verdict text explicitly turns the role down.
func RejectsInWords(verdict string) bool {
	lower := strings.ToLower(verdict)
	for _, phrase := range rejectionPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func approvalSummary(in analyzed) string {
	a := in.Assessment
	title := a.Title
	if title == "" {
		title = "Untitled role"
	}

	job := in.JobDescription
	if utf8.RuneCountInString(job) > maxSummaryJobRunes {
		job = string([]rune(job)[:maxSummaryJobRunes]) + "..."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "New opportunity ready for approval: %s\n", title)
	fmt.Fprintf(&b, "Fit score: %.2f\n", a.Score)
	if a.Compensation != "" {
		fmt.Fprintf(&b, "Compensation: %s\n", a.Compensation)
	}
	fmt.Fprintf(&b, "Verdict: %s\n", in.Verdict)
	if len(a.Reasons) > 0 {
		fmt.Fprintf(&b, "Reasons: %s\n", strings.Join(a.Reasons, "; "))
	}
	fmt.Fprintf(&b, "\nJob description:\n%s", job)
	return b.String()
}
