package pipeline

import (
	"github.com/spigell/screener/internal/agent"
	"github.com/spigell/screener/internal/safety"
)

// Outcome is the terminal status of a screening run.
type Outcome string

const (
	OutcomeRejected        Outcome = "rejected"
	OutcomeNoEscalation    Outcome = "no_escalation"
	OutcomeApprovalPending Outcome = "approval_pending"
	OutcomeGenerated       Outcome = "generated"
	OutcomeFailed          Outcome = "failed"
)

// Request is the minimal pipeline trigger.
type Request struct {
	JobDescription string `json:"jobDescription" validate:"required,max=20000"`
}

type screened struct {
	JobDescription string         `validate:"required"`
	Verdict        safety.Verdict `validate:"-"`
	Safe           bool           `validate:"eq=true"`
	Language       string         `validate:"required,min=2,max=16"`
}

type analyzed struct {
	JobDescription string            `validate:"required"`
	Language       string            `validate:"required"`
	Assessment     *agent.Assessment `validate:"required"`
	Verdict        string
	Score          float64           `validate:"gte=0,lte=1"`
}

type aligned struct {
	Aligned        bool
	JobDescription string `validate:"required"`
	Language       string `validate:"required"`
	Title          string
	Verdict        string
	Score          float64
	Summary        string `validate:"required_if=Aligned true"`
	Focus          string
}

type approved struct {
	Delivered      bool
	JobDescription string `validate:"required"`
	Focus          string
}

type generated struct {
	ArtifactRef string `validate:"required"`
	Name        string `validate:"required,endswith=.pdf"`
}

// Result is returned by a screening run that was not rejected.
type Result struct {
	Status      Outcome `json:"status"`
	ArtifactRef string  `json:"artifactRef,omitempty"`
	Title       string  `json:"title,omitempty"`
	Verdict     string  `json:"verdict,omitempty"`
	Score       float64 `json:"score"`
	Language    string  `json:"language"`
	Delivered   bool    `json:"delivered"`
}

// Message is the conversation trigger.
type Message struct {
	ThreadID string `json:"threadId" validate:"required,max=320"`
	Message  string `json:"message" validate:"required,max=20000"`
}
