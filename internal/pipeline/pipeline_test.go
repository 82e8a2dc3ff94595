package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/spigell/screener/internal/agent"
	"github.com/spigell/screener/internal/notify"
	"github.com/spigell/screener/internal/resume"
	"github.com/spigell/screener/internal/safety"
)

type spyClassifier struct {
	verdict safety.Verdict
	err     error
	calls   int
}

func (s *spyClassifier) Classify(context.Context, string) (safety.Verdict, error) {
	s.calls++
	return s.verdict, s.err
}

type spyAnalyzer struct {
	assessment *agent.Assessment
	err        error
	calls      int
}

func (s *spyAnalyzer) Analyze(context.Context, string) (*agent.Assessment, error) {
	s.calls++
	return s.assessment, s.err
}

type spyNotifier struct {
	delivered bool
	summaries []string
}

func (s *spyNotifier) Notify(_ context.Context, summary, _ string) notify.Result {
	s.summaries = append(s.summaries, summary)
	return notify.Result{Delivered: s.delivered}
}

type spyDocuments struct {
	jobs []string
	err  error
}

func (s *spyDocuments) Generate(_ context.Context, jobDescription, _ string) (*resume.Document, error) {
	s.jobs = append(s.jobs, jobDescription)
	if s.err != nil {
		return nil, s.err
	}
	return &resume.Document{Name: "resume-1.pdf", Ref: "/resumes/resume-1.pdf", Status: resume.StatusGenerated}, nil
}

type fixture struct {
	classifier *spyClassifier
	analyzer   *spyAnalyzer
	notifier   *spyNotifier
	documents  *spyDocuments
	pipeline   *Pipeline
}

func newFixture(t testing.TB, strict bool) *fixture {
	t.Helper()
	f := &fixture{
		classifier: &spyClassifier{verdict: safety.Verdict{Safe: true, Language: "en"}},
		analyzer: &spyAnalyzer{assessment: &agent.Assessment{
			Title:   "Senior AI Engineer",
			Fit:     true,
			Score:   0.9,
			Verdict: "Aligned with AI and blockchain focus; compensation above market.",
			Reasons: []string{"AI focus", "remote"},
		}},
		notifier:  &spyNotifier{delivered: true},
		documents: &spyDocuments{},
	}

	approval, err := NewApproval(f.notifier, f.documents, "", Timeouts{}, zap.NewNop())
	if err != nil {
		t.Fatalf("approval: %v", err)
	}
	f.pipeline, err = New(f.classifier, f.analyzer, nil, approval, Config{StrictAlignment: strict}, zap.NewNop())
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	return f
}

func TestScreenGeneratesDocumentForAlignedRole(t *testing.T) {
	f := newFixture(t, true)
	job := "Senior AI Engineer, $220k, remote, blockchain focus"

	result, err := f.pipeline.Screen(context.Background(), Request{JobDescription: job})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != OutcomeGenerated || !strings.HasSuffix(result.ArtifactRef, ".pdf") {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(f.notifier.summaries) != 1 || !strings.Contains(f.notifier.summaries[0], "Senior AI Engineer") {
		t.Fatalf("unexpected notifications: %v", f.notifier.summaries)
	}
	if len(f.documents.jobs) != 1 || f.documents.jobs[0] != job {
		t.Fatalf("generator not called with the job description: %v", f.documents.jobs)
	}
	if f.pipeline.Stats().Outcomes[OutcomeGenerated] != 1 {
		t.Fatalf("unexpected stats: %+v", f.pipeline.Stats())
	}
}

func TestScreenRejectsUnsafeMessage(t *testing.T) {
	f := newFixture(t, false)
	f.classifier.verdict = safety.Verdict{Safe: false, Reason: "Abusive language", Language: "en"}

	result, err := f.pipeline.Screen(context.Background(), Request{JobDescription: "I hate you"})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}

	var rejection *RejectionError
	if !errors.As(err, &rejection) || rejection.Reason != "Abusive language" {
		t.Fatalf("expected rejection reason, got %v", err)
	}
	if result != nil {
		t.Fatalf("rejection must not carry a result: %+v", result)
	}
	if f.analyzer.calls != 0 || len(f.notifier.summaries) != 0 || len(f.documents.jobs) != 0 {
		t.Fatal("no step may run after a rejection")
	}
}

func TestScreenSafetyFailureIsFatal(t *testing.T) {
	f := newFixture(t, false)
	f.classifier.err = errors.New("model unavailable")

	_, err := f.pipeline.Screen(context.Background(), Request{JobDescription: "job"})

	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepSafety {
		t.Fatalf("expected safety step error, got %v", err)
	}
	if errors.Is(err, ErrRejected) {
		t.Fatal("a failed classification is not a rejection")
	}
	if f.analyzer.calls != 0 {
		t.Fatal("analysis must not run")
	}
}

func TestScreenNoEscalation(t *testing.T) {
	cases := []struct {
		name       string
		assessment agent.Assessment
		strict     bool
	}{
		{name: "not fit", assessment: agent.Assessment{Fit: false, Verdict: "Junior role", Score: 0.2}},
		{name: "empty verdict", assessment: agent.Assessment{Fit: true, Score: 0.8}},
		{name: "strict wording", assessment: agent.Assessment{Fit: true, Score: 0.7, Verdict: "Not aligned: on-site only."}, strict: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, tc.strict)
			a := tc.assessment
			f.analyzer.assessment = &a

			result, err := f.pipeline.Screen(context.Background(), Request{JobDescription: "PHP developer, on-site"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Status != OutcomeNoEscalation {
				t.Fatalf("unexpected status: %s", result.Status)
			}
			if len(f.notifier.summaries) != 0 || len(f.documents.jobs) != 0 {
				t.Fatal("no notification or document expected")
			}
		})
	}
}

func TestScreenLenientAlignmentIgnoresWording(t *testing.T) {
	f := newFixture(t, false)
	f.analyzer.assessment.Verdict = "Not aligned on location but otherwise strong"

	result, err := f.pipeline.Screen(context.Background(), Request{JobDescription: "job"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != OutcomeGenerated {
		t.Fatalf("expected generated, got %s", result.Status)
	}
}

func TestScreenApprovalPendingWhenNotDelivered(t *testing.T) {
	f := newFixture(t, false)
	f.notifier.delivered = false

	result, err := f.pipeline.Screen(context.Background(), Request{JobDescription: "Senior AI Engineer"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != OutcomeApprovalPending || result.ArtifactRef != "" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(f.documents.jobs) != 0 {
		t.Fatal("document must not be generated without delivered approval")
	}
}

func TestScreenDocumentFailureIsFatal(t *testing.T) {
	f := newFixture(t, false)
	f.documents.err = errors.New("disk full")

	_, err := f.pipeline.Screen(context.Background(), Request{JobDescription: "Senior AI Engineer"})

	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepDocument {
		t.Fatalf("expected document step error, got %v", err)
	}
	if f.pipeline.Stats().Outcomes[OutcomeFailed] != 1 {
		t.Fatalf("expected failure to be counted")
	}
}

func TestScreenInvalidHandoffNamesProducingStep(t *testing.T) {
	f := newFixture(t, false)
	f.analyzer.assessment.Score = 85

	_, err := f.pipeline.Screen(context.Background(), Request{JobDescription: "job"})
	if !errors.Is(err, ErrInvalidHandoff) {
		t.Fatalf("expected invalid handoff, got %v", err)
	}

	var stepErr *StepError
	if !errors.As(err, &stepErr) || stepErr.Step != StepAnalysis {
		t.Fatalf("expected analysis step to be blamed, got %v", err)
	}
	if len(f.notifier.summaries) != 0 {
		t.Fatal("later steps must not run")
	}
}

func TestScreenRejectsEmptyRequest(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.pipeline.Screen(context.Background(), Request{JobDescription: ""})
	if !errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrInvalidHandoff) {
		t.Fatalf("expected invalid request, got %v", err)
	}
	if f.classifier.calls != 0 {
		t.Fatal("classifier must not be called with malformed input")
	}
}

func TestDocumentImpliesDeliveredApproval(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		f := newFixture(t, rapid.Bool().Draw(rt, "strict"))
		f.classifier.verdict.Safe = rapid.Bool().Draw(rt, "safe")
		f.analyzer.assessment.Fit = rapid.Bool().Draw(rt, "fit")
		f.notifier.delivered = rapid.Bool().Draw(rt, "delivered")

		result, err := f.pipeline.Screen(context.Background(), Request{JobDescription: "Senior AI Engineer"})

		generated := len(f.documents.jobs) > 0
		if generated && !f.notifier.delivered {
			rt.Fatalf("document generated without delivered approval")
		}
		if !f.classifier.verdict.Safe && (len(f.notifier.summaries) > 0 || generated) {
			rt.Fatalf("downstream step ran after rejection")
		}
		if err == nil && (result.Status == OutcomeGenerated) != generated {
			rt.Fatalf("status %s does not match generation %v", result.Status, generated)
		}
	})
}

func TestRejectsInWords(t *testing.T) {
	cases := map[string]bool{
		"Aligned with the candidate's focus":      false,
		"This role is not a good fit":             true,
		"Recommend to decline: on-site only":      true,
		"Strong match, compensation above market": false,
	}
	for verdict, want := range cases {
		if got := RejectsInWords(verdict); got != want {
			t.Fatalf("RejectsInWords(%q) = %v, want %v", verdict, got, want)
		}
	}
}

type orderedConversation struct {
	mu       sync.Mutex
	messages []string
	active   int
	maxSeen  int
}

func (c *orderedConversation) Converse(_ context.Context, threadID, message, languageHint string) (*agent.Reply, error) {
	c.mu.Lock()
	c.active++
	if c.active > c.maxSeen {
		c.maxSeen = c.active
	}
	c.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	c.mu.Lock()
	c.messages = append(c.messages, message)
	c.active--
	c.mu.Unlock()
	return &agent.Reply{ThreadID: threadID, Text: "ok", Language: languageHint, Stage: agent.InitialContact}, nil
}

func TestConverseSerialisesThreadAndGatesSafety(t *testing.T) {
	f := newFixture(t, false)
	conv := &orderedConversation{}
	f.pipeline.conversation = conv

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.pipeline.Converse(context.Background(), Message{ThreadID: "Ana@Example.com", Message: "hello"}); err != nil {
				t.Errorf("converse: %v", err)
			}
		}()
	}
	wg.Wait()

	if conv.maxSeen != 1 {
		t.Fatalf("turns on one thread overlapped: %d", conv.maxSeen)
	}
	if f.pipeline.Stats().Turns != 5 {
		t.Fatalf("unexpected turn count: %d", f.pipeline.Stats().Turns)
	}

	f.classifier.verdict = safety.Verdict{Safe: false, Reason: "Mensaje ofensivo", Language: "es"}
	_, err := f.pipeline.Converse(context.Background(), Message{ThreadID: "ana@example.com", Message: "te odio"})

	var rejection *RejectionError
	if !errors.As(err, &rejection) || rejection.Language != "es" {
		t.Fatalf("expected localised rejection, got %v", err)
	}
	if len(conv.messages) != 5 {
		t.Fatal("agent must not see rejected messages")
	}

	if _, err := f.pipeline.Converse(context.Background(), Message{ThreadID: "  ", Message: "hi"}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected invalid request for blank thread id, got %v", err)
	}
}

func TestApprovalEscalate(t *testing.T) {
	f := newFixture(t, false)

	res, err := f.pipeline.approval.Escalate(context.Background(), agent.Escalation{
		ThreadID:       "ana@example.com",
		Summary:        "Senior AI Engineer at Acme",
		JobDescription: "Senior AI Engineer at Acme",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Delivered || res.ArtifactRef != "/resumes/resume-1.pdf" {
		t.Fatalf("unexpected result: %+v", res)
	}

	f.notifier.delivered = false
	res, err = f.pipeline.approval.Escalate(context.Background(), agent.Escalation{Summary: "s", JobDescription: "j"})
	if err != nil || res.Delivered || res.ArtifactRef != "" {
		t.Fatalf("undelivered approval must not generate: %+v %v", res, err)
	}
	if len(f.documents.jobs) != 1 {
		t.Fatalf("expected a single document, got %d", len(f.documents.jobs))
	}

	if _, err := f.pipeline.approval.Escalate(context.Background(), agent.Escalation{}); !errors.Is(err, ErrInvalidHandoff) {
		t.Fatalf("expected invalid handoff, got %v", err)
	}
}

func TestDescribeReportsUnconfiguredWebhook(t *testing.T) {
	approval, _ := NewApproval(notify.New("", "", 0, nil), &spyDocuments{}, "", Timeouts{}, nil)
	p, err := New(&spyClassifier{}, &spyAnalyzer{}, nil, approval, Config{}, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	statuses := p.Describe()
	if statuses[3].Name != StepApproval || statuses[3].Enabled {
		t.Fatalf("expected approval step to be reported disabled: %+v", statuses[3])
	}
}
