package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/screener/internal/ai"
	"github.com/spigell/screener/internal/logger"
	"github.com/spigell/screener/internal/prompts"
	"github.com/spigell/screener/internal/threads"
	"github.com/spigell/screener/internal/utils"
)

const defaultLanguage = "en"

// Reply is the agent's answer to one inbound message.
type Reply struct {
	ThreadID    string
	Text        string
	Stage       Stage
	Language    string
	Session     int
	Continuity  threads.Continuity
	ArtifactRef string
	Hedged      bool
}

type turnReply struct {
	Reply         string `mapstructure:"reply"`
	WorkingMemory string `mapstructure:"working_memory"`
	Stage         string `mapstructure:"stage"`
	Language      string `mapstructure:"language"`
}

// Converse handles one inbound message on a thread. Callers must serialise
// calls per thread. languageHint is used only until the thread language is
// pinned by its first exchange.
func (a *Agent) Converse(ctx context.Context, threadID, message, languageHint string) (*Reply, error) {
	if a.store == nil {
		return nil, errors.New("thread store is not configured")
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, errors.New("message must not be empty")
	}

	thread, continuity, err := a.store.Begin(ctx, threadID, a.now())
	if err != nil {
		return nil, err
	}

	stage, ok := ParseStage(thread.Stage)
	if !ok {
		return nil, fmt.Errorf("thread %s has unknown stage %q", thread.ID, thread.Stage)
	}

	log := logger.WithFields(a.logger, logger.ThreadFields(thread.ID, string(stage))...)

	history, err := a.store.History(ctx, thread.ID, a.config.HistoryLimit)
	if err != nil {
		return nil, err
	}

	system, err := a.conversationPrompt(ctx, thread, continuity, stage, message)
	if err != nil {
		return nil, err
	}

	callCtx, cancel := utils.WithTimeout(ctx, a.config.ModelTimeout)
	raw, err := a.generator.Chat(callCtx, system, toMessages(history), message)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("converse: %w", err)
	}

	parsed, err := parseTurnReply(raw)
	if err != nil {
		return nil, fmt.Errorf("converse: %w", err)
	}

	language := thread.Language
	if language == "" {
		language = firstNonEmpty(parsed.Language, languageHint, defaultLanguage)
	} else if parsed.Language != "" && !strings.EqualFold(parsed.Language, language) {
		log.Debug("model switched language, keeping pinned one", zap.String("reply_language", parsed.Language))
	}

	proposed, _ := ParseStage(parsed.Stage)
	if parsed.Stage == "" {
		proposed = stage
	}
	next := Advance(stage, proposed)
	if proposed != next {
		log.Info("ignoring illegal stage transition", zap.String("proposed", string(proposed)))
	}

	memory := strings.TrimSpace(parsed.WorkingMemory)
	if memory == "" {
		memory = thread.WorkingMemory
	}

	reply := &Reply{
		ThreadID:   thread.ID,
		Text:       parsed.Reply,
		Stage:      next,
		Language:   language,
		Session:    thread.Session,
		Continuity: continuity,
		Hedged:     Hedges(parsed.Reply),
	}

	if err := a.store.SaveState(ctx, thread.ID, threads.State{
		WorkingMemory: memory,
		Stage:         string(next),
		Language:      language,
	}); err != nil {
		return nil, err
	}

	if next == PendingApproval {
		if err := a.escalate(ctx, log, thread.ID, memory, language, reply); err != nil {
			return nil, err
		}
	}

	// Both sides of the exchange are recorded only once it has succeeded.
	err = a.store.AppendTurns(ctx,
		threads.Turn{ThreadID: thread.ID, Role: threads.RoleCounterpart, Text: message, Session: thread.Session},
		threads.Turn{ThreadID: thread.ID, Role: threads.RoleAgent, Text: reply.Text, Session: thread.Session},
	)
	if err != nil {
		return nil, err
	}

	if reply.Hedged {
		log.Warn("agent reply defers instead of answering", zap.String("reply", utils.TruncateForLog(reply.Text, a.config.MaxLogLength)))
	}
	log.Info("agent turn completed",
		zap.String("next_stage", string(reply.Stage)),
		zap.String("language", language),
		zap.Int("session", thread.Session),
	)

	return reply, nil
}

// escalate requests approval for a thread waiting in PENDING_APPROVAL and
// advances it only when the request was delivered.
func (a *Agent) escalate(ctx context.Context, log *zap.Logger, threadID, memory, language string, reply *Reply) error {
	if a.escalator == nil {
		log.Warn("no escalator configured, thread stays pending")
		return nil
	}

	result, err := a.escalator.Escalate(ctx, Escalation{
		ThreadID:       threadID,
		Summary:        fmt.Sprintf("Opportunity from %s ready for approval.\n\n%s", threadID, memory),
		JobDescription: memory,
	})
	if err != nil {
		return fmt.Errorf("escalate thread %s: %w", threadID, err)
	}
	if !result.Delivered {
		log.Info("approval request not delivered, thread stays pending")
		return nil
	}

	reply.Stage = ResumeGeneration
	if result.ArtifactRef != "" {
		reply.ArtifactRef = result.ArtifactRef
		reply.Stage = Done
	}

	return a.store.SaveState(ctx, threadID, threads.State{
		WorkingMemory: memory,
		Stage:         string(reply.Stage),
		Language:      language,
	})
}

func (a *Agent) conversationPrompt(ctx context.Context, thread *threads.Thread, continuity threads.Continuity, stage Stage, message string) (string, error) {
	next := ModelStages(stage)
	names := make([]string, 0, len(next)+1)
	names = append(names, string(stage))
	for _, s := range next {
		names = append(names, string(s))
	}

	memory := strings.TrimSpace(thread.WorkingMemory)
	if memory == "" {
		memory = "(empty)"
	}

	return a.prompts.Render(prompts.Conversation, map[string]string{
		"LANGUAGE":       thread.Language,
		"SESSION_HINT":   sessionHint(continuity, thread.Session),
		"STAGE":          string(stage),
		"NEXT_STAGES":    strings.Join(names, ", "),
		"FOCUS_AREAS":    prompts.SanitizeBlock(a.config.FocusAreas, maxFocusRunes),
		"PREFERENCES":    a.retriever.Context(ctx, message, a.config.TopK),
		"WORKING_MEMORY": memory,
	})
}

func sessionHint(continuity threads.Continuity, session int) string {
	switch continuity {
	case threads.FirstContact:
		return "This is the first message from this recruiter."
	case threads.Resumed:
		return fmt.Sprintf("The recruiter is returning after a break (session %d). Welcome them back, "+
			"build on what the working memory already records and do not ask again for details "+
			"already on file, including their identity or email.", session)
	default:
		return "The conversation is ongoing."
	}
}

func parseTurnReply(raw string) (turnReply, error) {
	var parsed turnReply
	if !strings.Contains(raw, "{") {
		parsed.Reply = strings.TrimSpace(raw)
	} else if err := ai.DecodeJSONReply(raw, &parsed); err != nil {
		return parsed, err
	}

	parsed.Reply = strings.TrimSpace(parsed.Reply)
	if parsed.Reply == "" {
		return parsed, ai.ErrEmptyReply
	}
	parsed.Language = strings.ToLower(strings.TrimSpace(parsed.Language))
	return parsed, nil
}

func toMessages(turns []threads.Turn) []ai.Message {
	messages := make([]ai.Message, 0, len(turns))
	for _, turn := range turns {
		role := ai.RoleUser
		if turn.Role == threads.RoleAgent {
			role = ai.RoleModel
		}
		messages = append(messages, ai.Message{Role: role, Text: turn.Text})
	}
	return messages
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			return v
		}
	}
	return ""
}
