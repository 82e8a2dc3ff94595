package ai

import "context"

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one prior turn handed to a model as conversation history.
type Message struct {
	Role Role
	Text string
}

// Generator is a text-in/text-out language model.
type Generator interface {
	// GenerateContent sends a single message under the system instruction.
	GenerateContent(ctx context.Context, system, message string) (string, error)
	// Chat sends message after replaying history under the system instruction.
	Chat(ctx context.Context, system string, history []Message, message string) (string, error)
	Model() string
}

// Embedder turns texts into dense vectors of a fixed dimensionality.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

// Scorer produces secondary moderation scores for a text.
// Scores are observability signals only.
type Scorer interface {
	Score(ctx context.Context, text string) (map[string]float64, error)
}
