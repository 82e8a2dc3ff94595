package threads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

const DefaultDormancy = 30 * time.Minute

var (
	ErrNotFound  = errors.New("thread not found")
	ErrInvalidID = errors.New("thread id must not be empty")
)

type Role string

const (
	RoleCounterpart Role = "counterpart"
	RoleAgent       Role = "agent"
)

// Continuity describes how an inbound message relates to earlier activity.
type Continuity int

const (
	// FirstContact is the first message from the identity.
	FirstContact Continuity = iota
	// Continuing is a message within the current session.
	Continuing
	// Resumed is the first message after the thread was dormant.
	Resumed
)

func (c Continuity) String() string {
	switch c {
	case FirstContact:
		return "first_contact"
	case Continuing:
		return "continuing"
	case Resumed:
		return "resumed"
	default:
		return "unknown"
	}
}

// Thread is the persisted conversation with one counterpart.
type Thread struct {
	ID string `gorm:"primaryKey;size:320"`
	// WorkingMemory is replaced, never appended, on every agent turn.
	WorkingMemory string
	Language      string `gorm:"size:16"`
	Stage         string `gorm:"size:32"`
	Session       int
	CreatedAt     time.Time
	LastActivity  time.Time
}

type Turn struct {
	ID        uint   `gorm:"primaryKey"`
	ThreadID  string `gorm:"index;size:320"`
	Role      Role   `gorm:"size:16"`
	Text      string
	Session   int
	CreatedAt time.Time
}

// State is the part of a thread rewritten by each agent turn.
type State struct {
	WorkingMemory string
	Stage         string
	Language      string
}

// NormalizeID trims and lower-cases a user-asserted identity such as an email.
func NormalizeID(id string) (string, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return "", ErrInvalidID
	}
	return id, nil
}

// Store persists threads and turns through gorm.
type Store struct {
	db       *gorm.DB
	dormancy time.Duration
}

// NewStore migrates the schema. A non-positive dormancy uses DefaultDormancy.
func NewStore(ctx context.Context, db *gorm.DB, dormancy time.Duration) (*Store, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if dormancy <= 0 {
		dormancy = DefaultDormancy
	}
	if err := db.WithContext(ctx).AutoMigrate(&Thread{}, &Turn{}); err != nil {
		return nil, fmt.Errorf("migrate threads: %w", err)
	}
	return &Store{db: db, dormancy: dormancy}, nil
}

// Begin records activity on a thread, creating it on first contact and
// opening a new session when it was dormant.
func (s *Store) Begin(ctx context.Context, id string, now time.Time) (*Thread, Continuity, error) {
	id, err := NormalizeID(id)
	if err != nil {
		return nil, FirstContact, err
	}
	now = now.UTC()

	var (
		thread     Thread
		continuity Continuity
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.First(&thread, "id = ?", id).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			thread = Thread{ID: id, Session: 1, CreatedAt: now, LastActivity: now}
			continuity = FirstContact
			return tx.Create(&thread).Error
		case err != nil:
			return err
		}

		continuity = Continuing
		if now.Sub(thread.LastActivity) > s.dormancy {
			thread.Session++
			continuity = Resumed
		}
		thread.LastActivity = now

		return tx.Model(&Thread{}).Where("id = ?", id).Updates(map[string]any{
			"session":       thread.Session,
			"last_activity": thread.LastActivity,
		}).Error
	})
	if err != nil {
		return nil, FirstContact, fmt.Errorf("begin thread %s: %w", id, err)
	}

	return &thread, continuity, nil
}

// Load returns the thread and its turns in arrival order.
func (s *Store) Load(ctx context.Context, id string) (*Thread, []Turn, error) {
	id, err := NormalizeID(id)
	if err != nil {
		return nil, nil, err
	}

	var thread Thread
	if err := s.db.WithContext(ctx).First(&thread, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("load thread %s: %w", id, err)
	}

	turns, err := s.History(ctx, id, 0)
	if err != nil {
		return nil, nil, err
	}
	return &thread, turns, nil
}

// History returns the last limit turns in arrival order. Zero means all.
func (s *Store) History(ctx context.Context, id string, limit int) ([]Turn, error) {
	id, err := NormalizeID(id)
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Where("thread_id = ?", id).Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var turns []Turn
	if err := query.Find(&turns).Error; err != nil {
		return nil, fmt.Errorf("load turns of %s: %w", id, err)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// AppendTurns records turns in order inside one transaction.
func (s *Store) AppendTurns(ctx context.Context, turns ...Turn) error {
	now := time.Now().UTC()
	for i := range turns {
		id, err := NormalizeID(turns[i].ThreadID)
		if err != nil {
			return err
		}
		turns[i].ThreadID = id
		turns[i].ID = 0
		if turns[i].CreatedAt.IsZero() {
			turns[i].CreatedAt = now
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range turns {
			if err := tx.Create(&turns[i]).Error; err != nil {
				return fmt.Errorf("append turn to %s: %w", turns[i].ThreadID, err)
			}
		}
		return nil
	})
}

// SaveState overwrites the working memory, stage and language of a thread.
func (s *Store) SaveState(ctx context.Context, id string, state State) error {
	id, err := NormalizeID(id)
	if err != nil {
		return err
	}

	res := s.db.WithContext(ctx).Model(&Thread{}).Where("id = ?", id).Updates(map[string]any{
		"working_memory": state.WorkingMemory,
		"stage":          state.Stage,
		"language":       state.Language,
	})
	if res.Error != nil {
		return fmt.Errorf("save thread %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
