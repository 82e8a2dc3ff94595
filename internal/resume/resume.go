// Package resume renders tailored résumé documents and stores them as artifacts.
package resume

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/screener/internal/utils"
)

const StatusGenerated = "generated"

// Document references one stored artifact.
type Document struct {
	Name   string
	Ref    string
	Status string
	Size   int
}

// Generator produces one new artifact per call. Artifacts are never overwritten.
type Generator struct {
	profile *Profile
	store   ArtifactStore
	timeout time.Duration
	counter atomic.Uint64
	now     func() time.Time
	logger  *zap.Logger
}

// NewGenerator creates a Generator. timeout bounds each storage write.
func NewGenerator(profile *Profile, store ArtifactStore, timeout time.Duration, logger *zap.Logger) (*Generator, error) {
	if profile == nil {
		return nil, errors.New("profile is required")
	}
	if store == nil {
		return nil, errors.New("artifact store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{profile: profile, store: store, timeout: timeout, now: time.Now, logger: logger}, nil
}

// Generate renders and stores a résumé. Render and storage failures are returned.
func (g *Generator) Generate(ctx context.Context, jobDescription, customFocus string) (*Document, error) {
	data, err := Render(Content{Profile: g.profile, TargetRole: jobDescription, CustomFocus: customFocus})
	if err != nil {
		return nil, err
	}

	name := g.nextName()

	storeCtx, cancel := utils.WithTimeout(ctx, g.timeout)
	defer cancel()

	ref, err := g.store.Save(storeCtx, name, data)
	if err != nil {
		return nil, fmt.Errorf("store %s: %w", name, err)
	}

	g.logger.Info("resume generated", zap.String("name", name), zap.String("ref", ref), zap.Int("bytes", len(data)))

	return &Document{Name: name, Ref: ref, Status: StatusGenerated, Size: len(data)}, nil
}

func (g *Generator) nextName() string {
	n := g.counter.Add(1)
	return fmt.Sprintf("resume-%s-%d.pdf", g.now().UTC().Format("20060102T150405.000Z"), n)
}
