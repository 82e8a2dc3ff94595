// Package pgvector stores chunk embeddings in PostgreSQL with the pgvector extension.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/spigell/screener/internal/retrieval"
)

const DefaultTable = "resume_chunks"

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

type record struct {
	ID         string          `gorm:"column:id;primaryKey"`
	Source     string          `gorm:"column:source"`
	ChunkIndex int             `gorm:"column:chunk_index"`
	Content    string          `gorm:"column:content"`
	Embedding  pgvector.Vector `gorm:"column:embedding"`
}

type scored struct {
	record
	Distance float64 `gorm:"column:distance"`
}

// Store implements retrieval.Index over a single table.
type Store struct {
	db         *gorm.DB
	table      string
	dimensions int
}

// New ensures the extension and table exist and returns a Store.
func New(ctx context.Context, db *gorm.DB, table string, dimensions int) (*Store, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if dimensions <= 0 {
		return nil, errors.New("embedding dimensions must be positive")
	}

	s := &Store{db: db, table: table, dimensions: dimensions}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	statements := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, s.table, s.dimensions),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_source_idx ON %s (source)", s.table, s.table),
	}

	db := s.db.WithContext(ctx)
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migrate %s: %w", s.table, err)
		}
	}
	return nil
}

func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]retrieval.Match, error) {
	if len(vector) != s.dimensions {
		return nil, fmt.Errorf("%w: query has %d, index has %d", retrieval.ErrDimensionMismatch, len(vector), s.dimensions)
	}
	if topK <= 0 {
		topK = 1
	}

	query := fmt.Sprintf(
		"SELECT id, source, chunk_index, content, embedding, embedding <=> ? AS distance FROM %s ORDER BY distance LIMIT ?",
		s.table,
	)

	var rows []scored
	if err := s.db.WithContext(ctx).Raw(query, pgvector.NewVector(vector), topK).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("search %s: %w", s.table, err)
	}

	matches := make([]retrieval.Match, 0, len(rows))
	for _, row := range rows {
		matches = append(matches, retrieval.Match{
			Chunk: toChunk(row.record),
			Score: 1 - row.Distance,
		})
	}
	return matches, nil
}

func (s *Store) Upsert(ctx context.Context, chunks []retrieval.Chunk) error {
	records, err := s.records(chunks)
	if err != nil {
		return err
	}
	return s.insert(s.db.WithContext(ctx), records)
}

func (s *Store) DeleteBySource(ctx context.Context, source string) (int64, error) {
	return s.deleteSource(s.db.WithContext(ctx), source)
}

// ReplaceSource deletes and inserts inside one transaction.
func (s *Store) ReplaceSource(ctx context.Context, source string, chunks []retrieval.Chunk) (int64, error) {
	records, err := s.records(chunks)
	if err != nil {
		return 0, err
	}

	var deleted int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := s.deleteSource(tx, source)
		if err != nil {
			return err
		}
		deleted = n
		return s.insert(tx, records)
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *Store) records(chunks []retrieval.Chunk) ([]record, error) {
	records := make([]record, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Embedding) != s.dimensions {
			return nil, fmt.Errorf("%w: chunk %s has %d, index has %d", retrieval.ErrDimensionMismatch, chunk.ID, len(chunk.Embedding), s.dimensions)
		}
		records = append(records, toRecord(chunk))
	}
	return records, nil
}

func (s *Store) insert(db *gorm.DB, records []record) error {
	if len(records) == 0 {
		return nil
	}
	err := db.Table(s.table).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(records, 100).Error
	if err != nil {
		return fmt.Errorf("upsert into %s: %w", s.table, err)
	}
	return nil
}

func (s *Store) deleteSource(db *gorm.DB, source string) (int64, error) {
	res := db.Table(s.table).Where("source = ?", source).Delete(&record{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete %s from %s: %w", source, s.table, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Table(s.table).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", s.table, err)
	}
	return count, nil
}

func toRecord(chunk retrieval.Chunk) record {
	return record{
		ID:         chunk.ID,
		Source:     chunk.Source,
		ChunkIndex: chunk.ChunkIndex,
		Content:    chunk.Text,
		Embedding:  pgvector.NewVector(chunk.Embedding),
	}
}

func toChunk(r record) retrieval.Chunk {
	return retrieval.Chunk{
		ID:         r.ID,
		Source:     r.Source,
		ChunkIndex: r.ChunkIndex,
		Text:       r.Content,
		Embedding:  r.Embedding.Slice(),
	}
}
