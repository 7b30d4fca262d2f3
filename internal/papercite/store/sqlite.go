package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/papercite/papercite/internal/pkg/textutil"
	sqliteopts "github.com/papercite/papercite/pkg/options/sqlite"
)

// chunkRow is the gorm model for a persisted embedding record. The vector
// is stored JSON-encoded; SQLite has no native vector type and corpora at
// this store's scale are scanned in full anyway.
type chunkRow struct {
	ChunkID   string `gorm:"primaryKey;column:chunk_id"`
	DocID     string `gorm:"index;column:doc_id"`
	Page      int    `gorm:"column:page"`
	Content   string `gorm:"column:content"`
	Embedding []byte `gorm:"column:embedding"`
}

func (chunkRow) TableName() string {
	return "chunks"
}

// SQLiteStore is a durable single-node VectorStore backed by SQLite.
// Search is exact: every row is scored against the query vector. That is
// linear in corpus size, which is the intended trade-off for deployments
// too small to justify running Milvus.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (creating if needed) the database at opts.Path and
// migrates the chunks table.
func NewSQLiteStore(opts *sqliteopts.Options) (*SQLiteStore, error) {
	if opts == nil {
		opts = sqliteopts.NewOptions()
	}

	db, err := gorm.Open(sqlite.Open(opts.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if sqlDB, err := db.DB(); err == nil && opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}

	if err := db.AutoMigrate(&chunkRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate chunks table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Upsert writes records in one transaction, replacing rows whose chunk id
// already exists.
func (s *SQLiteStore) Upsert(ctx context.Context, records []*Record) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]chunkRow, 0, len(records))
	for _, r := range records {
		embedding, err := json.Marshal(r.Embedding)
		if err != nil {
			return fmt.Errorf("failed to encode embedding for %s: %w", r.ChunkID, err)
		}
		rows = append(rows, chunkRow{
			ChunkID:   r.ChunkID,
			DocID:     r.DocID,
			Page:      r.Page,
			Content:   r.Content,
			Embedding: embedding,
		})
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chunk_id"}},
			UpdateAll: true,
		}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}
	return nil
}

// Search scans every row and ranks by cosine similarity.
func (s *SQLiteStore) Search(ctx context.Context, embedding []float32, topK int) ([]*SearchResult, error) {
	if topK <= 0 {
		return []*SearchResult{}, nil
	}

	var rows []chunkRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	results := make([]*SearchResult, 0, len(rows))
	for _, row := range rows {
		var vec []float32
		if err := json.Unmarshal(row.Embedding, &vec); err != nil {
			return nil, fmt.Errorf("failed to decode embedding for %s: %w", row.ChunkID, err)
		}
		results = append(results, &SearchResult{
			ChunkID: row.ChunkID,
			DocID:   row.DocID,
			Page:    row.Page,
			Content: row.Content,
			Score:   textutil.CosineSimilarity(embedding, vec),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteDocument removes all rows for docID.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, docID string) error {
	err := s.db.WithContext(ctx).
		Where("doc_id = ?", docID).
		Delete(&chunkRow{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", docID, err)
	}
	return nil
}

// ListDocuments returns the distinct document ids, sorted.
func (s *SQLiteStore) ListDocuments(ctx context.Context) ([]string, error) {
	var docs []string
	err := s.db.WithContext(ctx).
		Model(&chunkRow{}).
		Distinct("doc_id").
		Order("doc_id").
		Pluck("doc_id", &docs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	return docs, nil
}

// Count returns the number of stored rows.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&chunkRow{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close(_ context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ VectorStore = (*SQLiteStore)(nil)
