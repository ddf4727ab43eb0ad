package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cosolvent/cosolvent/domain/search"
	"github.com/cosolvent/cosolvent/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQL specific to pgvector (extension, table, index, catalog).
const (
	pgvCreateExtension = `CREATE EXTENSION IF NOT EXISTS vector`

	pgvCreateTableTemplate = `
CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    embedding VECTOR(%d) NOT NULL,
    region TEXT NOT NULL DEFAULT '',
    certifications TEXT[] NOT NULL DEFAULT '{}',
    primary_crops TEXT[] NOT NULL DEFAULT '{}',
    producer_id TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

	pgvCreateIndexTemplate = `
CREATE INDEX IF NOT EXISTS %s_embedding_hnsw_idx
ON %s
USING hnsw (embedding vector_cosine_ops)`

	pgvDropIVFFlatIndexTemplate = `DROP INDEX IF EXISTS %s_embedding_idx`

	pgvCheckDimensionTemplate = `
SELECT a.atttypmod AS dimension
FROM pg_attribute a
JOIN pg_class c ON a.attrelid = c.oid
WHERE c.relname = '%s'
AND a.attname = 'embedding'`
)

// ErrPgvectorInitializationFailed indicates pgvector initialization failed.
var ErrPgvectorInitializationFailed = errors.New("failed to initialize pgvector index")

// pgIndexRow is one row of a pgvector index table.
type pgIndexRow struct {
	ID             string          `gorm:"column:id;primaryKey"`
	Embedding      pgvector.Vector `gorm:"column:embedding"`
	Region         string          `gorm:"column:region"`
	Certifications pq.StringArray  `gorm:"column:certifications;type:text[]"`
	PrimaryCrops   pq.StringArray  `gorm:"column:primary_crops;type:text[]"`
	ProducerID     string          `gorm:"column:producer_id"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at"`
}

// pgMatchRow is a query result row with its similarity score.
type pgMatchRow struct {
	ID             string         `gorm:"column:id"`
	Region         string         `gorm:"column:region"`
	Certifications pq.StringArray `gorm:"column:certifications"`
	PrimaryCrops   pq.StringArray `gorm:"column:primary_crops"`
	ProducerID     string         `gorm:"column:producer_id"`
	Score          float64        `gorm:"column:score"`
}

// PgvectorIndex implements search.Index using the PostgreSQL pgvector
// extension. Scores are cosine similarity, 1 - cosine distance.
//
// Unfiltered queries use the HNSW index with ef_search raised to topK.
// Filtered queries bypass the approximate index, which would drop matches
// that sit outside the candidate list, and scan exactly.
type PgvectorIndex struct {
	db        database.Database
	name      string
	dimension int
	logger    *slog.Logger
}

// NewPgvectorIndex creates a PgvectorIndex, eagerly initializing the
// extension, table and index, and verifying the stored dimension.
func NewPgvectorIndex(ctx context.Context, db database.Database, name string, dimension int, logger *slog.Logger) (*PgvectorIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}
	idx := &PgvectorIndex{db: db, name: name, dimension: dimension, logger: logger}

	rawDB := db.Session(ctx)

	if err := rawDB.Exec(pgvCreateExtension).Error; err != nil {
		return nil, errors.Join(ErrPgvectorInitializationFailed, fmt.Errorf("create extension: %w", err))
	}

	if err := rawDB.Exec(fmt.Sprintf(pgvCreateTableTemplate, name, dimension)).Error; err != nil {
		return nil, errors.Join(ErrPgvectorInitializationFailed, fmt.Errorf("create table: %w", err))
	}

	if err := rawDB.Exec(fmt.Sprintf(pgvDropIVFFlatIndexTemplate, name)).Error; err != nil {
		logger.Warn("failed to drop ivfflat index", "index", name, "error", err)
	}
	if err := rawDB.Exec(fmt.Sprintf(pgvCreateIndexTemplate, name, name)).Error; err != nil {
		logger.Warn("failed to create vector index (may already exist)", "index", name, "error", err)
	}

	var dbDimension int
	result := rawDB.Raw(fmt.Sprintf(pgvCheckDimensionTemplate, name)).Scan(&dbDimension)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, errors.Join(ErrPgvectorInitializationFailed, fmt.Errorf("check dimension: %w", result.Error))
	}
	if result.RowsAffected > 0 && dbDimension != dimension {
		return nil, fmt.Errorf("%w: table %s has %d, configured %d", search.ErrDimensionMismatch, name, dbDimension, dimension)
	}

	return idx, nil
}

// Name returns the table name.
func (s *PgvectorIndex) Name() string { return s.name }

// Dimension returns the vector length of the table.
func (s *PgvectorIndex) Dimension() int { return s.dimension }

// Upsert inserts the entry or replaces every column of the existing row.
func (s *PgvectorIndex) Upsert(ctx context.Context, entry search.Entry) error {
	if err := search.CheckDimension(entry.Vector(), s.dimension); err != nil {
		return err
	}

	meta := entry.Metadata()
	now := time.Now().UTC()
	row := pgIndexRow{
		ID:             entry.ID(),
		Embedding:      pgvector.NewVector(toFloat32(entry.Vector())),
		Region:         meta.Region,
		Certifications: pq.StringArray(nonNil(meta.Certifications)),
		PrimaryCrops:   pq.StringArray(nonNil(meta.PrimaryCrops)),
		ProducerID:     meta.ProducerID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.db.Session(ctx).Table(s.name).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"embedding", "region", "certifications", "primary_crops", "producer_id", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert %s into %s: %w", entry.ID(), s.name, err)
	}
	return nil
}

// Query returns the topK nearest entries by cosine distance that satisfy
// the filters.
func (s *PgvectorIndex) Query(ctx context.Context, vector []float64, topK int, filters search.Filters) ([]search.Match, error) {
	if err := search.CheckDimension(vector, s.dimension); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []search.Match{}, nil
	}

	q := pgvector.NewVector(toFloat32(vector))
	var rows []pgMatchRow
	err := s.db.Session(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range pgQuerySettings(topK, filters) {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("apply %q: %w", stmt, err)
			}
		}

		db := tx.Table(s.name).
			Select("id, region, certifications, primary_crops, producer_id, 1 - (embedding <=> ?) AS score", q)
		if regions := filters.Regions(); len(regions) > 0 {
			db = db.Where("region = ANY(?)", pq.Array(regions))
		}
		if certs := filters.Certifications(); len(certs) > 0 {
			db = db.Where("certifications && ?", pq.Array(certs))
		}
		if crops := filters.PrimaryCrops(); len(crops) > 0 {
			db = db.Where("primary_crops && ?", pq.Array(crops))
		}

		return db.Order(clause.OrderBy{
			Expression: clause.Expr{SQL: "embedding <=> ?", Vars: []any{q}, WithoutParentheses: true},
		}).Limit(topK).Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.name, err)
	}

	matches := make([]search.Match, 0, len(rows))
	for _, r := range rows {
		matches = append(matches, search.NewMatch(r.ID, r.Score, search.Metadata{
			Region:         r.Region,
			Certifications: []string(r.Certifications),
			PrimaryCrops:   []string(r.PrimaryCrops),
			ProducerID:     r.ProducerID,
		}))
	}
	search.SortMatches(matches)
	return matches, nil
}

// DeleteAll removes every row and returns how many were removed.
func (s *PgvectorIndex) DeleteAll(ctx context.Context) (int, error) {
	result := s.db.Session(ctx).Exec(fmt.Sprintf("DELETE FROM %s", s.name))
	if result.Error != nil {
		return 0, fmt.Errorf("clear %s: %w", s.name, result.Error)
	}
	return int(result.RowsAffected), nil
}

// DeleteProducer removes the producer's rows other than keepID.
func (s *PgvectorIndex) DeleteProducer(ctx context.Context, producerID, keepID string) (int, error) {
	result := s.db.Session(ctx).Exec(fmt.Sprintf("DELETE FROM %s WHERE producer_id = ? AND id <> ?", s.name), producerID, keepID)
	if result.Error != nil {
		return 0, fmt.Errorf("delete producer %s from %s: %w", producerID, s.name, result.Error)
	}
	return int(result.RowsAffected), nil
}

// Count returns the number of rows.
func (s *PgvectorIndex) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.Session(ctx).Table(s.name).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", s.name, err)
	}
	return n, nil
}

// hnswDefaultEfSearch is pgvector's default hnsw.ef_search, the size of the
// candidate list and so the most rows an HNSW scan can return.
const hnswDefaultEfSearch = 40

// pgQuerySettings returns the SET LOCAL statements for a query. A filtered
// query disables index scans so every row passing the filters is ranked.
func pgQuerySettings(topK int, filters search.Filters) []string {
	if !filters.IsEmpty() {
		return []string{"SET LOCAL enable_indexscan = off"}
	}
	return []string{fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", max(topK, hnswDefaultEfSearch))}
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
