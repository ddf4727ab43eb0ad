package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cosolvent/cosolvent/domain/search"
	"github.com/cosolvent/cosolvent/internal/database"
	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

const (
	sqliteCreateIndexTableTemplate = `
CREATE TABLE IF NOT EXISTS %s (
    id TEXT PRIMARY KEY,
    embedding JSON NOT NULL,
    region TEXT NOT NULL DEFAULT '',
    certifications JSON NOT NULL DEFAULT '[]',
    primary_crops JSON NOT NULL DEFAULT '[]',
    producer_id TEXT NOT NULL DEFAULT '',
    created_at DATETIME,
    updated_at DATETIME
)`

	sqliteCreateRegionIndexTemplate = `CREATE INDEX IF NOT EXISTS %s_region_idx ON %s (region)`
)

// sqliteIndexRow is one row of a SQLite vector index table.
type sqliteIndexRow struct {
	ID             string                       `gorm:"column:id;primaryKey"`
	Embedding      datatypes.JSONSlice[float64] `gorm:"column:embedding"`
	Region         string                       `gorm:"column:region"`
	Certifications datatypes.JSONSlice[string]  `gorm:"column:certifications"`
	PrimaryCrops   datatypes.JSONSlice[string]  `gorm:"column:primary_crops"`
	ProducerID     string                       `gorm:"column:producer_id"`
	CreatedAt      time.Time                    `gorm:"column:created_at"`
	UpdatedAt      time.Time                    `gorm:"column:updated_at"`
}

// SQLiteIndex implements search.Index for SQLite. Vectors are stored as
// JSON; region filtering happens in SQL, overlap filters and cosine
// ranking in memory.
type SQLiteIndex struct {
	db        database.Database
	name      string
	dimension int
	logger    *slog.Logger
}

// NewSQLiteIndex creates a SQLiteIndex, creating its table eagerly.
func NewSQLiteIndex(ctx context.Context, db database.Database, name string, dimension int, logger *slog.Logger) (*SQLiteIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}
	session := db.Session(ctx)
	if err := session.Exec(fmt.Sprintf(sqliteCreateIndexTableTemplate, name)).Error; err != nil {
		return nil, fmt.Errorf("create table %s: %w", name, err)
	}
	if err := session.Exec(fmt.Sprintf(sqliteCreateRegionIndexTemplate, name, name)).Error; err != nil {
		return nil, fmt.Errorf("create region index on %s: %w", name, err)
	}
	return &SQLiteIndex{db: db, name: name, dimension: dimension, logger: logger}, nil
}

// Name returns the table name.
func (s *SQLiteIndex) Name() string { return s.name }

// Dimension returns the required vector length.
func (s *SQLiteIndex) Dimension() int { return s.dimension }

// Upsert inserts the entry or replaces every column of the existing row.
// The row keeps its original position so ranking ties stay stable.
func (s *SQLiteIndex) Upsert(ctx context.Context, entry search.Entry) error {
	if err := search.CheckDimension(entry.Vector(), s.dimension); err != nil {
		return err
	}

	meta := entry.Metadata()
	now := time.Now().UTC()
	row := sqliteIndexRow{
		ID:             entry.ID(),
		Embedding:      datatypes.NewJSONSlice(entry.Vector()),
		Region:         meta.Region,
		Certifications: datatypes.NewJSONSlice(nonNil(meta.Certifications)),
		PrimaryCrops:   datatypes.NewJSONSlice(nonNil(meta.PrimaryCrops)),
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

// Query ranks every stored entry passing the filters by cosine similarity.
func (s *SQLiteIndex) Query(ctx context.Context, vector []float64, topK int, filters search.Filters) ([]search.Match, error) {
	if err := search.CheckDimension(vector, s.dimension); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []search.Match{}, nil
	}

	db := s.db.Session(ctx).Table(s.name).Order("rowid")
	if regions := filters.Regions(); len(regions) > 0 {
		db = db.Where("region IN ?", regions)
	}

	var rows []sqliteIndexRow
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query %s: %w", s.name, err)
	}

	entries := make([]search.Entry, 0, len(rows))
	for _, r := range rows {
		if len(r.Embedding) != s.dimension {
			s.logger.Warn("skipping entry with wrong dimension", "index", s.name, "id", r.ID, "dimension", len(r.Embedding))
			continue
		}
		entries = append(entries, search.NewEntry(r.ID, []float64(r.Embedding), search.Metadata{
			Region:         r.Region,
			Certifications: []string(r.Certifications),
			PrimaryCrops:   []string(r.PrimaryCrops),
			ProducerID:     r.ProducerID,
		}))
	}

	return search.TopK(vector, entries, topK, filters), nil
}

// DeleteAll removes every row and returns how many were removed.
func (s *SQLiteIndex) DeleteAll(ctx context.Context) (int, error) {
	result := s.db.Session(ctx).Exec(fmt.Sprintf("DELETE FROM %s", s.name))
	if result.Error != nil {
		return 0, fmt.Errorf("clear %s: %w", s.name, result.Error)
	}
	return int(result.RowsAffected), nil
}

// DeleteProducer removes the producer's rows other than keepID.
func (s *SQLiteIndex) DeleteProducer(ctx context.Context, producerID, keepID string) (int, error) {
	result := s.db.Session(ctx).Exec(fmt.Sprintf("DELETE FROM %s WHERE producer_id = ? AND id <> ?", s.name), producerID, keepID)
	if result.Error != nil {
		return 0, fmt.Errorf("delete producer %s from %s: %w", producerID, s.name, result.Error)
	}
	return int(result.RowsAffected), nil
}

// Count returns the number of rows.
func (s *SQLiteIndex) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.Session(ctx).Table(s.name).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", s.name, err)
	}
	return n, nil
}
