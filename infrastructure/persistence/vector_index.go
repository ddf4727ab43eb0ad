package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/cosolvent/cosolvent/domain/search"
	"github.com/cosolvent/cosolvent/internal/database"
)

// ErrInvalidIndexName indicates an index name that is not a plain SQL identifier.
var ErrInvalidIndexName = errors.New("invalid index name")

var indexNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// NewVectorIndex opens the named vector index on the backend matching the
// database: pgvector for PostgreSQL, JSON columns for SQLite.
func NewVectorIndex(ctx context.Context, db database.Database, name string, dimension int, logger *slog.Logger) (search.Index, error) {
	if !indexNamePattern.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidIndexName, name)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", search.ErrDimensionMismatch, dimension)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if db.IsPostgres() {
		return NewPgvectorIndex(ctx, db, name, dimension, logger)
	}
	return NewSQLiteIndex(ctx, db, name, dimension, logger)
}
