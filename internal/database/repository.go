package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/cosolvent/cosolvent/domain/query"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound indicates the requested entity was not found.
var ErrNotFound = errors.New("entity not found")

// EntityMapper maps between domain and database model types.
type EntityMapper[D any, E any] interface {
	ToDomain(entity E) (D, error)
	ToModel(domain D) (E, error)
}

// Repository provides generic persistence operations for database entities
// using query.Option-based lookups.
type Repository[D any, E any] struct {
	db     Database
	mapper EntityMapper[D, E]
	label  string
}

// NewRepository creates a new Repository.
func NewRepository[D any, E any](db Database, mapper EntityMapper[D, E], label string) Repository[D, E] {
	return Repository[D, E]{
		db:     db,
		mapper: mapper,
		label:  label,
	}
}

// DB returns a GORM session scoped to the entity model.
func (r Repository[D, E]) DB(ctx context.Context) *gorm.DB {
	return r.db.Session(ctx).Model(new(E))
}

// Database returns the underlying database.
func (r Repository[D, E]) Database() Database { return r.db }

// Find retrieves entities matching the given options.
func (r Repository[D, E]) Find(ctx context.Context, options ...query.Option) ([]D, error) {
	var entities []E
	if err := ApplyOptions(r.DB(ctx), options...).Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("find %s: %w", r.label, err)
	}

	domains := make([]D, 0, len(entities))
	for _, entity := range entities {
		d, err := r.mapper.ToDomain(entity)
		if err != nil {
			return nil, fmt.Errorf("map %s: %w", r.label, err)
		}
		domains = append(domains, d)
	}
	return domains, nil
}

// FindOne retrieves a single entity matching the given options.
func (r Repository[D, E]) FindOne(ctx context.Context, options ...query.Option) (D, error) {
	var zero D
	var entity E
	if err := ApplyOptions(r.DB(ctx), options...).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return zero, fmt.Errorf("%w: %s", ErrNotFound, r.label)
		}
		return zero, fmt.Errorf("find one %s: %w", r.label, err)
	}
	d, err := r.mapper.ToDomain(entity)
	if err != nil {
		return zero, fmt.Errorf("map %s: %w", r.label, err)
	}
	return d, nil
}

// Count returns the number of entities matching the given options.
func (r Repository[D, E]) Count(ctx context.Context, options ...query.Option) (int64, error) {
	var count int64
	if err := ApplyConditions(r.DB(ctx), options...).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", r.label, err)
	}
	return count, nil
}

// Upsert inserts the domain value or replaces every column of the row with
// the same primary key, then returns the stored value.
func (r Repository[D, E]) Upsert(ctx context.Context, d D) (D, error) {
	var zero D
	entity, err := r.mapper.ToModel(d)
	if err != nil {
		return zero, fmt.Errorf("map %s: %w", r.label, err)
	}
	err = r.db.Session(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&entity).Error
	if err != nil {
		return zero, fmt.Errorf("save %s: %w", r.label, err)
	}
	saved, err := r.mapper.ToDomain(entity)
	if err != nil {
		return zero, fmt.Errorf("map %s: %w", r.label, err)
	}
	return saved, nil
}

// DeleteBy removes entities matching the given options and returns the
// number of rows removed.
func (r Repository[D, E]) DeleteBy(ctx context.Context, options ...query.Option) (int64, error) {
	db := ApplyConditions(r.db.Session(ctx), options...)
	if len(query.Build(options...).Conditions()) == 0 {
		db = db.Session(&gorm.Session{AllowGlobalUpdate: true})
	}
	result := db.Delete(new(E))
	if result.Error != nil {
		return 0, fmt.Errorf("delete %s: %w", r.label, result.Error)
	}
	return result.RowsAffected, nil
}

// ApplyOptions applies conditions, ordering and pagination to a session.
func ApplyOptions(db *gorm.DB, options ...query.Option) *gorm.DB {
	q := query.Build(options...)
	db = applyConditions(db, q)

	for _, ord := range q.Orders() {
		db = db.Order(clause.OrderByColumn{
			Column: clause.Column{Name: ord.Field()},
			Desc:   !ord.Ascending(),
		})
	}
	if q.LimitValue() > 0 {
		db = db.Limit(q.LimitValue())
	}
	if q.OffsetValue() > 0 {
		db = db.Offset(q.OffsetValue())
	}
	return db
}

// ApplyConditions applies only WHERE conditions, for COUNT and DELETE.
func ApplyConditions(db *gorm.DB, options ...query.Option) *gorm.DB {
	return applyConditions(db, query.Build(options...))
}

func applyConditions(db *gorm.DB, q query.Query) *gorm.DB {
	for _, cond := range q.Conditions() {
		if cond.In() {
			db = db.Where(clause.IN{Column: clause.Column{Name: cond.Field()}, Values: toValues(cond.Value())})
			continue
		}
		db = db.Where(clause.Eq{Column: clause.Column{Name: cond.Field()}, Value: cond.Value()})
	}
	return db
}

func toValues(v any) []any {
	switch vals := v.(type) {
	case []string:
		out := make([]any, len(vals))
		for i, s := range vals {
			out[i] = s
		}
		return out
	case []int64:
		out := make([]any, len(vals))
		for i, n := range vals {
			out[i] = n
		}
		return out
	case []any:
		return vals
	default:
		return []any{v}
	}
}
