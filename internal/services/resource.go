package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// Row is a table-backed model with a numeric primary key.
type Row interface {
	TableName() string
	RowID() uint
}

// Resource implements the list-screen contract for one table: fetch all,
// toggle a boolean column, remove, create. Every mutation is published on
// the change feed so open screens refetch.
type Resource[T Row] struct {
	db           *gorm.DB
	feed         *ChangeFeed
	toggleColumn string
	scope        map[string]interface{}
	searchFields []string
}

func NewResource[T Row](db *gorm.DB, feed *ChangeFeed, toggleColumn string) *Resource[T] {
	return &Resource[T]{db: db, feed: feed, toggleColumn: toggleColumn}
}

// WithScope pins an equality filter applied to every query and mutation,
// e.g. role = Student.
func (r *Resource[T]) WithScope(scope map[string]interface{}) *Resource[T] {
	r.scope = scope
	return r
}

// WithSearch sets the columns matched by ListQuery.Keyword.
func (r *Resource[T]) WithSearch(columns ...string) *Resource[T] {
	r.searchFields = columns
	return r
}

func (r *Resource[T]) table() string {
	var zero T
	return zero.TableName()
}

func (r *Resource[T]) ToggleColumn() string { return r.toggleColumn }

func (r *Resource[T]) query(ctx context.Context) *gorm.DB {
	q := r.db.WithContext(ctx).Model(new(T))
	if len(r.scope) > 0 {
		q = q.Where(r.scope)
	}
	return q
}

// FetchAll returns every row matching the equality filters, newest first.
func (r *Resource[T]) FetchAll(ctx context.Context, filters map[string]interface{}) ([]T, error) {
	q := r.query(ctx)
	if len(filters) > 0 {
		q = q.Where(filters)
	}
	var rows []T
	if err := q.Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch %s: %w", r.table(), err)
	}
	return rows, nil
}

type ListQuery struct {
	Page     int
	PageSize int
	Keyword  string
	Filters  map[string]interface{}
}

// List is FetchAll with paging and keyword search for the admin screens.
func (r *Resource[T]) List(ctx context.Context, lq ListQuery) ([]T, int64, error) {
	if lq.Page < 1 {
		lq.Page = 1
	}
	if lq.PageSize < 1 || lq.PageSize > 100 {
		lq.PageSize = 20
	}

	q := r.query(ctx)
	if len(lq.Filters) > 0 {
		q = q.Where(lq.Filters)
	}
	if kw := strings.TrimSpace(lq.Keyword); kw != "" && len(r.searchFields) > 0 {
		like := "%" + kw + "%"
		conds := make([]string, len(r.searchFields))
		args := make([]interface{}, len(r.searchFields))
		for i, f := range r.searchFields {
			conds[i] = f + " LIKE ?"
			args[i] = like
		}
		q = q.Where(strings.Join(conds, " OR "), args...)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", r.table(), err)
	}
	var rows []T
	if err := q.Order("created_at DESC, id DESC").Offset((lq.Page - 1) * lq.PageSize).Limit(lq.PageSize).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", r.table(), err)
	}
	return rows, total, nil
}

// Get returns gorm.ErrRecordNotFound (wrapped) when id is not in scope.
func (r *Resource[T]) Get(ctx context.Context, id uint) (*T, error) {
	var row T
	if err := r.query(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		return nil, fmt.Errorf("get %s %d: %w", r.table(), id, err)
	}
	return &row, nil
}

func (r *Resource[T]) Create(ctx context.Context, row *T) error {
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("create %s: %w", r.table(), err)
	}
	r.feed.PublishRow(r.table(), ChangeInsert, rowKey((*row).RowID()), row)
	return nil
}

// Update writes fields to the row and returns the stored result.
func (r *Resource[T]) Update(ctx context.Context, id uint, fields map[string]interface{}) (*T, error) {
	if len(fields) > 0 {
		res := r.query(ctx).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return nil, fmt.Errorf("update %s %d: %w", r.table(), id, res.Error)
		}
	}
	row, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r.feed.PublishRow(r.table(), ChangeUpdate, rowKey(id), row)
	return row, nil
}

// Toggle sets the boolean column to !current and returns the new value.
// With current nil the stored value is read first.
func (r *Resource[T]) Toggle(ctx context.Context, id uint, current *bool) (bool, error) {
	if r.toggleColumn == "" {
		return false, errors.New(r.table() + " has no toggle column")
	}

	var cur bool
	if current != nil {
		cur = *current
	} else {
		var out map[string]interface{}
		err := r.query(ctx).Select(r.toggleColumn).Where("id = ?", id).Take(&out).Error
		if err != nil {
			return false, fmt.Errorf("read %s.%s for %d: %w", r.table(), r.toggleColumn, id, err)
		}
		cur = cast.ToBool(out[r.toggleColumn])
	}

	next := !cur
	res := r.query(ctx).Where("id = ?", id).Update(r.toggleColumn, next)
	if res.Error != nil {
		return false, fmt.Errorf("toggle %s %d: %w", r.table(), id, res.Error)
	}
	// RowsAffected is 0 on MySQL when the value did not change, so the row
	// itself decides whether the id exists.
	row, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	r.feed.PublishRow(r.table(), ChangeUpdate, rowKey(id), row)
	return next, nil
}

// Remove deletes the row. A missing id returns (false, nil).
func (r *Resource[T]) Remove(ctx context.Context, id uint) (bool, error) {
	res := r.query(ctx).Where("id = ?", id).Delete(new(T))
	if res.Error != nil {
		return false, fmt.Errorf("delete %s %d: %w", r.table(), id, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	r.feed.PublishRow(r.table(), ChangeDelete, rowKey(id), nil)
	return true, nil
}

func (r *Resource[T]) Count(ctx context.Context, filters map[string]interface{}) (int64, error) {
	q := r.query(ctx)
	if len(filters) > 0 {
		q = q.Where(filters)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

func rowKey(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
