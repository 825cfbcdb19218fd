package pagination

import (
	"gorm.io/gorm"
)

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// Request holds limit/offset parameters parsed from query strings.
type Request struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=500"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// Defaults fills in the default limit and clamps out-of-range values.
func (p *Request) Defaults() {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
}

// Response wraps a page of items with its window and the total count.
type Response[T any] struct {
	Data   []T   `json:"data"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
	Total  int64 `json:"total"`
}

// NewResponse creates a Response, normalizing a nil slice to empty.
func NewResponse[T any](data []T, req Request, total int64) Response[T] {
	if data == nil {
		data = []T{}
	}
	return Response[T]{
		Data:   data,
		Limit:  req.Limit,
		Offset: req.Offset,
		Total:  total,
	}
}

// Paginate returns a GORM scope that applies OFFSET and LIMIT.
func Paginate(req Request) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(req.Offset).Limit(req.Limit)
	}
}
