// Package repository 提供数据访问层
package repository

import (
	"context"
	"database/sql"
)

// DB 仓储所需的最小数据库接口，由 internal/database.DB 实现
type DB interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ListFilter 列表查询过滤条件
type ListFilter struct {
	Limit  int
	Offset int
}

// normalize 填充默认分页参数
func (f *ListFilter) normalize() {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}
