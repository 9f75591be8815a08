package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ValidationRun 一次解验证的记录
type ValidationRun struct {
	ID                uuid.UUID       `json:"id"`
	InstanceSignature string          `json:"instance_signature"`
	SolutionHash      string          `json:"solution_hash"`
	Valid             bool            `json:"valid"`
	FailedRule        string          `json:"failed_rule,omitempty"` // 失败时的错误码
	Message           string          `json:"message,omitempty"`
	Costs             json.RawMessage `json:"costs,omitempty"`
	DurationMillis    int64           `json:"duration_ms"`
	CreatedAt         time.Time       `json:"created_at"`
}

// RunRepository 验证记录仓储
type RunRepository struct {
	db DB
}

// NewRunRepository 创建验证记录仓储
func NewRunRepository(db DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create 写入一条验证记录
func (r *RunRepository) Create(ctx context.Context, run *ValidationRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO validation_runs
			(id, instance_signature, solution_hash, valid, failed_rule, message, costs, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.InstanceSignature, run.SolutionHash, run.Valid,
		run.FailedRule, run.Message, run.Costs, run.DurationMillis, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("保存验证记录失败: %w", err)
	}
	return nil
}

// ListByInstance 列出某实例的验证历史
func (r *RunRepository) ListByInstance(ctx context.Context, signature string, filter ListFilter) ([]*ValidationRun, error) {
	filter.normalize()
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, instance_signature, solution_hash, valid, failed_rule, message, costs, duration_ms, created_at
		FROM validation_runs WHERE instance_signature = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		signature, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("查询验证记录失败: %w", err)
	}
	defer rows.Close()

	var runs []*ValidationRun
	for rows.Next() {
		var run ValidationRun
		if err := rows.Scan(&run.ID, &run.InstanceSignature, &run.SolutionHash, &run.Valid,
			&run.FailedRule, &run.Message, &run.Costs, &run.DurationMillis, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("读取验证记录失败: %w", err)
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
