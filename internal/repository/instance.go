package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shangmen/shangmen/pkg/model"
)

// InstanceRecord 已入库的问题实例
// 按签名去重：同一内容的实例只保存一份
type InstanceRecord struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Signature string          `json:"signature"`
	Payload   json.RawMessage `json:"payload"`  // 实例的声明字段
	Features  json.RawMessage `json:"features"` // 特征摘要
	CreatedAt time.Time       `json:"created_at"`
}

// InstanceRepository 实例仓储
type InstanceRepository struct {
	db DB
}

// NewInstanceRepository 创建实例仓储
func NewInstanceRepository(db DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// Save 保存实例（按签名幂等）
func (r *InstanceRepository) Save(ctx context.Context, ins *model.Instance) (*InstanceRecord, error) {
	payload, err := json.Marshal(ins)
	if err != nil {
		return nil, fmt.Errorf("序列化实例失败: %w", err)
	}
	features, err := json.Marshal(ins.Features())
	if err != nil {
		return nil, fmt.Errorf("序列化实例特征失败: %w", err)
	}

	rec := &InstanceRecord{
		ID:        uuid.New(),
		Name:      ins.Name,
		Signature: ins.Signature(),
		Payload:   payload,
		Features:  features,
		CreatedAt: time.Now(),
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO instances (id, name, signature, payload, features, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (signature) DO NOTHING`,
		rec.ID, rec.Name, rec.Signature, rec.Payload, rec.Features, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("保存实例失败: %w", err)
	}
	return rec, nil
}

// GetBySignature 按签名查找实例
func (r *InstanceRepository) GetBySignature(ctx context.Context, signature string) (*InstanceRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, signature, payload, features, created_at
		FROM instances WHERE signature = $1`, signature)

	var rec InstanceRecord
	err := row.Scan(&rec.ID, &rec.Name, &rec.Signature, &rec.Payload, &rec.Features, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询实例失败: %w", err)
	}
	return &rec, nil
}

// List 按时间倒序列出实例
func (r *InstanceRepository) List(ctx context.Context, filter ListFilter) ([]*InstanceRecord, error) {
	filter.normalize()
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, signature, payload, features, created_at
		FROM instances ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("查询实例列表失败: %w", err)
	}
	defer rows.Close()

	var records []*InstanceRecord
	for rows.Next() {
		var rec InstanceRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Signature, &rec.Payload, &rec.Features, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("读取实例记录失败: %w", err)
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}
