package service

import (
	"context"
	"time"

	"github.com/BerniceZTT/crm_web/models"
	"github.com/BerniceZTT/crm_web/repository"
	"github.com/BerniceZTT/crm_web/utils"
)

// AuditRecorder 记录变更审计日志
type AuditRecorder interface {
	Record(ctx context.Context, entry models.OperationLog)
}

// NopAuditRecorder 未配置 MongoDB 时使用
type NopAuditRecorder struct{}

// Record 不做任何事
func (NopAuditRecorder) Record(context.Context, models.OperationLog) {}

// MongoAuditRecorder 写入 MongoDB 的审计记录器，写入失败只记日志不影响业务
type MongoAuditRecorder struct {
	repo *repository.OperationLogRepository
}

// NewMongoAuditRecorder 创建审计记录器
func NewMongoAuditRecorder(repo *repository.OperationLogRepository) *MongoAuditRecorder {
	return &MongoAuditRecorder{repo: repo}
}

// Record 异步写入，使用独立的超时上下文，不受请求取消影响
func (r *MongoAuditRecorder) Record(_ context.Context, entry models.OperationLog) {
	if entry.OperationTime.IsZero() {
		entry.OperationTime = time.Now()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := r.repo.Insert(ctx, entry); err != nil {
			utils.LogError(err, map[string]interface{}{
				"kind":     entry.Kind,
				"action":   entry.Action,
				"entityId": entry.EntityID,
			}, "记录审计日志失败")
		}
	}()
}

// History 查询实体的审计历史
func (r *MongoAuditRecorder) History(ctx context.Context, kind models.EntityKind, entityID string, limit int64) ([]models.OperationLog, error) {
	return r.repo.FindByEntity(ctx, kind, entityID, limit)
}
