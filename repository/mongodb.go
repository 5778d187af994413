package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BerniceZTT/crm_web/models"
	"github.com/BerniceZTT/crm_web/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	// 集合名
	OperationLogsCollection = "crmOperationLogs"
)

var (
	client *mongo.Client
	db     *mongo.Database
)

// InitMongoDB 初始化MongoDB连接
func InitMongoDB(ctx context.Context, uri, dbName string) error {
	// 设置连接超时
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// 创建客户端
	var err error
	clientOptions := options.Client().ApplyURI(uri)
	client, err = mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return fmt.Errorf("连接MongoDB失败: %w", err)
	}

	// 检查连接
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return fmt.Errorf("ping MongoDB失败: %w", err)
	}

	// 选择数据库
	db = client.Database(dbName)
	utils.Logger.Info().Str("database", dbName).Msg("已连接到MongoDB")

	return nil
}

// CloseMongoDB 关闭MongoDB连接
func CloseMongoDB(ctx context.Context) {
	if client != nil {
		if err := client.Disconnect(ctx); err != nil {
			utils.Logger.Error().Err(err).Msg("断开MongoDB连接失败")
			return
		}
		utils.Logger.Info().Msg("已断开MongoDB连接")
	}
}

// Collection 返回指定名称的集合，未连接时返回 nil
func Collection(name string) *mongo.Collection {
	if db == nil {
		return nil
	}
	return db.Collection(name)
}

// InitializeCollections 初始化审计集合与索引
func InitializeCollections(ctx context.Context) error {
	if db == nil {
		return errors.New("MongoDB 未连接")
	}
	names, err := db.ListCollectionNames(ctx, bson.M{"name": OperationLogsCollection})
	if err != nil {
		return fmt.Errorf("检查集合失败: %w", err)
	}
	if len(names) == 0 {
		if err := db.CreateCollection(ctx, OperationLogsCollection); err != nil {
			return fmt.Errorf("创建集合失败: %w", err)
		}
		utils.Logger.Info().Str("collection", OperationLogsCollection).Msg("创建集合成功")
	}

	_, err = db.Collection(OperationLogsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "operationTime", Value: -1}}},
		{Keys: bson.D{{Key: "kind", Value: 1}, {Key: "entityId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("创建索引失败: %w", err)
	}
	return nil
}

// ExecuteDbOperation 执行数据库操作，提供错误处理和重试机制
func ExecuteDbOperation(operation func() (interface{}, error), retries int) (interface{}, error) {
	if retries <= 0 {
		retries = 3
	}

	var lastErr error
	for i := 0; i < retries; i++ {
		result, err := operation()
		if err == nil {
			return result, nil
		}

		lastErr = err
		utils.Logger.Error().Err(err).Msgf("数据库操作失败，重试 (%d/%d)", i+1, retries)

		// 如果是不可重试的错误，立即返回
		if !isRetryableError(err) {
			break
		}

		// 延迟后重试
		time.Sleep(time.Duration(500*(i+1)) * time.Millisecond)
	}

	return nil, lastErr
}

// MongoDB可重试错误代码
var retryableCodes = map[int32]bool{
	6:     true, // HostUnreachable
	7:     true, // HostNotFound
	89:    true, // NetworkTimeout
	91:    true, // ShutdownInProgress
	189:   true, // PrimarySteppedDown
	10107: true, // NotMaster
	13436: true, // NotMasterNoSlaveOk
	11600: true, // InterruptedAtShutdown
	11602: true, // InterruptedDueToReplStateChange
}

// isRetryableError 判断错误是否可重试
func isRetryableError(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return retryableCodes[cmdErr.Code]
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return true
	}

	// 检查常见网络错误
	msg := strings.ToLower(err.Error())
	for _, ne := range []string{
		"connection refused",
		"connection reset",
		"no reachable servers",
		"server selection error",
	} {
		if strings.Contains(msg, ne) {
			return true
		}
	}
	return false
}

// OperationLogRepository 变更审计日志存储
type OperationLogRepository struct {
	coll *mongo.Collection
}

// NewOperationLogRepository 创建审计日志存储
func NewOperationLogRepository(coll *mongo.Collection) *OperationLogRepository {
	return &OperationLogRepository{coll: coll}
}

// Insert 写入一条审计日志
func (r *OperationLogRepository) Insert(ctx context.Context, entry models.OperationLog) error {
	_, err := ExecuteDbOperation(func() (interface{}, error) {
		return r.coll.InsertOne(ctx, entry)
	}, 3)
	if err != nil {
		return fmt.Errorf("写入审计日志失败: %w", err)
	}
	return nil
}

// FindByEntity 查询某实体的审计记录，按时间倒序
func (r *OperationLogRepository) FindByEntity(ctx context.Context, kind models.EntityKind, entityID string, limit int64) ([]models.OperationLog, error) {
	if limit <= 0 {
		limit = 50
	}
	opts := options.Find().SetSort(bson.D{{Key: "operationTime", Value: -1}}).SetLimit(limit)
	cursor, err := r.coll.Find(ctx, bson.M{"kind": kind, "entityId": entityID}, opts)
	if err != nil {
		return nil, fmt.Errorf("查询审计日志失败: %w", err)
	}
	defer cursor.Close(ctx)

	logs := []models.OperationLog{}
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, fmt.Errorf("解析审计日志失败: %w", err)
	}
	return logs, nil
}
