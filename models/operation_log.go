package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MutationAction 变更动作
type MutationAction string

const (
	ActionCreate MutationAction = "create"
	ActionUpdate MutationAction = "update"
	ActionDelete MutationAction = "delete"
)

// OperationLog 操作日志结构体，记录每一次对远程存储的变更尝试
type OperationLog struct {
	ID            primitive.ObjectID `json:"_id,omitempty" bson:"_id,omitempty"`
	SessionID     string             `json:"sessionId" bson:"sessionId"`
	Kind          EntityKind         `json:"kind" bson:"kind"`
	Action        MutationAction     `json:"action" bson:"action"`
	EntityID      string             `json:"entityId" bson:"entityId"`
	Method        string             `json:"method,omitempty" bson:"method,omitempty"`
	Path          string             `json:"path,omitempty" bson:"path,omitempty"`
	RequestBody   interface{}        `json:"requestBody,omitempty" bson:"requestBody,omitempty"`
	StatusCode    int                `json:"statusCode,omitempty" bson:"statusCode,omitempty"`
	Success       bool               `json:"success" bson:"success"`
	ErrorMessage  string             `json:"errorMessage,omitempty" bson:"errorMessage,omitempty"`
	OperationTime time.Time          `json:"operationTime" bson:"operationTime"`
	ResponseTime  int64              `json:"responseTime" bson:"responseTime"` // 毫秒
	IPAddress     string             `json:"ipAddress,omitempty" bson:"ipAddress,omitempty"`
	UserAgent     string             `json:"userAgent,omitempty" bson:"userAgent,omitempty"`
}

// ChangeEvent 变更确认后发布的事件
type ChangeEvent struct {
	Kind       EntityKind     `json:"kind"`
	Action     MutationAction `json:"action"`
	EntityID   string         `json:"entityId"`
	SessionID  string         `json:"sessionId"`
	OccurredAt time.Time      `json:"occurredAt"`
}
