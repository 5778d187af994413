package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ID 实体标识，兼容后端返回的字符串或数字两种形式
type ID string

// UnmarshalJSON 支持 "10"、10 与 null
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("无效的ID: %s", string(data))
	}
	*id = ID(n.String())
	return nil
}

// String 返回字符串形式
func (id ID) String() string {
	return string(id)
}

// IsZero 是否为空ID
func (id ID) IsZero() bool {
	return id == ""
}

// EntityKind 实体类型枚举
type EntityKind string

const (
	EntityKindClient      EntityKind = "client"      // 客户
	EntityKindOpportunity EntityKind = "opportunity" // 商机
	EntityKindFollowUp    EntityKind = "follow"      // 跟进
)

// 远程存储集合名
const (
	ClientsCollection       = "clients"
	OpportunitiesCollection = "opportunities"
	FollowUpCollection      = "follow"
)

// Collection 返回实体对应的远程集合名
func (k EntityKind) Collection() string {
	switch k {
	case EntityKindClient:
		return ClientsCollection
	case EntityKindOpportunity:
		return OpportunitiesCollection
	case EntityKindFollowUp:
		return FollowUpCollection
	}
	return ""
}

// ParseEntityKind 解析实体类型
func ParseEntityKind(s string) (EntityKind, bool) {
	switch EntityKind(strings.ToLower(strings.TrimSpace(s))) {
	case EntityKindClient, "clients":
		return EntityKindClient, true
	case EntityKindOpportunity, "opportunities":
		return EntityKindOpportunity, true
	case EntityKindFollowUp, "followup", "follow-ups":
		return EntityKindFollowUp, true
	}
	return "", false
}

// ISODateLayout 日期格式 YYYY-MM-DD
const ISODateLayout = "2006-01-02"

// NormalizeISODate 将 RFC3339 时间戳截断为 YYYY-MM-DD，无法识别时原样返回
func NormalizeISODate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if _, err := time.Parse(ISODateLayout, s); err == nil {
		return s
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC().Format(ISODateLayout)
	}
	if len(s) > len(ISODateLayout) && s[len(ISODateLayout)] == 'T' {
		if _, err := time.Parse(ISODateLayout, s[:len(ISODateLayout)]); err == nil {
			return s[:len(ISODateLayout)]
		}
	}
	return s
}

// IsISODate 校验 YYYY-MM-DD
func IsISODate(s string) bool {
	_, err := time.Parse(ISODateLayout, s)
	return err == nil
}
