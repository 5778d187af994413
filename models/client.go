package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Contact 客户联系人
type Contact struct {
	FirstName string `json:"firstName" bson:"firstName" validate:"required"`
	LastName  string `json:"lastName" bson:"lastName" validate:"required"`
	Email     string `json:"email" bson:"email" validate:"required,contactemail"`
	Phone     string `json:"phone" bson:"phone" validate:"required"`
}

// FullName 联系人全名
func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// OpportunityLink 客户上的商机引用，可能是纯ID也可能是 {id,name} 存根
type OpportunityLink struct {
	ID   ID     `json:"id" bson:"id"`
	Name string `json:"name,omitempty" bson:"name,omitempty"`
	Stub bool   `json:"-" bson:"-"`
}

// OpportunityLinks 客户的商机引用列表
type OpportunityLinks []OpportunityLink

// UnmarshalJSON 兼容 ["10", 11] 与 [{"id":10,"name":"X"}]，两种形式可以混合
func (l *OpportunityLinks) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*l = nil
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("解析客户商机列表失败: %w", err)
	}

	links := make(OpportunityLinks, 0, len(raw))
	for _, item := range raw {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || string(item) == "null" {
			continue
		}
		if item[0] == '{' {
			var stub struct {
				ID   ID     `json:"id"`
				Name string `json:"name"`
			}
			if err := json.Unmarshal(item, &stub); err != nil {
				return fmt.Errorf("解析商机存根失败: %w", err)
			}
			links = append(links, OpportunityLink{ID: stub.ID, Name: stub.Name, Stub: true})
			continue
		}
		var id ID
		if err := json.Unmarshal(item, &id); err != nil {
			return err
		}
		links = append(links, OpportunityLink{ID: id})
	}
	*l = links
	return nil
}

// MarshalJSON 按接收时的形式输出，保证整体 PUT 时不改变后端数据形状
func (l OpportunityLinks) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	out := make([]interface{}, 0, len(l))
	for _, link := range l {
		if link.Stub {
			out = append(out, map[string]interface{}{"id": link.ID, "name": link.Name})
		} else {
			out = append(out, link.ID)
		}
	}
	return json.Marshal(out)
}

// IDs 返回所有引用的商机ID（去除空值）
func (l OpportunityLinks) IDs() []ID {
	ids := make([]ID, 0, len(l))
	for _, link := range l {
		if !link.ID.IsZero() {
			ids = append(ids, link.ID)
		}
	}
	return ids
}

// Contains 是否引用了指定商机
func (l OpportunityLinks) Contains(id ID) bool {
	for _, link := range l {
		if link.ID == id {
			return true
		}
	}
	return false
}

// Client 客户
type Client struct {
	ID            ID               `json:"id,omitempty" bson:"id,omitempty"`
	Nit           string           `json:"nit" bson:"nit" validate:"required"`
	Name          string           `json:"name" bson:"name" validate:"required"`
	Address       string           `json:"address" bson:"address"`
	City          string           `json:"city" bson:"city"`
	Country       string           `json:"country" bson:"country"`
	Phone         string           `json:"phone" bson:"phone"`
	Email         string           `json:"email" bson:"email" validate:"omitempty,contactemail"`
	Active        bool             `json:"active" bson:"active"`
	Contacts      []Contact        `json:"contacts" bson:"contacts" validate:"dive"`
	Opportunities OpportunityLinks `json:"opportunities" bson:"opportunities"`
}

// Clone 深拷贝，避免调用方修改本地状态
func (c Client) Clone() Client {
	out := c
	if c.Contacts != nil {
		out.Contacts = append([]Contact(nil), c.Contacts...)
	}
	if c.Opportunities != nil {
		out.Opportunities = append(OpportunityLinks(nil), c.Opportunities...)
	}
	return out
}

// ClientID 返回客户ID（供集合索引使用）
func ClientID(c Client) ID { return c.ID }
