package service

import "github.com/BerniceZTT/crm_web/models"

// Collection 本地实体集合，保持拉取顺序，按ID增删改
type Collection[T any] struct {
	items []T
	id    func(T) models.ID
	clone func(T) T
}

// NewCollection 创建集合；clone 为 nil 时按值复制
func NewCollection[T any](id func(T) models.ID, clone func(T) T) *Collection[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &Collection[T]{id: id, clone: clone}
}

// Items 返回快照
func (c *Collection[T]) Items() []T {
	out := make([]T, len(c.items))
	for i, v := range c.items {
		out[i] = c.clone(v)
	}
	return out
}

// Len 元素个数
func (c *Collection[T]) Len() int {
	return len(c.items)
}

// Find 按ID查找
func (c *Collection[T]) Find(id models.ID) (T, bool) {
	for _, v := range c.items {
		if c.id(v) == id {
			return c.clone(v), true
		}
	}
	var zero T
	return zero, false
}

// Append 追加到末尾
func (c *Collection[T]) Append(v T) {
	c.items = append(c.items, c.clone(v))
}

// ReplaceByID 原位替换，不改变顺序；未找到返回 false
func (c *Collection[T]) ReplaceByID(id models.ID, v T) bool {
	for i := range c.items {
		if c.id(c.items[i]) == id {
			c.items[i] = c.clone(v)
			return true
		}
	}
	return false
}

// RemoveByID 按ID删除；未找到返回 false
func (c *Collection[T]) RemoveByID(id models.ID) bool {
	for i := range c.items {
		if c.id(c.items[i]) == id {
			c.items = append(c.items[:i:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

// Reset 整体替换为新拉取的数据
func (c *Collection[T]) Reset(items []T) {
	c.items = make([]T, len(items))
	for i, v := range items {
		c.items[i] = c.clone(v)
	}
}

func newClientCollection() *Collection[models.Client] {
	return NewCollection(models.ClientID, models.Client.Clone)
}

func newOpportunityCollection() *Collection[models.Opportunity] {
	return NewCollection(models.OpportunityID, nil)
}

func newFollowUpCollection() *Collection[models.FollowUp] {
	return NewCollection(models.FollowUpID, models.FollowUp.Clone)
}
