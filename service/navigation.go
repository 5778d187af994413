package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/BerniceZTT/crm_web/models"
	"github.com/BerniceZTT/crm_web/repository"
	"github.com/BerniceZTT/crm_web/utils"
)

// 导航选中实体的键名
const (
	SelectedClientKey      = "selectedClient"
	SelectedOpportunityKey = "selectedOpportunity"
)

// ErrNothingSelected 尚未选择实体
var ErrNothingSelected = utils.CreateNotFoundError("已选择的记录")

// NavigationStore 列表页到详情页的选中实体传递，按会话隔离
type NavigationStore struct {
	kv  repository.KeyValueStore
	ttl time.Duration
}

// NewNavigationStore 创建导航存储
func NewNavigationStore(kv repository.KeyValueStore, ttl time.Duration) *NavigationStore {
	return &NavigationStore{kv: kv, ttl: ttl}
}

func navigationKey(sessionID, name string) string {
	return "crm:nav:" + sessionID + ":" + name
}

func (n *NavigationStore) put(ctx context.Context, sessionID, name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化选中记录失败: %w", err)
	}
	return n.kv.Set(ctx, navigationKey(sessionID, name), string(data), n.ttl)
}

func (n *NavigationStore) get(ctx context.Context, sessionID, name string, v interface{}) error {
	raw, err := n.kv.Get(ctx, navigationKey(sessionID, name))
	if errors.Is(err, repository.ErrCacheMiss) {
		return ErrNothingSelected
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("解析选中记录失败: %w", err)
	}
	return nil
}

// SelectClient 记录选中的客户
func (n *NavigationStore) SelectClient(ctx context.Context, sessionID string, c models.Client) error {
	return n.put(ctx, sessionID, SelectedClientKey, c)
}

// SelectedClient 读取选中的客户
func (n *NavigationStore) SelectedClient(ctx context.Context, sessionID string) (models.Client, error) {
	var c models.Client
	err := n.get(ctx, sessionID, SelectedClientKey, &c)
	return c, err
}

// SelectOpportunity 记录选中的商机
func (n *NavigationStore) SelectOpportunity(ctx context.Context, sessionID string, o models.Opportunity) error {
	return n.put(ctx, sessionID, SelectedOpportunityKey, o)
}

// SelectedOpportunity 读取选中的商机
func (n *NavigationStore) SelectedOpportunity(ctx context.Context, sessionID string) (models.Opportunity, error) {
	var o models.Opportunity
	err := n.get(ctx, sessionID, SelectedOpportunityKey, &o)
	return o, err
}

// Clear 清除会话的全部选中记录
func (n *NavigationStore) Clear(ctx context.Context, sessionID string) error {
	return n.kv.Delete(ctx,
		navigationKey(sessionID, SelectedClientKey),
		navigationKey(sessionID, SelectedOpportunityKey),
	)
}
