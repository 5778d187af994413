package service

import (
	"sort"
	"sync"

	"github.com/BerniceZTT/crm_web/models"
	"github.com/BerniceZTT/crm_web/utils"
)

// ErrMutationPending 同一实体的上一次变更尚未完成
var ErrMutationPending = utils.CreateConflictError("该记录的上一个操作尚未完成，请稍候")

// newEntityKey 新建操作没有ID，同类实体的新建共用一个标记，防止重复提交
const newEntityKey = "new"

// PendingSet 进行中的变更标记，key 为 kind:id
type PendingSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewPendingSet 创建标记集合
func NewPendingSet() *PendingSet {
	return &PendingSet{keys: make(map[string]struct{})}
}

func pendingKey(kind models.EntityKind, id models.ID) string {
	if id.IsZero() {
		return string(kind) + ":" + newEntityKey
	}
	return string(kind) + ":" + id.String()
}

// Begin 标记开始；已在进行中时返回 ErrMutationPending
func (p *PendingSet) Begin(kind models.EntityKind, id models.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := pendingKey(kind, id)
	if _, busy := p.keys[key]; busy {
		return ErrMutationPending
	}
	p.keys[key] = struct{}{}
	return nil
}

// End 清除标记，调用方可以重试
func (p *PendingSet) End(kind models.EntityKind, id models.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.keys, pendingKey(kind, id))
}

// IsPending 是否在进行中
func (p *PendingSet) IsPending(kind models.EntityKind, id models.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, busy := p.keys[pendingKey(kind, id)]
	return busy
}

// Keys 进行中的标记，已排序
func (p *PendingSet) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.keys))
	for k := range p.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
