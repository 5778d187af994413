package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BerniceZTT/crm_web/models"
	"github.com/BerniceZTT/crm_web/monitoring"
	"github.com/BerniceZTT/crm_web/repository"
	"github.com/BerniceZTT/crm_web/utils"
	"golang.org/x/sync/errgroup"
)

// AllKinds 三类实体
var AllKinds = []models.EntityKind{models.EntityKindClient, models.EntityKindOpportunity, models.EntityKindFollowUp}

// Workspace 一个会话的页面状态：三个集合、分页游标、加载状态、错误与进行中的变更。
// 每次挂载都重新拉取，本地状态只是当前页面生命周期内的缓存。
type Workspace struct {
	mu        sync.Mutex
	sessionID string
	store     repository.Store

	clients       *Collection[models.Client]
	opportunities *Collection[models.Opportunity]
	followUps     *Collection[models.FollowUp]

	pagers     map[models.EntityKind]*Paginator
	loading    map[models.EntityKind]bool
	loaded     map[models.EntityKind]bool
	lastError  string
	generation map[models.EntityKind]uint64
	lastUsed   time.Time

	pending *PendingSet
}

// NewWorkspace 创建会话工作区
func NewWorkspace(sessionID string, store repository.Store, pageSize int) *Workspace {
	w := &Workspace{
		sessionID:     sessionID,
		store:         store,
		clients:       newClientCollection(),
		opportunities: newOpportunityCollection(),
		followUps:     newFollowUpCollection(),
		pagers:        make(map[models.EntityKind]*Paginator, len(AllKinds)),
		loading:       make(map[models.EntityKind]bool, len(AllKinds)),
		loaded:        make(map[models.EntityKind]bool, len(AllKinds)),
		generation:    make(map[models.EntityKind]uint64, len(AllKinds)),
		lastUsed:      time.Now(),
		pending:       NewPendingSet(),
	}
	for _, k := range AllKinds {
		p := NewPaginator(pageSize)
		w.pagers[k] = &p
	}
	return w
}

// SessionID 会话ID
func (w *Workspace) SessionID() string { return w.sessionID }

// Store 远程存储
func (w *Workspace) Store() repository.Store { return w.store }

// Pending 进行中的变更
func (w *Workspace) Pending() *PendingSet { return w.pending }

type fetchResult struct {
	clients       []models.Client
	opportunities []models.Opportunity
	followUps     []models.FollowUp
}

// Mount 页面挂载：并行拉取所需集合。
// 代次按集合记录：某个集合只应用该集合最新一次挂载的结果，
// 同一集合上较早发起、较晚返回的结果直接丢弃，互不相交的挂载互不影响。
// 失败时保留原有数据并记录错误。
func (w *Workspace) Mount(ctx context.Context, kinds ...models.EntityKind) error {
	if len(kinds) == 0 {
		kinds = AllKinds
	}
	for _, k := range kinds {
		if k.Collection() == "" {
			return utils.CreateBadRequestError(fmt.Sprintf("未知的实体类型: %s", k))
		}
	}

	w.mu.Lock()
	gens := make(map[models.EntityKind]uint64, len(kinds))
	for _, k := range kinds {
		w.generation[k]++
		gens[k] = w.generation[k]
		w.loading[k] = true
	}
	w.lastUsed = time.Now()
	w.mu.Unlock()

	var res fetchResult
	g, gctx := errgroup.WithContext(ctx)
	for _, k := range kinds {
		switch k {
		case models.EntityKindClient:
			g.Go(func() error {
				items, err := repository.FetchAll[models.Client](gctx, w.store, models.ClientsCollection)
				res.clients = items
				return err
			})
		case models.EntityKindOpportunity:
			g.Go(func() error {
				items, err := repository.FetchAll[models.Opportunity](gctx, w.store, models.OpportunitiesCollection)
				for i := range items {
					items[i].Normalize()
				}
				res.opportunities = items
				return err
			})
		case models.EntityKindFollowUp:
			g.Go(func() error {
				items, err := repository.FetchAll[models.FollowUp](gctx, w.store, models.FollowUpCollection)
				res.followUps = items
				return err
			})
		}
	}
	err := g.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()

	current := make([]models.EntityKind, 0, len(kinds))
	for _, k := range kinds {
		if gens[k] != w.generation[k] {
			utils.Logger.Debug().Str("session", w.sessionID).Str("kind", string(k)).Uint64("generation", gens[k]).Msg("丢弃过期的挂载结果")
			continue
		}
		w.loading[k] = false
		current = append(current, k)
	}
	if len(current) == 0 {
		return nil
	}
	if err != nil {
		w.lastError = err.Error()
		utils.LogError(err, map[string]interface{}{"session": w.sessionID, "kinds": kinds}, "页面数据加载失败")
		return err
	}

	for _, k := range current {
		switch k {
		case models.EntityKindClient:
			w.clients.Reset(res.clients)
		case models.EntityKindOpportunity:
			w.opportunities.Reset(res.opportunities)
		case models.EntityKindFollowUp:
			w.followUps.Reset(res.followUps)
		}
		w.loaded[k] = true
		w.pagers[k].Clamp(w.lenLocked(k))
	}
	w.lastError = ""
	return nil
}

// EnsureLoaded 只挂载尚未加载过的集合
func (w *Workspace) EnsureLoaded(ctx context.Context, kinds ...models.EntityKind) error {
	w.mu.Lock()
	missing := make([]models.EntityKind, 0, len(kinds))
	for _, k := range kinds {
		if !w.loaded[k] {
			missing = append(missing, k)
		}
	}
	w.mu.Unlock()

	if len(missing) == 0 {
		return nil
	}
	return w.Mount(ctx, missing...)
}

// Loading 集合是否正在加载
func (w *Workspace) Loading(kind models.EntityKind) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loading[kind]
}

// LastError 最近一次失败的提示信息
func (w *Workspace) LastError() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastError
}

func (w *Workspace) setError(msg string) {
	w.mu.Lock()
	w.lastError = msg
	w.mu.Unlock()
}

// Generation 集合当前的挂载代次
func (w *Workspace) Generation(kind models.EntityKind) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generation[kind]
}

// Clients 客户快照
func (w *Workspace) Clients() []models.Client {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.clients.Items()
}

// Opportunities 商机快照
func (w *Workspace) Opportunities() []models.Opportunity {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.opportunities.Items()
}

// FollowUps 跟进记录快照
func (w *Workspace) FollowUps() []models.FollowUp {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.followUps.Items()
}

// ViewModel 基于当前快照构建关联视图
func (w *Workspace) ViewModel() *ViewModel {
	w.mu.Lock()
	defer w.mu.Unlock()
	return NewViewModel(w.clients.Items(), w.opportunities.Items(), w.followUps.Items())
}

// Paginator 返回集合的分页游标副本
func (w *Workspace) Paginator(kind models.EntityKind) Paginator {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.pagers[kind]; ok {
		return *p
	}
	return NewPaginator(0)
}

// GotoPage 跳转页码，超出范围时修正到有效页
func (w *Workspace) GotoPage(kind models.EntityKind, index int) Paginator {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pagers[kind]
	if !ok {
		return NewPaginator(0)
	}
	p.Goto(index, w.lenLocked(kind))
	return *p
}

// PageView 当前页数据及分页状态
func PageView[T any](w *Workspace, kind models.EntityKind, items []T) models.PageView[T] {
	p := w.Paginator(kind)
	return models.PageView[T]{
		Items:     Page(items, p.Index, p.Size),
		PageIndex: p.Index,
		PageSize:  p.Size,
		PageCount: PageCount(len(items), p.Size),
		Total:     len(items),
		Loading:   w.Loading(kind),
		Error:     w.LastError(),
	}
}

// update 在锁内修改本地状态
func (w *Workspace) update(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn()
}

func (w *Workspace) lenLocked(kind models.EntityKind) int {
	switch kind {
	case models.EntityKindClient:
		return w.clients.Len()
	case models.EntityKindOpportunity:
		return w.opportunities.Len()
	case models.EntityKindFollowUp:
		return w.followUps.Len()
	}
	return 0
}

// clampLocked 删除后修正分页，当前页被删空时回退一页
func (w *Workspace) clampLocked(kind models.EntityKind) {
	if p, ok := w.pagers[kind]; ok {
		p.Clamp(w.lenLocked(kind))
	}
}

func (w *Workspace) touch() {
	w.mu.Lock()
	w.lastUsed = time.Now()
	w.mu.Unlock()
}

func (w *Workspace) idleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastUsed
}

// WorkspaceRegistry 会话ID到工作区的映射
type WorkspaceRegistry struct {
	mu       sync.Mutex
	items    map[string]*Workspace
	store    repository.Store
	pageSize int
}

// NewWorkspaceRegistry 创建工作区注册表
func NewWorkspaceRegistry(store repository.Store, pageSize int) *WorkspaceRegistry {
	return &WorkspaceRegistry{
		items:    make(map[string]*Workspace),
		store:    store,
		pageSize: pageSize,
	}
}

// Get 获取会话工作区，不存在时创建
func (r *WorkspaceRegistry) Get(sessionID string) *Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.items[sessionID]
	if !ok {
		w = NewWorkspace(sessionID, r.store, r.pageSize)
		r.items[sessionID] = w
		monitoring.ActiveWorkspaces.Set(float64(len(r.items)))
	}
	w.touch()
	return w
}

// Len 当前工作区数量
func (r *WorkspaceRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// EvictIdle 清理闲置超过 maxIdle 且没有进行中变更的工作区
func (r *WorkspaceRegistry) EvictIdle(now time.Time, maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, w := range r.items {
		if now.Sub(w.idleSince()) < maxIdle || len(w.pending.Keys()) > 0 {
			continue
		}
		delete(r.items, id)
		evicted++
	}
	monitoring.ActiveWorkspaces.Set(float64(len(r.items)))
	return evicted
}

// StartEviction 启动闲置工作区清理任务
func (r *WorkspaceRegistry) StartEviction(ctx context.Context, maxIdle time.Duration) *Poller {
	interval := maxIdle / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	p := NewPoller("workspace-eviction", interval, func(context.Context) {
		if n := r.EvictIdle(time.Now(), maxIdle); n > 0 {
			utils.Logger.Info().Int("evicted", n).Msg("已清理闲置会话工作区")
		}
	})
	p.Start(ctx, false)
	return p
}
