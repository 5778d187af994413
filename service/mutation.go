package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BerniceZTT/crm_web/models"
	"github.com/BerniceZTT/crm_web/monitoring"
	"github.com/BerniceZTT/crm_web/repository"
	"github.com/BerniceZTT/crm_web/utils"
	"github.com/google/uuid"
)

// DeleteOptions 删除选项
type DeleteOptions struct {
	// Cascade 删除商机时同时删除其跟进记录，默认保留
	Cascade bool
}

// LinkError 商机已创建，但写回客户的商机列表失败；商机仍通过 clientId 关联到客户
type LinkError struct {
	ClientID models.ID
	Err      error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("商机已创建，但关联到客户 %s 失败: %v", e.ClientID, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

// CascadeError 商机已删除，但级联删除其跟进记录失败
type CascadeError struct {
	FollowUpID models.ID
	Err        error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("商机已删除，但删除跟进记录 %s 失败: %v", e.FollowUpID, e.Err)
}

func (e *CascadeError) Unwrap() error { return e.Err }

// MutationController 变更控制器：只有远程存储确认成功后才修改本地状态。
// 失败时本地状态不变，错误记录到工作区并返回给调用方，进行中标记被清除以便重试。
type MutationController struct {
	ws     *Workspace
	store  repository.Store
	audit  AuditRecorder
	events ChangePublisher

	now   func() time.Time
	newID func() string
}

// NewMutationController 创建变更控制器
func NewMutationController(ws *Workspace, audit AuditRecorder, events ChangePublisher) *MutationController {
	if audit == nil {
		audit = NopAuditRecorder{}
	}
	if events == nil {
		events = NopPublisher{}
	}
	return &MutationController{
		ws:     ws,
		store:  ws.Store(),
		audit:  audit,
		events: events,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

type mutation struct {
	kind    models.EntityKind
	action  models.MutationAction
	id      models.ID
	payload interface{}
}

// hold 标记实体进行中，返回清除标记的函数。
// 读取当前实体再整体写回的变更必须在持有标记后读取。
func (m *MutationController) hold(kind models.EntityKind, id models.ID) (func(), error) {
	if err := m.ws.pending.Begin(kind, id); err != nil {
		return nil, err
	}
	return func() { m.ws.pending.End(kind, id) }, nil
}

// execute 持有进行中标记并执行一次远程变更，fn 返回最终实体ID
func (m *MutationController) execute(ctx context.Context, mu mutation, fn func(ctx context.Context) (models.ID, error)) error {
	release, err := m.hold(mu.kind, mu.id)
	if err != nil {
		return err
	}
	defer release()
	return m.perform(ctx, mu, fn)
}

// perform 执行远程变更并记录审计、指标与事件；调用方已持有进行中标记
func (m *MutationController) perform(ctx context.Context, mu mutation, fn func(ctx context.Context) (models.ID, error)) error {
	start := m.now()
	entityID, err := fn(ctx)
	if entityID.IsZero() {
		entityID = mu.id
	}

	entry := models.OperationLog{
		SessionID:     m.ws.SessionID(),
		Kind:          mu.kind,
		Action:        mu.action,
		EntityID:      entityID.String(),
		RequestBody:   mu.payload,
		Success:       err == nil,
		OperationTime: start,
		ResponseTime:  m.now().Sub(start).Milliseconds(),
	}
	if meta, ok := utils.RequestMetaFrom(ctx); ok {
		entry.IPAddress = meta.IPAddress
		entry.UserAgent = meta.UserAgent
	}
	var terr *repository.TransportError
	if errors.As(err, &terr) {
		entry.Method = terr.Method
		entry.Path = terr.Path
		entry.StatusCode = terr.StatusCode
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	m.audit.Record(ctx, entry)

	if err != nil {
		monitoring.MutationsTotal.WithLabelValues(string(mu.kind), string(mu.action), "failure").Inc()
		m.ws.setError(err.Error())
		ctxInfo := map[string]interface{}{
			"session":  m.ws.SessionID(),
			"kind":     mu.kind,
			"action":   mu.action,
			"entityId": entityID,
		}
		utils.LogError(err, ctxInfo, "变更失败")
		utils.CaptureError(err, ctxInfo)
		return err
	}

	monitoring.MutationsTotal.WithLabelValues(string(mu.kind), string(mu.action), "success").Inc()
	utils.LogInfo(map[string]interface{}{
		"session":  m.ws.SessionID(),
		"kind":     mu.kind,
		"action":   mu.action,
		"entityId": entityID,
	}, "变更已确认")
	event := models.ChangeEvent{
		Kind:       mu.kind,
		Action:     mu.action,
		EntityID:   entityID.String(),
		SessionID:  m.ws.SessionID(),
		OccurredAt: m.now(),
	}
	if perr := m.events.Publish(ctx, event); perr != nil {
		utils.Logger.Warn().Err(perr).Str("kind", string(mu.kind)).Str("entityId", entityID.String()).Msg("发布变更事件失败")
	}
	return nil
}

func (m *MutationController) findClient(id models.ID) (models.Client, error) {
	var (
		c  models.Client
		ok bool
	)
	m.ws.update(func() { c, ok = m.ws.clients.Find(id) })
	if !ok {
		return c, utils.CreateNotFoundError("客户")
	}
	return c, nil
}

func (m *MutationController) findOpportunity(id models.ID) (models.Opportunity, error) {
	var (
		o  models.Opportunity
		ok bool
	)
	m.ws.update(func() { o, ok = m.ws.opportunities.Find(id) })
	if !ok {
		return o, utils.CreateNotFoundError("商机")
	}
	return o, nil
}

func (m *MutationController) findFollowUp(id models.ID) (models.FollowUp, error) {
	var (
		f  models.FollowUp
		ok bool
	)
	m.ws.update(func() { f, ok = m.ws.followUps.Find(id) })
	if !ok {
		return f, utils.CreateNotFoundError("跟进记录")
	}
	return f, nil
}

// ---- 客户 ----

// CreateClient 新建客户
func (m *MutationController) CreateClient(ctx context.Context, in models.Client) (models.Client, error) {
	if err := utils.ValidateStruct(in); err != nil {
		return in, err
	}
	var created models.Client
	err := m.execute(ctx, mutation{kind: models.EntityKindClient, action: models.ActionCreate, id: in.ID, payload: in},
		func(ctx context.Context) (models.ID, error) {
			c, err := repository.CreateAs(ctx, m.store, models.ClientsCollection, in)
			if err != nil {
				return "", err
			}
			created = c
			m.ws.update(func() { m.ws.clients.Append(c) })
			return c.ID, nil
		})
	return created, err
}

// UpdateClient 整体替换客户；未提交商机列表时沿用已有列表
func (m *MutationController) UpdateClient(ctx context.Context, id models.ID, in models.Client) (models.Client, error) {
	release, err := m.hold(models.EntityKindClient, id)
	if err != nil {
		return in, err
	}
	defer release()

	current, err := m.findClient(id)
	if err != nil {
		return in, err
	}
	in.ID = id
	if in.Opportunities == nil {
		in.Opportunities = current.Opportunities
	}
	if err := utils.ValidateStruct(in); err != nil {
		return in, err
	}
	return m.replaceClient(ctx, in)
}

// SetClientActive 切换客户启用状态
func (m *MutationController) SetClientActive(ctx context.Context, id models.ID, active bool) (models.Client, error) {
	release, err := m.hold(models.EntityKindClient, id)
	if err != nil {
		return models.Client{}, err
	}
	defer release()

	current, err := m.findClient(id)
	if err != nil {
		return current, err
	}
	current.Active = active
	return m.replaceClient(ctx, current)
}

// replaceClient PUT 整个客户；调用方已持有该客户的进行中标记
func (m *MutationController) replaceClient(ctx context.Context, in models.Client) (models.Client, error) {
	var updated models.Client
	err := m.perform(ctx, mutation{kind: models.EntityKindClient, action: models.ActionUpdate, id: in.ID, payload: in},
		func(ctx context.Context) (models.ID, error) {
			c, err := repository.ReplaceAs(ctx, m.store, models.ClientsCollection, in.ID, in)
			if err != nil {
				return "", err
			}
			c.ID = in.ID
			updated = c
			m.ws.update(func() { m.ws.clients.ReplaceByID(in.ID, c) })
			return in.ID, nil
		})
	return updated, err
}

// DeleteClient 删除客户，其商机保留（变为无归属）
func (m *MutationController) DeleteClient(ctx context.Context, id models.ID) error {
	return m.remove(ctx, models.EntityKindClient, id,
		func() error { _, err := m.findClient(id); return err },
		func() { m.ws.clients.RemoveByID(id) })
}

// ---- 商机 ----

// CreateOpportunity 新建商机，状态默认 Apertura；成功后写回客户的商机列表
func (m *MutationController) CreateOpportunity(ctx context.Context, in models.Opportunity) (models.Opportunity, error) {
	in.Normalize()
	if in.Status == "" {
		in.Status = models.StatusApertura
	}

	owner, err := m.resolveOwner(in)
	if err != nil {
		return in, err
	}
	in.ClientID = owner.ID
	in.Client = owner.Name

	if !models.CanTransition("", in.Status) {
		return in, utils.NewValidationError("新商机只能从 Apertura 开始", map[string]string{"status": "新商机只能从 Apertura 开始"})
	}
	if err := utils.ValidateStruct(in); err != nil {
		return in, err
	}

	var created models.Opportunity
	err = m.execute(ctx, mutation{kind: models.EntityKindOpportunity, action: models.ActionCreate, id: in.ID, payload: in},
		func(ctx context.Context) (models.ID, error) {
			o, err := repository.CreateAs(ctx, m.store, models.OpportunitiesCollection, in)
			if err != nil {
				return "", err
			}
			o.Normalize()
			created = o
			m.ws.update(func() { m.ws.opportunities.Append(o) })
			return o.ID, nil
		})
	if err != nil {
		return in, err
	}

	if created.ID.IsZero() || owner.Opportunities.Contains(created.ID) {
		return created, nil
	}
	if err := m.linkOpportunity(ctx, owner.ID, created); err != nil {
		return created, &LinkError{ClientID: owner.ID, Err: err}
	}
	return created, nil
}

// resolveOwner 确定新商机的归属客户：优先 clientId，其次按客户名称精确匹配
func (m *MutationController) resolveOwner(in models.Opportunity) (models.Client, error) {
	if !in.ClientID.IsZero() {
		c, err := m.findClient(in.ClientID)
		if err != nil {
			return c, utils.NewValidationError("", map[string]string{"clientId": "客户不存在"})
		}
		return c, nil
	}
	name := strings.TrimSpace(in.Client)
	if name != "" {
		for _, c := range m.ws.Clients() {
			if strings.EqualFold(c.Name, name) {
				return c, nil
			}
		}
	}
	return models.Client{}, utils.NewValidationError("", map[string]string{"clientId": "必填"})
}

// linkOpportunity 将商机ID追加到客户的商机列表，沿用列表已有的形式（纯ID或存根）
func (m *MutationController) linkOpportunity(ctx context.Context, clientID models.ID, o models.Opportunity) error {
	release, err := m.hold(models.EntityKindClient, clientID)
	if err != nil {
		return err
	}
	defer release()

	c, err := m.findClient(clientID)
	if err != nil {
		return err
	}
	if c.Opportunities.Contains(o.ID) {
		return nil
	}
	link := models.OpportunityLink{ID: o.ID}
	if len(c.Opportunities) > 0 && c.Opportunities[0].Stub {
		link = models.OpportunityLink{ID: o.ID, Name: o.BusinessName, Stub: true}
	}
	c.Opportunities = append(c.Opportunities, link)
	_, err = m.replaceClient(ctx, c)
	return err
}

// UpdateOpportunity 整体替换商机；状态只能保持或推进到下一阶段
func (m *MutationController) UpdateOpportunity(ctx context.Context, id models.ID, in models.Opportunity) (models.Opportunity, error) {
	release, err := m.hold(models.EntityKindOpportunity, id)
	if err != nil {
		return in, err
	}
	defer release()

	current, err := m.findOpportunity(id)
	if err != nil {
		return in, err
	}
	in.ID = id
	in.Normalize()
	if in.Status == "" {
		in.Status = current.Status
	}
	if in.ClientID.IsZero() {
		in.ClientID = current.ClientID
	}
	if in.Client == "" {
		in.Client = current.Client
	}
	if !models.CanTransition(current.Status, in.Status) {
		msg := fmt.Sprintf("状态只能保持为 %s 或推进到下一阶段", current.Status)
		if next, ok := current.Status.Next(); ok {
			msg = fmt.Sprintf("状态只能保持为 %s 或推进到 %s", current.Status, next)
		}
		return in, utils.NewValidationError(msg, map[string]string{"status": msg})
	}
	if err := utils.ValidateStruct(in); err != nil {
		return in, err
	}

	var updated models.Opportunity
	err = m.perform(ctx, mutation{kind: models.EntityKindOpportunity, action: models.ActionUpdate, id: id, payload: in},
		func(ctx context.Context) (models.ID, error) {
			o, err := repository.ReplaceAs(ctx, m.store, models.OpportunitiesCollection, id, in)
			if err != nil {
				return "", err
			}
			o.ID = id
			o.Normalize()
			updated = o
			m.ws.update(func() { m.ws.opportunities.ReplaceByID(id, o) })
			return id, nil
		})
	return updated, err
}

// DeleteOpportunity 删除商机；Cascade 时在商机删除成功后再删除其跟进记录
// 级联删除失败时返回 *CascadeError，此时商机已删除
func (m *MutationController) DeleteOpportunity(ctx context.Context, id models.ID, opts DeleteOptions) error {
	err := m.remove(ctx, models.EntityKindOpportunity, id,
		func() error { _, err := m.findOpportunity(id); return err },
		func() { m.ws.opportunities.RemoveByID(id) })
	if err != nil || !opts.Cascade {
		return err
	}

	f, ok := m.ws.ViewModel().FollowUpFor(id)
	if !ok || f.ID.IsZero() {
		return nil
	}
	if err := m.DeleteFollowUp(ctx, f.ID); err != nil {
		return &CascadeError{FollowUpID: f.ID, Err: err}
	}
	return nil
}

// ---- 跟进 ----

// AddActivity 为商机新增跟进活动：已有跟进记录时整体 PUT，否则新建跟进记录
func (m *MutationController) AddActivity(ctx context.Context, opportunityID models.ID, in models.FollowUpActivity) (models.FollowUp, error) {
	if _, err := m.findOpportunity(opportunityID); err != nil {
		return models.FollowUp{}, err
	}
	in.ContactDate = models.NormalizeISODate(in.ContactDate)
	if in.ID.IsZero() {
		in.ID = models.ID(m.newID())
	}
	if err := utils.ValidateStruct(in); err != nil {
		return models.FollowUp{}, err
	}

	if existing, ok := m.ws.ViewModel().FollowUpFor(opportunityID); ok {
		return m.appendActivity(ctx, existing.ID, in)
	}

	release, err := m.hold(models.EntityKindFollowUp, "")
	if err != nil {
		return models.FollowUp{}, err
	}
	defer release()
	// 持有标记后再确认一次，另一个请求可能刚刚建好跟进记录
	if existing, ok := m.ws.ViewModel().FollowUpFor(opportunityID); ok {
		return m.appendActivity(ctx, existing.ID, in)
	}

	record := models.FollowUp{
		OpportunityID:      opportunityID,
		FollowUpActivities: []models.FollowUpActivity{in},
	}
	var created models.FollowUp
	err = m.perform(ctx, mutation{kind: models.EntityKindFollowUp, action: models.ActionCreate, payload: record},
		func(ctx context.Context) (models.ID, error) {
			f, err := repository.CreateAs(ctx, m.store, models.FollowUpCollection, record)
			if err != nil {
				return "", err
			}
			created = f
			m.ws.update(func() { m.ws.followUps.Append(f) })
			return f.ID, nil
		})
	return created, err
}

func (m *MutationController) appendActivity(ctx context.Context, followID models.ID, in models.FollowUpActivity) (models.FollowUp, error) {
	return m.editFollowUp(ctx, followID, func(f *models.FollowUp) error {
		f.FollowUpActivities = append(f.FollowUpActivities, in)
		return nil
	})
}

// UpdateActivity 替换跟进记录中的一条活动
func (m *MutationController) UpdateActivity(ctx context.Context, followID, activityID models.ID, in models.FollowUpActivity) (models.FollowUp, error) {
	in.ID = activityID
	in.ContactDate = models.NormalizeISODate(in.ContactDate)
	return m.editFollowUp(ctx, followID, func(f *models.FollowUp) error {
		_, idx, ok := f.FindActivity(activityID)
		if !ok {
			return utils.CreateNotFoundError("跟进活动")
		}
		if err := utils.ValidateStruct(in); err != nil {
			return err
		}
		f.FollowUpActivities[idx] = in
		return nil
	})
}

// DeleteActivity 从跟进记录中移除一条活动
func (m *MutationController) DeleteActivity(ctx context.Context, followID, activityID models.ID) (models.FollowUp, error) {
	return m.editFollowUp(ctx, followID, func(f *models.FollowUp) error {
		_, idx, ok := f.FindActivity(activityID)
		if !ok {
			return utils.CreateNotFoundError("跟进活动")
		}
		f.FollowUpActivities = append(f.FollowUpActivities[:idx:idx], f.FollowUpActivities[idx+1:]...)
		return nil
	})
}

// DeleteFollowUp 删除整条跟进记录
func (m *MutationController) DeleteFollowUp(ctx context.Context, id models.ID) error {
	return m.remove(ctx, models.EntityKindFollowUp, id,
		func() error { _, err := m.findFollowUp(id); return err },
		func() { m.ws.followUps.RemoveByID(id) })
}

// editFollowUp 持有跟进记录的进行中标记，读取最新记录，修改后整体 PUT
func (m *MutationController) editFollowUp(ctx context.Context, followID models.ID, edit func(f *models.FollowUp) error) (models.FollowUp, error) {
	release, err := m.hold(models.EntityKindFollowUp, followID)
	if err != nil {
		return models.FollowUp{}, err
	}
	defer release()

	f, err := m.findFollowUp(followID)
	if err != nil {
		return f, err
	}
	if err := edit(&f); err != nil {
		return f, err
	}
	if f.FollowUpActivities == nil {
		f.FollowUpActivities = []models.FollowUpActivity{}
	}
	var updated models.FollowUp
	err = m.perform(ctx, mutation{kind: models.EntityKindFollowUp, action: models.ActionUpdate, id: f.ID, payload: f},
		func(ctx context.Context) (models.ID, error) {
			out, err := repository.ReplaceAs(ctx, m.store, models.FollowUpCollection, f.ID, f)
			if err != nil {
				return "", err
			}
			out.ID = f.ID
			updated = out
			m.ws.update(func() { m.ws.followUps.ReplaceByID(f.ID, out) })
			return f.ID, nil
		})
	return updated, err
}

// remove 持有标记后确认实体存在，远程删除成功后移除本地数据并修正分页
func (m *MutationController) remove(ctx context.Context, kind models.EntityKind, id models.ID, exists func() error, drop func()) error {
	release, err := m.hold(kind, id)
	if err != nil {
		return err
	}
	defer release()

	if err := exists(); err != nil {
		return err
	}
	return m.perform(ctx, mutation{kind: kind, action: models.ActionDelete, id: id},
		func(ctx context.Context) (models.ID, error) {
			if err := m.store.Remove(ctx, kind.Collection(), id); err != nil {
				return "", err
			}
			m.ws.update(func() {
				drop()
				m.ws.clampLocked(kind)
			})
			return id, nil
		})
}
