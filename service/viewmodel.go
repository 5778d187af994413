package service

import (
	"github.com/BerniceZTT/crm_web/models"
	"github.com/BerniceZTT/crm_web/utils"
)

// ViewModel 三个集合的关联视图，构造时一次性确定每个商机的归属客户。
//
// 归属规则（按优先级）：
//  1. 客户 opportunities 列表（纯ID或存根ID）引用了该商机，且商机存在时，以集合顺序中第一个引用它的客户为准；
//  2. 否则使用商机上的 clientId，前提是该客户存在；
//  3. 否则商机无归属。client 名称字段只用于展示，不参与关联。
type ViewModel struct {
	clients       []models.Client
	opportunities []models.Opportunity
	followUps     []models.FollowUp

	clientIndex map[models.ID]int
	oppIndex    map[models.ID]int
	owners      []models.ID // 与 opportunities 下标对应
	followIndex map[models.ID]int
}

// NewViewModel 构建关联视图
func NewViewModel(clients []models.Client, opportunities []models.Opportunity, followUps []models.FollowUp) *ViewModel {
	vm := &ViewModel{
		clients:       clients,
		opportunities: opportunities,
		followUps:     followUps,
		clientIndex:   make(map[models.ID]int, len(clients)),
		oppIndex:      make(map[models.ID]int, len(opportunities)),
		owners:        make([]models.ID, len(opportunities)),
		followIndex:   make(map[models.ID]int, len(followUps)),
	}

	for i, c := range clients {
		if _, dup := vm.clientIndex[c.ID]; !dup && !c.ID.IsZero() {
			vm.clientIndex[c.ID] = i
		}
	}
	for i, o := range opportunities {
		if _, dup := vm.oppIndex[o.ID]; !dup && !o.ID.IsZero() {
			vm.oppIndex[o.ID] = i
		}
	}
	for i, f := range followUps {
		if _, dup := vm.followIndex[f.OpportunityID]; !dup && !f.OpportunityID.IsZero() {
			vm.followIndex[f.OpportunityID] = i
		}
	}

	// ID列表关联优先
	for _, c := range clients {
		if c.ID.IsZero() {
			continue
		}
		for _, oppID := range c.Opportunities.IDs() {
			idx, ok := vm.oppIndex[oppID]
			if !ok {
				utils.LogInconsistency(string(models.EntityKindClient), c.ID.String(), "opportunity "+oppID.String(), nil)
				continue
			}
			if vm.owners[idx].IsZero() {
				vm.owners[idx] = c.ID
			}
		}
	}
	// clientId 反向引用兜底
	for i, o := range opportunities {
		if !vm.owners[i].IsZero() || o.ClientID.IsZero() {
			continue
		}
		if _, ok := vm.clientIndex[o.ClientID]; ok {
			vm.owners[i] = o.ClientID
		}
	}
	return vm
}

// Client 按ID查找客户
func (vm *ViewModel) Client(id models.ID) (models.Client, bool) {
	idx, ok := vm.clientIndex[id]
	if !ok {
		return models.Client{}, false
	}
	return vm.clients[idx].Clone(), true
}

// Opportunity 按ID查找商机
func (vm *ViewModel) Opportunity(id models.ID) (models.Opportunity, bool) {
	idx, ok := vm.oppIndex[id]
	if !ok {
		return models.Opportunity{}, false
	}
	return vm.opportunities[idx], true
}

// OpportunitiesForClient 客户的商机，按商机集合顺序，无重复；悬空引用被忽略
func (vm *ViewModel) OpportunitiesForClient(clientID models.ID) []models.Opportunity {
	out := []models.Opportunity{}
	if clientID.IsZero() {
		return out
	}
	seen := make(map[models.ID]bool)
	for i, o := range vm.opportunities {
		if vm.owners[i] != clientID {
			continue
		}
		if !o.ID.IsZero() {
			if seen[o.ID] {
				continue
			}
			seen[o.ID] = true
		}
		out = append(out, o)
	}
	return out
}

// OwnerOf 商机的归属客户
func (vm *ViewModel) OwnerOf(opportunityID models.ID) (models.Client, bool) {
	idx, ok := vm.oppIndex[opportunityID]
	if !ok || vm.owners[idx].IsZero() {
		return models.Client{}, false
	}
	return vm.Client(vm.owners[idx])
}

// FollowUpFor 商机对应的跟进记录（第一条匹配）
func (vm *ViewModel) FollowUpFor(opportunityID models.ID) (models.FollowUp, bool) {
	idx, ok := vm.followIndex[opportunityID]
	if !ok {
		return models.FollowUp{}, false
	}
	return vm.followUps[idx].Clone(), true
}

// ActivitiesForOpportunity 商机的跟进活动，没有跟进记录时返回空列表
func (vm *ViewModel) ActivitiesForOpportunity(opportunityID models.ID) []models.FollowUpActivity {
	f, ok := vm.FollowUpFor(opportunityID)
	if !ok || len(f.FollowUpActivities) == 0 {
		return []models.FollowUpActivity{}
	}
	return f.FollowUpActivities
}

// ContactsForClient 客户联系人列表
func (vm *ViewModel) ContactsForClient(clientID models.ID) []models.Contact {
	c, ok := vm.Client(clientID)
	if !ok || len(c.Contacts) == 0 {
		return []models.Contact{}
	}
	return c.Contacts
}

// ClientDetail 客户详情视图
func (vm *ViewModel) ClientDetail(clientID models.ID) (models.ClientDetailView, bool) {
	c, ok := vm.Client(clientID)
	if !ok {
		return models.ClientDetailView{}, false
	}
	return models.ClientDetailView{
		Client:        c,
		Opportunities: vm.OpportunitiesForClient(clientID),
		Contacts:      vm.ContactsForClient(clientID),
	}, true
}

// OpportunityDetail 商机详情视图，联系人来自归属客户，用于新建跟进时选择
func (vm *ViewModel) OpportunityDetail(opportunityID models.ID) (models.OpportunityDetailView, bool) {
	o, ok := vm.Opportunity(opportunityID)
	if !ok {
		return models.OpportunityDetailView{}, false
	}
	view := models.OpportunityDetailView{
		Opportunity: o,
		Activities:  vm.ActivitiesForOpportunity(opportunityID),
		Contacts:    []models.Contact{},
	}
	if owner, ok := vm.OwnerOf(opportunityID); ok {
		view.Client = &owner
		view.Contacts = vm.ContactsForClient(owner.ID)
	}
	if f, ok := vm.FollowUpFor(opportunityID); ok {
		view.FollowUpID = f.ID
	}
	return view, true
}

// OpportunityRows 商机列表行，客户名取归属客户，无归属时使用商机自带的 client 名称
func (vm *ViewModel) OpportunityRows() []models.OpportunityRow {
	rows := make([]models.OpportunityRow, 0, len(vm.opportunities))
	for i, o := range vm.opportunities {
		name := o.Client
		if idx, ok := vm.clientIndex[vm.owners[i]]; ok {
			name = vm.clients[idx].Name
		}
		rows = append(rows, models.OpportunityRow{
			Opportunity: o,
			ClientName:  name,
			ValueLabel:  FormatCOP(o.EstimatedValue),
		})
	}
	return rows
}

// FollowUpRows 将跟进记录按活动展开为列表行
func (vm *ViewModel) FollowUpRows(followUps []models.FollowUp) []models.FollowUpRow {
	rows := []models.FollowUpRow{}
	for _, f := range followUps {
		name := ""
		if o, ok := vm.Opportunity(f.OpportunityID); ok {
			name = o.BusinessName
		}
		for _, a := range f.FollowUpActivities {
			rows = append(rows, models.FollowUpRow{
				FollowUpID:      f.ID,
				OpportunityID:   f.OpportunityID,
				OpportunityName: name,
				Activity:        a,
			})
		}
	}
	return rows
}

// Clients 客户快照
func (vm *ViewModel) Clients() []models.Client { return vm.clients }

// Opportunities 商机快照
func (vm *ViewModel) Opportunities() []models.Opportunity { return vm.opportunities }

// FollowUps 跟进记录快照
func (vm *ViewModel) FollowUps() []models.FollowUp { return vm.followUps }
