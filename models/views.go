package models

// 视图模型：由三个集合在内存中关联得到，供前端直接渲染

// ClientDetailView 客户详情
type ClientDetailView struct {
	Client        Client        `json:"client"`
	Opportunities []Opportunity `json:"opportunities"`
	Contacts      []Contact     `json:"contacts"`
}

// OpportunityDetailView 商机详情
type OpportunityDetailView struct {
	Opportunity Opportunity        `json:"opportunity"`
	Client      *Client            `json:"client,omitempty"`
	FollowUpID  ID                 `json:"followUpId,omitempty"`
	Activities  []FollowUpActivity `json:"activities"`
	Contacts    []Contact          `json:"contacts"`
}

// OpportunityRow 商机列表行
type OpportunityRow struct {
	Opportunity
	ClientName string `json:"clientName"`
	ValueLabel string `json:"valueLabel"`
}

// FollowUpRow 跟进列表行（每个活动一行）
type FollowUpRow struct {
	FollowUpID      ID               `json:"followUpId"`
	OpportunityID   ID               `json:"opportunityId"`
	OpportunityName string           `json:"opportunityName"`
	Activity        FollowUpActivity `json:"activity"`
}

// PageView 分页视图
type PageView[T any] struct {
	Items     []T    `json:"items"`
	PageIndex int    `json:"pageIndex"`
	PageSize  int    `json:"pageSize"`
	PageCount int    `json:"pageCount"`
	Total     int    `json:"total"`
	Loading   bool   `json:"loading"`
	Error     string `json:"error,omitempty"`
}
