package models

import (
	"strings"
)

// OpportunityStatus 商机状态
type OpportunityStatus string

// 商机推进阶段，按顺序推进
const (
	StatusApertura      OpportunityStatus = "Apertura"        // 开启
	StatusEnEstudio     OpportunityStatus = "En Estudio"      // 研究中
	StatusOrdenDeCompra OpportunityStatus = "Orden de Compra" // 采购订单
	StatusEjecutada     OpportunityStatus = "Ejecutada"       // 已执行
)

// 部分页面使用的旧状态词汇，不属于推进序列
const (
	LegacyStatusGanada    OpportunityStatus = "GANADA"
	LegacyStatusPerdida   OpportunityStatus = "PERDIDA"
	LegacyStatusEnProceso OpportunityStatus = "EN PROCESO"
	LegacyStatusCancelada OpportunityStatus = "CANCELADA"
)

// StatusProgression 推进序列
var StatusProgression = []OpportunityStatus{
	StatusApertura,
	StatusEnEstudio,
	StatusOrdenDeCompra,
	StatusEjecutada,
}

var legacyStatuses = map[OpportunityStatus]bool{
	LegacyStatusGanada:    true,
	LegacyStatusPerdida:   true,
	LegacyStatusEnProceso: true,
	LegacyStatusCancelada: true,
}

// Stage 返回在推进序列中的位置，不在序列中返回 -1
func (s OpportunityStatus) Stage() int {
	for i, st := range StatusProgression {
		if st == s {
			return i
		}
	}
	return -1
}

// IsLegacy 是否为旧状态词汇
func (s OpportunityStatus) IsLegacy() bool {
	return legacyStatuses[OpportunityStatus(strings.ToUpper(string(s)))]
}

// IsKnown 是否为已知状态
func (s OpportunityStatus) IsKnown() bool {
	return s.Stage() >= 0 || s.IsLegacy()
}

// Next 下一阶段；已是最后阶段或不在序列中时返回 false
func (s OpportunityStatus) Next() (OpportunityStatus, bool) {
	i := s.Stage()
	if i < 0 || i+1 >= len(StatusProgression) {
		return "", false
	}
	return StatusProgression[i+1], true
}

// CanTransition 状态流转守卫：只允许保持当前阶段或推进到紧邻的下一阶段。
// 旧状态词汇不在序列内，只能保持不变或重新进入 Apertura。
func CanTransition(from, to OpportunityStatus) bool {
	if from == to {
		return true
	}
	if from == "" {
		return to == StatusApertura
	}
	if from.Stage() < 0 {
		return to == StatusApertura
	}
	next, ok := from.Next()
	return ok && next == to
}

// BusinessLine 业务线
type BusinessLine string

const (
	BusinessLineOutsourcing BusinessLine = "outsourcing recursos"
	BusinessLineWeb         BusinessLine = "desarrollo web"
	BusinessLineMobile      BusinessLine = "desarrollo mobile"
	BusinessLineConsulting  BusinessLine = "consultoría TI"
)

// BusinessLines 全部业务线
var BusinessLines = []BusinessLine{
	BusinessLineOutsourcing,
	BusinessLineWeb,
	BusinessLineMobile,
	BusinessLineConsulting,
}

// ParseBusinessLine 解析业务线，兼容连字符写法与大小写差异，返回后端使用的规范形式
func ParseBusinessLine(s string) (BusinessLine, bool) {
	key := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", " ")))
	for _, bl := range BusinessLines {
		if strings.ToLower(string(bl)) == key {
			return bl, true
		}
	}
	return "", false
}

// Opportunity 商机
type Opportunity struct {
	ID             ID                `json:"id,omitempty" bson:"id,omitempty"`
	ClientID       ID                `json:"clientId,omitempty" bson:"clientId,omitempty"`
	Client         string            `json:"client,omitempty" bson:"client,omitempty"`
	BusinessName   string            `json:"businessName" bson:"businessName" validate:"required"`
	BusinessLine   BusinessLine      `json:"businessLine" bson:"businessLine" validate:"required,businessline"`
	Description    string            `json:"description" bson:"description"`
	EstimatedValue float64           `json:"estimatedValue" bson:"estimatedValue" validate:"gte=0"`
	EstimatedDate  string            `json:"estimatedDate" bson:"estimatedDate" validate:"omitempty,isodate"`
	Status         OpportunityStatus `json:"status" bson:"status" validate:"omitempty,opportunitystatus"`
}

// Normalize 规范化日期与业务线写法
func (o *Opportunity) Normalize() {
	o.EstimatedDate = NormalizeISODate(o.EstimatedDate)
	if bl, ok := ParseBusinessLine(string(o.BusinessLine)); ok {
		o.BusinessLine = bl
	}
}

// OpportunityID 返回商机ID
func OpportunityID(o Opportunity) ID { return o.ID }
