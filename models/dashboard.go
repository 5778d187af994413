package models

import "time"

// KeyMetrics 关键指标
type KeyMetrics struct {
	TotalClients      int     `json:"totalClients"`      // 客户总数
	OpenOpportunities int     `json:"openOpportunities"` // 开启状态商机数
	ConversionRate    float64 `json:"conversionRate"`    // 转化率(%)，保留两位小数
	ProjectedRevenue  float64 `json:"projectedRevenue"`  // 预计收入
	ProjectedDisplay  string  `json:"projectedDisplay"`  // 预计收入(COP格式)
}

// ClientValueRow 客户预计金额与已执行金额对比
type ClientValueRow struct {
	ClientID  ID      `json:"clientId"`
	Name      string  `json:"name"`
	Estimated float64 `json:"estimated"`
	Executed  float64 `json:"executed"`
}

// ChartSlice 饼图数据项
type ChartSlice struct {
	Name    string  `json:"name"`
	Value   int     `json:"value"`
	Percent float64 `json:"percent"`
}

// DashboardSnapshot 数据看板快照
type DashboardSnapshot struct {
	Metrics       KeyMetrics       `json:"metrics"`
	ClientValues  []ClientValueRow `json:"clientValues"`
	Statuses      []ChartSlice     `json:"statuses"`
	BusinessLines []ChartSlice     `json:"businessLines"`
	GeneratedAt   time.Time        `json:"generatedAt"`
}
