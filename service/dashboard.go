package service

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/BerniceZTT/crm_web/models"
)

// BuildKeyMetrics 关键指标：客户数、开启状态商机数、转化率(已执行/全部)、预计收入合计
func BuildKeyMetrics(clients []models.Client, opps []models.Opportunity) models.KeyMetrics {
	m := models.KeyMetrics{TotalClients: len(clients)}
	executed := 0
	for _, o := range opps {
		switch o.Status {
		case models.StatusApertura:
			m.OpenOpportunities++
		case models.StatusEjecutada:
			executed++
		}
		m.ProjectedRevenue += o.EstimatedValue
	}
	if len(opps) > 0 {
		m.ConversionRate = round2(float64(executed) / float64(len(opps)) * 100)
	}
	m.ProjectedDisplay = FormatCOP(m.ProjectedRevenue)
	return m
}

// ClientValueRows 每个客户的预计金额与已执行金额
func ClientValueRows(vm *ViewModel) []models.ClientValueRow {
	rows := make([]models.ClientValueRow, 0, len(vm.Clients()))
	for _, c := range vm.Clients() {
		row := models.ClientValueRow{ClientID: c.ID, Name: c.Name}
		for _, o := range vm.OpportunitiesForClient(c.ID) {
			row.Estimated += o.EstimatedValue
			if o.Status == models.StatusEjecutada {
				row.Executed += o.EstimatedValue
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// StatusBreakdown 按状态统计，推进序列在前，其余状态按首次出现顺序
func StatusBreakdown(opps []models.Opportunity) []models.ChartSlice {
	order := make([]string, 0, len(models.StatusProgression))
	for _, s := range models.StatusProgression {
		order = append(order, string(s))
	}
	return breakdown(opps, order, func(o models.Opportunity) string {
		if o.Status == "" {
			return "Sin estado"
		}
		return string(o.Status)
	})
}

// BusinessLineBreakdown 按业务线统计
func BusinessLineBreakdown(opps []models.Opportunity) []models.ChartSlice {
	order := make([]string, 0, len(models.BusinessLines))
	for _, bl := range models.BusinessLines {
		order = append(order, string(bl))
	}
	return breakdown(opps, order, func(o models.Opportunity) string {
		if bl, ok := models.ParseBusinessLine(string(o.BusinessLine)); ok {
			return string(bl)
		}
		return string(o.BusinessLine)
	})
}

// breakdown 计数并计算占比；预设分类为 0 时不输出
func breakdown(opps []models.Opportunity, order []string, key func(models.Opportunity) string) []models.ChartSlice {
	counts := make(map[string]int)
	for _, o := range opps {
		k := key(o)
		if _, seen := counts[k]; !seen {
			found := false
			for _, name := range order {
				if name == k {
					found = true
					break
				}
			}
			if !found {
				order = append(order, k)
			}
		}
		counts[k]++
	}

	out := []models.ChartSlice{}
	for _, name := range order {
		n := counts[name]
		if n == 0 {
			continue
		}
		out = append(out, models.ChartSlice{
			Name:    name,
			Value:   n,
			Percent: round2(float64(n) / float64(len(opps)) * 100),
		})
	}
	return out
}

// BuildDashboard 生成看板快照
func BuildDashboard(vm *ViewModel, now time.Time) models.DashboardSnapshot {
	opps := vm.Opportunities()
	return models.DashboardSnapshot{
		Metrics:       BuildKeyMetrics(vm.Clients(), opps),
		ClientValues:  ClientValueRows(vm),
		Statuses:      StatusBreakdown(opps),
		BusinessLines: BusinessLineBreakdown(opps),
		GeneratedAt:   now,
	}
}

// RefreshDashboard 重新拉取客户与商机并生成快照
func RefreshDashboard(ctx context.Context, ws *Workspace) (models.DashboardSnapshot, error) {
	if err := ws.Mount(ctx, models.EntityKindClient, models.EntityKindOpportunity); err != nil {
		return models.DashboardSnapshot{}, err
	}
	return BuildDashboard(ws.ViewModel(), time.Now()), nil
}

// FormatCOP 哥伦比亚比索格式，千分位为点，不保留小数，例如 $ 1.234.567
func FormatCOP(value float64) string {
	neg := value < 0
	n := int64(math.Round(math.Abs(value)))
	digits := strconv.FormatInt(n, 10)

	var b strings.Builder
	if neg {
		b.WriteString("-")
	}
	b.WriteString("$ ")
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte('.')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
