package service

// DefaultPageSize 默认每页条数
const DefaultPageSize = 8

// PageCount 总页数，空集合为 0
func PageCount(total, pageSize int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// ClampPageIndex 将页码限制在 [0, pageCount-1]，没有数据时为 0
func ClampPageIndex(index, pageCount int) int {
	if pageCount <= 0 || index < 0 {
		return 0
	}
	if index > pageCount-1 {
		return pageCount - 1
	}
	return index
}

// Page 取第 pageIndex 页（从 0 开始），越界返回空切片
func Page[T any](items []T, pageIndex, pageSize int) []T {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	start := pageIndex * pageSize
	if pageIndex < 0 || start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	out := make([]T, end-start)
	copy(out, items[start:end])
	return out
}

// Paginator 集合的分页游标
type Paginator struct {
	Index int `json:"pageIndex"`
	Size  int `json:"pageSize"`
}

// NewPaginator 创建分页游标
func NewPaginator(size int) Paginator {
	if size <= 0 {
		size = DefaultPageSize
	}
	return Paginator{Size: size}
}

// Clamp 根据总数修正当前页，删除后当前页为空时回退到最后一个非空页
func (p *Paginator) Clamp(total int) {
	p.Index = ClampPageIndex(p.Index, PageCount(total, p.Size))
}

// Goto 跳转页码并修正
func (p *Paginator) Goto(index, total int) {
	p.Index = index
	p.Clamp(total)
}
