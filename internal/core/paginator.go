package core

// DefaultPerPage is used when a page size of zero or less is requested.
const DefaultPerPage = 15

// Paginator is one page of a query whose total is not counted. HasMore is
// known from fetching a single extra row.
type Paginator struct {
	Items       []Row  `json:"data"`
	PerPage     int    `json:"per_page"`
	CurrentPage int    `json:"current_page"`
	HasMore     bool   `json:"has_more"`
	PageName    string `json:"-"`
}

// OnFirstPage reports whether this is page 1.
func (p *Paginator) OnFirstPage() bool { return p.CurrentPage <= 1 }

// HasMorePages reports whether a following page exists.
func (p *Paginator) HasMorePages() bool { return p.HasMore }

// NextPage returns the next page number, or 0 on the last page.
func (p *Paginator) NextPage() int {
	if !p.HasMore {
		return 0
	}
	return p.CurrentPage + 1
}

// PreviousPage returns the previous page number, or 0 on the first page.
func (p *Paginator) PreviousPage() int {
	if p.OnFirstPage() {
		return 0
	}
	return p.CurrentPage - 1
}

// FirstItem is the 1-based position of the first item, 0 when empty.
func (p *Paginator) FirstItem() int { return firstItem(len(p.Items), p.CurrentPage, p.PerPage) }

// LastItem is the 1-based position of the last item, 0 when empty.
func (p *Paginator) LastItem() int { return lastItem(len(p.Items), p.CurrentPage, p.PerPage) }

// LengthAwarePaginator is one page of a query along with the total number
// of matching rows.
type LengthAwarePaginator struct {
	Items       []Row  `json:"data"`
	Total       int64  `json:"total"`
	PerPage     int    `json:"per_page"`
	CurrentPage int    `json:"current_page"`
	LastPage    int    `json:"last_page"`
	PageName    string `json:"-"`
}

func newLengthAwarePaginator(items []Row, total int64, perPage, page int) *LengthAwarePaginator {
	last := int((total + int64(perPage) - 1) / int64(perPage))
	return &LengthAwarePaginator{
		Items:       items,
		Total:       total,
		PerPage:     perPage,
		CurrentPage: page,
		LastPage:    max(last, 1),
		PageName:    "page",
	}
}

// OnFirstPage reports whether this is page 1.
func (p *LengthAwarePaginator) OnFirstPage() bool { return p.CurrentPage <= 1 }

// HasMorePages reports whether a following page exists.
func (p *LengthAwarePaginator) HasMorePages() bool { return p.CurrentPage < p.LastPage }

// NextPage returns the next page number, or 0 on the last page.
func (p *LengthAwarePaginator) NextPage() int {
	if !p.HasMorePages() {
		return 0
	}
	return p.CurrentPage + 1
}

// PreviousPage returns the previous page number, or 0 on the first page.
func (p *LengthAwarePaginator) PreviousPage() int {
	if p.OnFirstPage() {
		return 0
	}
	return p.CurrentPage - 1
}

// FirstItem is the 1-based position of the first item, 0 when empty.
func (p *LengthAwarePaginator) FirstItem() int {
	return firstItem(len(p.Items), p.CurrentPage, p.PerPage)
}

// LastItem is the 1-based position of the last item, 0 when empty.
func (p *LengthAwarePaginator) LastItem() int {
	return lastItem(len(p.Items), p.CurrentPage, p.PerPage)
}

func firstItem(n, page, perPage int) int {
	if n == 0 {
		return 0
	}
	return (page-1)*perPage + 1
}

func lastItem(n, page, perPage int) int {
	if n == 0 {
		return 0
	}
	return firstItem(n, page, perPage) + n - 1
}
