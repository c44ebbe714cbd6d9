package rowcontainer

// Paginator slices a Container into pages. With PaginateChildRows every page
// holds PageSize rows; otherwise a page holds PageSize top level rows with
// everything displayed under them.
type Paginator struct {
	PageSize          int
	CurrentPage       int
	PaginateChildRows bool
}

func (p *Paginator) size() int {
	if p.PageSize <= 0 {
		return 100
	}
	return p.PageSize
}

func (p *Paginator) TotalPages(c *Container) int {
	units := c.Len()
	if !p.PaginateChildRows && c != nil {
		units = len(c.top)
	}
	if units == 0 {
		return 0
	}
	return (units + p.size() - 1) / p.size()
}

// SetPage moves to page, clamped to the available pages.
func (p *Paginator) SetPage(page int, c *Container) {
	last := p.TotalPages(c) - 1
	if page > last {
		page = last
	}
	if page < 0 {
		page = 0
	}
	p.CurrentPage = page
}

// Bounds returns the first and last display index of the current page,
// inclusive. An empty page returns (0, -1).
func (p *Paginator) Bounds(c *Container) (first, last int) {
	if c.Len() == 0 {
		return 0, -1
	}
	size := p.size()
	page := p.CurrentPage
	if total := p.TotalPages(c); page >= total {
		page = total - 1
	}

	if p.PaginateChildRows {
		first = page * size
		last = first + size - 1
		if last >= c.Len() {
			last = c.Len() - 1
		}
		return first, last
	}

	from := page * size
	first = c.top[from]
	if to := from + size; to < len(c.top) {
		return first, c.top[to] - 1
	}
	return first, c.Len() - 1
}
