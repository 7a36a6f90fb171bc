package models

// Delivery listings return 50 rows unless asked otherwise, never more than 200
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// Page tells a client where a delivery listing sits in the full audit trail
type Page struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalCount int64 `json:"total_count"`
	TotalPages int   `json:"total_pages"`
}

// NewPage derives the page count from the number of matching delivery records
func NewPage(page, pageSize int, total int64) Page {
	pages := 0
	if pageSize > 0 {
		pages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}

	return Page{
		Page:       page,
		PageSize:   pageSize,
		TotalCount: total,
		TotalPages: pages,
	}
}

// Normalize moves Page and PageSize into the range the listing accepts
func (f *DeliveryFilter) Normalize() {
	f.Page = max(f.Page, 1)

	switch {
	case f.PageSize < 1:
		f.PageSize = DefaultPageSize
	case f.PageSize > MaxPageSize:
		f.PageSize = MaxPageSize
	}
}

// Offset is the number of records skipped before the requested page
func (f DeliveryFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}
