package types

// Page is one zero-based page of a larger result set.
type Page[T any] struct {
	Content         []T    `json:"content"`
	Page            int    `json:"page"`
	Size            int    `json:"size"`
	TotalElements   int    `json:"totalElements"`
	TotalPages      int    `json:"totalPages"`
	First           bool   `json:"first"`
	Last            bool   `json:"last"`
	NextPageURL     string `json:"nextPageUrl,omitempty"`
	PreviousPageURL string `json:"previousPageUrl,omitempty"`
}

// NewPage computes the paging metadata for content taken at page/size out
// of total items. URLs are left for the transport layer to fill in.
func NewPage[T any](content []T, page, size, total int) Page[T] {
	if content == nil {
		content = []T{}
	}
	totalPages := 0
	if size > 0 {
		totalPages = (total + size - 1) / size
	}
	return Page[T]{
		Content:       content,
		Page:          page,
		Size:          size,
		TotalElements: total,
		TotalPages:    totalPages,
		First:         page == 0,
		Last:          page >= totalPages-1,
	}
}
