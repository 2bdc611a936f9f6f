package models

// Paging defaults
const (
	DefaultPageSize = 20
	MaxPageSize     = 500
)

// Page is one 1-based page of a list result
type Page[T any] struct {
	Page  int `json:"page"`
	Size  int `json:"size"`
	Total int `json:"total"`
	Items []T `json:"items"`
}

// Paginate slices items into the requested page, clamping out of range values
func Paginate[T any](items []T, page, size int) Page[T] {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	total := len(items)
	start := (page - 1) * size
	result := Page[T]{Page: page, Size: size, Total: total, Items: []T{}}
	if start >= total {
		return result
	}
	end := start + size
	if end > total {
		end = total
	}
	result.Items = items[start:end]
	return result
}
