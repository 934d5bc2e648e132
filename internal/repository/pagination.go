package repository

import "strconv"

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type PageRequest struct {
	Page     int
	PageSize int
}

type PageResult[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

func normalizePageRequest(req PageRequest) PageRequest {
	if req.Page < 1 {
		req.Page = DefaultPage
	}
	if req.PageSize < 1 {
		req.PageSize = DefaultPageSize
	}
	if req.PageSize > MaxPageSize {
		req.PageSize = MaxPageSize
	}
	return req
}

func calcTotalPages(total int64, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

// ParsePageRequest reads page and page_size query values; unparsable values
// fall back to defaults.
func ParsePageRequest(page, pageSize string) PageRequest {
	p, _ := strconv.Atoi(page)
	size, _ := strconv.Atoi(pageSize)
	return normalizePageRequest(PageRequest{Page: p, PageSize: size})
}
