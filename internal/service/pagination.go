package service

import "github.com/noah-isme/carepath-api/internal/models"

// newPagination mirrors the defaults the repositories apply to page and size.
func newPagination(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
