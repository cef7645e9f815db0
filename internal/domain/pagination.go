package domain

import "math"

const (
	maxPageLimit = 100
	// maxPage держит (Page-1)*Limit в пределах int при любом допустимом Limit.
	maxPage = math.MaxInt / maxPageLimit
)

// PageRequest — номер страницы (с единицы) и её размер.
type PageRequest struct {
	Page  int
	Limit int
}

// Normalize подставляет значения по умолчанию, ограничивает размер и номер страницы.
func (p PageRequest) Normalize(defaultLimit int) PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > maxPage {
		p.Page = maxPage
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxPageLimit {
		p.Limit = maxPageLimit
	}
	return p
}

// Offset возвращает смещение для SQL-выборки.
func (p PageRequest) Offset() int {
	if p.Page < 1 || p.Limit < 1 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.Limit {
		return math.MaxInt
	}
	return (p.Page - 1) * p.Limit
}

// Page — страница результатов с общим количеством записей.
type Page[T any] struct {
	Items []T
	Total int
	PageRequest
}

// TotalPages возвращает количество страниц (округление вверх).
func (p Page[T]) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// HasNext сообщает, есть ли следующая страница.
func (p Page[T]) HasNext() bool {
	return p.Page < p.TotalPages()
}

// HasPrev сообщает, есть ли предыдущая страница.
func (p Page[T]) HasPrev() bool {
	return p.Page > 1
}

// Window возвращает срез items для страницы; используется in-memory хранилищами.
func Window[T any](items []T, req PageRequest) []T {
	start := req.Offset()
	if start < 0 || start >= len(items) {
		return []T{}
	}
	end := start + req.Limit
	if req.Limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
