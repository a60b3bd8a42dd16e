package domain

// DefaultPerPage — размер страницы для каталога и списка заказов.
const DefaultPerPage = 10

// PageRequest задаёт номер страницы (с единицы) и её размер.
type PageRequest struct {
	Page    int
	PerPage int
}

// Normalize подставляет значения по умолчанию для некорректных параметров.
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	return p
}

// Offset возвращает количество записей, которые нужно пропустить.
func (p PageRequest) Offset() int {
	p = p.Normalize()
	return (p.Page - 1) * p.PerPage
}

// Page — одна страница выборки и общее количество записей.
type Page[T any] struct {
	Items   []T
	Page    int
	PerPage int
	Total   int
}

// NewPage собирает страницу из нормализованного запроса.
func NewPage[T any](req PageRequest, items []T, total int) Page[T] {
	req = req.Normalize()
	if items == nil {
		items = make([]T, 0)
	}
	return Page[T]{Items: items, Page: req.Page, PerPage: req.PerPage, Total: total}
}

// LastPage возвращает номер последней страницы (минимум 1).
func (p Page[T]) LastPage() int {
	if p.PerPage <= 0 || p.Total == 0 {
		return 1
	}
	return (p.Total + p.PerPage - 1) / p.PerPage
}

// Paginate вырезает страницу из полного отсортированного списка.
func Paginate[T any](all []T, req PageRequest) Page[T] {
	req = req.Normalize()
	start := req.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + req.PerPage
	if end > len(all) {
		end = len(all)
	}
	items := make([]T, end-start)
	copy(items, all[start:end])
	return NewPage(req, items, len(all))
}
