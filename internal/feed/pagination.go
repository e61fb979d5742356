package feed

import "github.com/ignatzorin/campus-complaints-backend/internal/pkg/apperror"

// Window одна страница упорядоченной последовательности.
type Window[T any] struct {
	Items      []T
	Page       int // фактическая страница после ограничения
	Requested  int
	TotalPages int
	PageSize   int
	Total      int
	// Clamped означает, что запрошенная страница вне диапазона
	// и вызывающему нужно запомнить Page.
	Clamped bool
}

// TotalPages число страниц; для пустой последовательности это одна пустая страница.
func TotalPages(n, pageSize int) int {
	if pageSize <= 0 || n <= 0 {
		return 1
	}
	pages := n / pageSize
	if n%pageSize != 0 {
		pages++
	}
	return pages
}

// ClampPage приводит номер страницы к диапазону [1, totalPages].
func ClampPage(page, totalPages int) int {
	if totalPages < 1 {
		totalPages = 1
	}
	if page > totalPages {
		page = totalPages
	}
	if page < 1 {
		page = 1
	}
	return page
}

// Slice возвращает элементы [(page-1)*size, page*size), обрезанные по границам.
func Slice[T any](items []T, pageSize, page int) []T {
	if pageSize <= 0 || page < 1 {
		return nil
	}
	// Номер страницы проверяется до умножения, чтобы не переполнить int.
	if page > TotalPages(len(items), pageSize) {
		return nil
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return nil
	}
	end := min(start+pageSize, len(items))
	return items[start:end:end]
}

// Paginate строит окно для страницы page. Если страница вне диапазона,
// окно содержит ограниченную страницу и Clamped == true.
func Paginate[T any](items []T, pageSize, page int) (Window[T], error) {
	if pageSize <= 0 {
		return Window[T]{}, apperror.ErrInvalidPageSize
	}
	total := TotalPages(len(items), pageSize)
	effective := ClampPage(page, total)
	return Window[T]{
		Items:      Slice(items, pageSize, effective),
		Page:       effective,
		Requested:  page,
		TotalPages: total,
		PageSize:   pageSize,
		Total:      len(items),
		Clamped:    effective != page,
	}, nil
}
