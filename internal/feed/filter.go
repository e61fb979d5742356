package feed

import (
	"slices"

	"github.com/ignatzorin/campus-complaints-backend/internal/models"
)

// Set множество строковых значений фильтра.
type Set map[string]struct{}

// NewSet собирает множество из значений.
func NewSet(values ...string) Set {
	set := make(Set, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

// Has проверяет принадлежность. Пустое множество не содержит ничего.
func (s Set) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Values возвращает элементы в отсортированном виде.
func (s Set) Values() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// allows пустое множество не ограничивает измерение.
func (s Set) allows(v string) bool {
	return len(s) == 0 || s.Has(v)
}

func (s Set) clone() Set {
	if len(s) == 0 {
		return nil
	}
	out := make(Set, len(s))
	for v := range s {
		out[v] = struct{}{}
	}
	return out
}

// Filter критерии отбора по статусу, зоне и категории.
// Измерения объединяются через AND.
type Filter struct {
	Statuses   Set
	Areas      Set
	Categories Set
}

// IsEmpty true, если ни одно измерение не ограничено.
func (f Filter) IsEmpty() bool {
	return len(f.Statuses) == 0 && len(f.Areas) == 0 && len(f.Categories) == 0
}

// Matches проверяет жалобу. Отсутствующие зона и категория
// сравниваются как пустая строка.
func (f Filter) Matches(r *models.Report) bool {
	return f.Statuses.allows(string(r.Status)) &&
		f.Areas.allows(r.AreaName()) &&
		f.Categories.allows(r.CategoryName())
}

// Clone возвращает независимую копию фильтра.
func (f Filter) Clone() Filter {
	return Filter{
		Statuses:   f.Statuses.clone(),
		Areas:      f.Areas.clone(),
		Categories: f.Categories.clone(),
	}
}

// Apply возвращает новый срез с жалобами, прошедшими фильтр, в исходном порядке.
func (f Filter) Apply(reports []models.Report) []models.Report {
	out := make([]models.Report, 0, len(reports))
	for i := range reports {
		if f.Matches(&reports[i]) {
			out = append(out, reports[i])
		}
	}
	return out
}

// FilterFromLists собирает фильтр из списков значений. Пустые строки
// пропускаются, пустой список не ограничивает измерение.
func FilterFromLists(statuses, areas, categories []string) Filter {
	return Filter{
		Statuses:   setFromList(statuses),
		Areas:      setFromList(areas),
		Categories: setFromList(categories),
	}
}

func setFromList(values []string) Set {
	var set Set
	for _, v := range values {
		if v == "" {
			continue
		}
		if set == nil {
			set = make(Set, len(values))
		}
		set[v] = struct{}{}
	}
	return set
}
