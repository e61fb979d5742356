package feed

import (
	"strings"

	"github.com/ignatzorin/campus-complaints-backend/internal/models"
	"github.com/ignatzorin/campus-complaints-backend/internal/pkg/apperror"
)

// ViewScope определяет, какую часть ленты видит потребитель.
type ViewScope string

const (
	ScopeAll      ViewScope = "all"
	ScopeMine     ViewScope = "mine"
	ScopeAssigned ViewScope = "assigned"
)

// ParseViewScope разбирает область просмотра. Пустая строка означает all.
func ParseViewScope(raw string) (ViewScope, error) {
	switch ViewScope(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ScopeAll:
		return ScopeAll, nil
	case ScopeMine:
		return ScopeMine, nil
	case ScopeAssigned:
		return ScopeAssigned, nil
	}
	return "", apperror.ErrInvalidViewScope
}

// NeedsActor true для областей, зависящих от текущего пользователя.
func (s ViewScope) NeedsActor() bool {
	return s == ScopeMine || s == ScopeAssigned
}

// ScopeForRole область просмотра по умолчанию для роли.
func ScopeForRole(role string) ViewScope {
	switch role {
	case models.RoleFacilityUser:
		return ScopeMine
	case models.RoleTechnician:
		return ScopeAssigned
	default:
		return ScopeAll
	}
}

// SelectScope выбирает подпоследовательность без пересортировки.
// Для all вход возвращается как есть.
func SelectScope(reports []models.Report, scope ViewScope, actorPersonID string) []models.Report {
	var keep func(r *models.Report) bool
	switch scope {
	case ScopeMine:
		keep = func(r *models.Report) bool { return r.SubmittedBy(actorPersonID) }
	case ScopeAssigned:
		keep = func(r *models.Report) bool { return r.AssignedTo(actorPersonID) }
	default:
		return reports
	}

	out := make([]models.Report, 0, len(reports))
	for i := range reports {
		if keep(&reports[i]) {
			out = append(out, reports[i])
		}
	}
	return out
}
