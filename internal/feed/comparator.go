package feed

import (
	"slices"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/ignatzorin/campus-complaints-backend/internal/models"
)

// SortKey ключ сортировки ленты.
type SortKey string

const (
	SortNone          SortKey = ""
	SortByCount       SortKey = "count"
	SortByStatus      SortKey = "status"
	SortByArea        SortKey = "area"
	SortByCategory    SortKey = "category"
	SortByUpvoteCount SortKey = "upvoteCount"
)

// IsValid проверяет, что ключ известен. Пустой ключ тоже валиден
// и означает сортировку только по дате создания.
func (k SortKey) IsValid() bool {
	switch k {
	case SortNone, SortByCount, SortByStatus, SortByArea, SortByCategory, SortByUpvoteCount:
		return true
	}
	return false
}

// Direction направление сортировки по основному ключу.
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ParseDirection разбирает направление. Всё, кроме явного asc, считается desc.
func ParseDirection(raw string) Direction {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "asc", "ascending":
		return Ascending
	default:
		return Descending
	}
}

func (d Direction) sign() int {
	if d == Ascending {
		return 1
	}
	return -1
}

// Sort запрошенный порядок.
type Sort struct {
	Key       SortKey   `json:"key"`
	Direction Direction `json:"direction"`
}

// normalized заменяет неизвестный ключ порядком по умолчанию.
func (s Sort) normalized() (Sort, bool) {
	if !s.Key.IsValid() {
		return Sort{Direction: s.Direction}, false
	}
	if s.Direction != Ascending {
		s.Direction = Descending
	}
	return s, true
}

var (
	collatorMu sync.Mutex
	collator   = collate.New(language.Und)
)

// compareText сравнивает строки по правилам локали.
// collate.Collator не потокобезопасен, поэтому доступ сериализован.
func compareText(a, b string) int {
	collatorMu.Lock()
	defer collatorMu.Unlock()
	return collator.CompareString(a, b)
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// comparePrimary сравнивает по основному ключу без учёта направления.
// Для неизвестного ключа возвращает 0, и порядок определяет дата создания.
func comparePrimary(a, b *models.Report, key SortKey) int {
	switch key {
	case SortByCount:
		return compareInt(a.SafeCount(), b.SafeCount())
	case SortByStatus:
		return compareInt(a.Status.Rank(), b.Status.Rank())
	case SortByArea:
		return compareText(a.AreaName(), b.AreaName())
	case SortByCategory:
		return compareText(a.CategoryName(), b.CategoryName())
	case SortByUpvoteCount:
		return compareInt(a.UpvoteCount(), b.UpvoteCount())
	}
	return 0
}

// compareNewestFirst общий запасной порядок: новые жалобы раньше.
func compareNewestFirst(a, b *models.Report) int {
	return b.CreatedDate.Compare(a.CreatedDate)
}

// Compare задаёт полный порядок двух жалоб. При равенстве основного ключа
// более поздний createdDate идёт первым независимо от направления.
func Compare(a, b *models.Report, s Sort) int {
	if diff := comparePrimary(a, b, s.Key); diff != 0 {
		return diff * s.Direction.sign()
	}
	return compareNewestFirst(a, b)
}

// SortReports стабильно сортирует срез на месте.
func SortReports(reports []models.Report, s Sort) {
	slices.SortStableFunc(reports, func(a, b models.Report) int {
		return Compare(&a, &b, s)
	})
}
