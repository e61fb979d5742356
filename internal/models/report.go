package models

import (
	"time"
)

// Area корпус или зона кампуса, к которой относится жалоба.
type Area struct {
	ID   string `json:"id" bson:"id"`
	Name string `json:"name" bson:"name"`
}

// Category категория неисправности.
type Category struct {
	ID   string `json:"id" bson:"id"`
	Name string `json:"name" bson:"name"`
	// EstimatedCompletionHours ожидаемое время устранения.
	EstimatedCompletionHours int `json:"estimatedCompletionHours,omitempty" bson:"estimatedCompletionHours,omitempty"`
}

// FacilityUser автор жалобы. После слияния дубликатов их может быть несколько.
type FacilityUser struct {
	PersonID    string `json:"personId" bson:"personId"`
	Name        string `json:"name" bson:"name"`
	Email       string `json:"email" bson:"email"`
	Description string `json:"description,omitempty" bson:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty" bson:"imageUrl,omitempty"`
}

// Technician назначенный исполнитель.
type Technician struct {
	PersonID string `json:"personId" bson:"personId"`
	Name     string `json:"name" bson:"name"`
	Email    string `json:"email,omitempty" bson:"email,omitempty"`
}

// Report жалоба на неисправность в кампусе.
type Report struct {
	ID              string         `json:"id" bson:"-"`
	CampusID        string         `json:"campusId" bson:"campusId"`
	Area            *Area          `json:"area,omitempty" bson:"area,omitempty"`
	Category        *Category      `json:"category,omitempty" bson:"category,omitempty"`
	Status          ReportStatus   `json:"status" bson:"status"`
	FacilityUser    []FacilityUser `json:"facilityUser" bson:"facilityUser"`
	Technician      *Technician    `json:"technician,omitempty" bson:"technician,omitempty"`
	Count           int            `json:"count" bson:"count"`
	Upvote          []string       `json:"upvote,omitempty" bson:"upvote,omitempty"`
	IsDeleted       bool           `json:"isDeleted" bson:"isDeleted"`
	CreatedDate     time.Time      `json:"createdDate" bson:"createdDate"`
	LastUpdatedBy   string         `json:"lastUpdatedBy,omitempty" bson:"lastUpdatedBy,omitempty"`
	LastUpdatedDate *time.Time     `json:"lastUpdatedDate,omitempty" bson:"lastUpdatedDate,omitempty"`
}

// AreaName возвращает имя зоны или пустую строку, если зона не заполнена.
func (r *Report) AreaName() string {
	if r.Area == nil {
		return ""
	}
	return r.Area.Name
}

// CategoryName возвращает имя категории или пустую строку.
func (r *Report) CategoryName() string {
	if r.Category == nil {
		return ""
	}
	return r.Category.Name
}

// UpvoteCount размер множества голосов. Отсутствие голосов равно нулю.
func (r *Report) UpvoteCount() int {
	if len(r.Upvote) < 2 {
		return len(r.Upvote)
	}
	seen := make(map[string]struct{}, len(r.Upvote))
	for _, personID := range r.Upvote {
		seen[personID] = struct{}{}
	}
	return len(seen)
}

// SafeCount возвращает count, отрицательные значения приводятся к нулю.
func (r *Report) SafeCount() int {
	if r.Count < 0 {
		return 0
	}
	return r.Count
}

// SubmittedBy проверяет, есть ли personID среди авторов жалобы.
func (r *Report) SubmittedBy(personID string) bool {
	if personID == "" {
		return false
	}
	for _, user := range r.FacilityUser {
		if user.PersonID == personID {
			return true
		}
	}
	return false
}

// AssignedTo проверяет, назначена ли жалоба исполнителю personID.
func (r *Report) AssignedTo(personID string) bool {
	return personID != "" && r.Technician != nil && r.Technician.PersonID == personID
}
