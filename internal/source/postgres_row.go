package source

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignatzorin/campus-complaints-backend/internal/models"
)

// jsonColumn читает JSONB колонку в значение типа T. NULL оставляет Valid == false.
type jsonColumn[T any] struct {
	Value T
	Valid bool
}

func (c *jsonColumn[T]) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		c.Valid = false
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("jsonColumn: неподдерживаемый тип %T", src)
	}
	if err := json.Unmarshal(raw, &c.Value); err != nil {
		return fmt.Errorf("jsonColumn: %w", err)
	}
	c.Valid = true
	return nil
}

// reportRow строка таблицы reports.
type reportRow struct {
	ID              string                            `db:"id"`
	CampusID        string                            `db:"campus_id"`
	Area            jsonColumn[models.Area]           `db:"area"`
	Category        jsonColumn[models.Category]       `db:"category"`
	Status          sql.NullString                    `db:"status"`
	FacilityUser    jsonColumn[[]models.FacilityUser] `db:"facility_user"`
	Technician      jsonColumn[models.Technician]     `db:"technician"`
	Count           sql.NullInt64                     `db:"count"`
	Upvote          pq.StringArray                    `db:"upvote"`
	IsDeleted       bool                              `db:"is_deleted"`
	CreatedDate     time.Time                         `db:"created_date"`
	LastUpdatedBy   sql.NullString                    `db:"last_updated_by"`
	LastUpdatedDate sql.NullTime                      `db:"last_updated_date"`
}

// toModel переводит строку в модель. Пустые колонки получают значения
// по умолчанию, чтобы неполные записи не ломали ленту.
func (r reportRow) toModel() models.Report {
	report := models.Report{
		ID:            r.ID,
		CampusID:      r.CampusID,
		Status:        models.ReportStatus(r.Status.String),
		Count:         int(r.Count.Int64),
		Upvote:        []string(r.Upvote),
		IsDeleted:     r.IsDeleted,
		CreatedDate:   r.CreatedDate,
		LastUpdatedBy: r.LastUpdatedBy.String,
	}
	if r.Area.Valid {
		area := r.Area.Value
		report.Area = &area
	}
	if r.Category.Valid {
		category := r.Category.Value
		report.Category = &category
	}
	if r.FacilityUser.Valid {
		report.FacilityUser = r.FacilityUser.Value
	}
	if r.Technician.Valid && r.Technician.Value.PersonID != "" {
		technician := r.Technician.Value
		report.Technician = &technician
	}
	if r.LastUpdatedDate.Valid {
		updated := r.LastUpdatedDate.Time
		report.LastUpdatedDate = &updated
	}
	return report
}

const selectCampusReports = `
	SELECT id, campus_id, area, category, status, facility_user, technician,
		count, upvote, is_deleted, created_date, last_updated_by, last_updated_date
	FROM reports
	WHERE campus_id = $1 AND is_deleted = FALSE
	ORDER BY created_date DESC
`
