package models

// ReportStatus статус жизненного цикла жалобы.
type ReportStatus string

// Статусы жалоб
const (
	ReportStatusPending    ReportStatus = "PENDING"
	ReportStatusInProgress ReportStatus = "IN_PROGRESS"
	ReportStatusDone       ReportStatus = "DONE"
)

// Роли участников кампуса
const (
	RoleFacilityUser    = "facility_user"
	RoleTechnician      = "technician"
	RoleBuildingManager = "building_manager"
)

// ValidReportStatuses список известных статусов жалоб
var ValidReportStatuses = map[ReportStatus]struct{}{
	ReportStatusPending:    {},
	ReportStatusInProgress: {},
	ReportStatusDone:       {},
}

// statusRanks порядок статусов при сортировке.
var statusRanks = map[ReportStatus]int{
	ReportStatusPending:    0,
	ReportStatusInProgress: 1,
	ReportStatusDone:       2,
}

// unknownStatusRank ранг для любого неизвестного или пустого статуса.
const unknownStatusRank = 3

// Rank возвращает позицию статуса в порядке PENDING → IN_PROGRESS → DONE.
// Неизвестные значения всегда оказываются последними.
func (s ReportStatus) Rank() int {
	if rank, ok := statusRanks[s]; ok {
		return rank
	}
	return unknownStatusRank
}

// IsValid проверяет, что статус входит в закрытый список.
func (s ReportStatus) IsValid() bool {
	_, ok := ValidReportStatuses[s]
	return ok
}
