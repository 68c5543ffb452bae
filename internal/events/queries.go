package events

import (
	"gorm.io/gorm"
)

// GenerationFilters narrows a listing of generation attempts.
type GenerationFilters struct {
	Date        string // DateLayout; empty means every day
	FailedOnly  bool
	ErrorFilter string // substring of the stored error message
	Limit       int
	Offset      int
}

// GenerationsResult is one page of generation attempts, newest first.
type GenerationsResult struct {
	Generations []GenerationEvent
	Total       int64
}

// GetGenerations lists generation attempts matching filters.
func GetGenerations(db *gorm.DB, filters GenerationFilters) (GenerationsResult, error) {
	query := db.Model(&GenerationEvent{})

	if filters.Date != "" {
		query = query.Where("date = ?", filters.Date)
	}
	if filters.FailedOnly {
		query = query.Where("success = ?", false)
	}
	if filters.ErrorFilter != "" {
		query = query.Where("error_message LIKE ?", "%"+filters.ErrorFilter+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return GenerationsResult{}, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}

	var generations []GenerationEvent
	if err := query.Order("timestamp DESC").Order("id DESC").
		Limit(limit).
		Offset(filters.Offset).
		Find(&generations).Error; err != nil {
		return GenerationsResult{}, err
	}

	return GenerationsResult{
		Generations: generations,
		Total:       total,
	}, nil
}

// CountVisitsOn counts the raw visit events stored for date.
func CountVisitsOn(db *gorm.DB, date string) (int64, error) {
	var count int64
	err := db.Model(&VisitEvent{}).Where("date = ?", date).Count(&count).Error
	return count, err
}
