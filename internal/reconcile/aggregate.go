package reconcile

import (
	"time"

	"github.com/gpazo-prog/scraper-enargas/internal/models"
)

// Aggregate sums the real-region records of one practice and date into the synthetic total
// region. Records for other practices or dates, the total itself and ids beyond the real
// range are ignored. It reports false when there is nothing to sum.
func Aggregate(practiceID int, date time.Time, records []models.StatRecord) (models.StatRecord, bool) {
	total := models.StatRecord{
		PracticeID: practiceID,
		RegionID:   models.TotalRegionID,
		Date:       date,
	}

	members := 0
	for _, rec := range records {
		if rec.PracticeID != practiceID || !rec.Date.Equal(date) {
			continue
		}
		if rec.RegionID < 1 || rec.RegionID > models.MaxRealRegionID {
			continue
		}
		total.Cumulative += rec.Cumulative
		total.Daily += rec.Daily
		members++
	}
	return total, members > 0
}
