package history

import (
	"time"

	"github.com/jdiaz1993/quickcalories/app/models"
)

// GroupByDay buckets newest-first records by their calendar date in loc,
// keeping both the group order and the order within a group.
func GroupByDay(records []models.EstimateRecord, loc *time.Location) []models.DayGroup {
	if loc == nil {
		loc = time.Local
	}
	groups := make([]models.DayGroup, 0)
	index := map[string]int{}
	for _, rec := range records {
		day := rec.CreatedAt.In(loc).Format("2006-01-02")
		i, ok := index[day]
		if !ok {
			i = len(groups)
			index[day] = i
			groups = append(groups, models.DayGroup{Date: day})
		}
		groups[i].Entries = append(groups[i].Entries, rec)
		groups[i].Totals = groups[i].Totals.Add(rec.Macros())
	}
	return groups
}

// DayBounds returns [start, end) of the calendar day containing t in loc.
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// Summarize compares totals with goal. Remaining is floored at zero and nil
// without a goal.
func Summarize(date string, totals models.Macros, count int, goal *models.Goal) models.DaySummary {
	s := models.DaySummary{Date: date, Totals: totals, Goal: goal, Count: count}
	if goal != nil {
		s.Remaining = &models.Macros{
			Calories: floor0(goal.Calories - totals.Calories),
			ProteinG: floor0(goal.ProteinG - totals.ProteinG),
			CarbsG:   floor0(goal.CarbsG - totals.CarbsG),
			FatG:     floor0(goal.FatG - totals.FatG),
		}
	}
	return s
}

func floor0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
