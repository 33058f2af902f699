package leave

import "github.com/warp/leave-engine/domain"

// ComputeDuration returns the days a request consumes. Full-day spans count
// inclusive calendar days. A half-day session is 0.5 on a single day and
// max(0.5, days - 0.5) across several.
func ComputeDuration(start, end domain.TimePoint, session domain.Session) domain.Amount {
	days := domain.Period{Start: start, End: end}.CalendarDays()
	if !session.IsHalfDay() {
		return domain.DaysInt(days)
	}
	if days <= 1 {
		return domain.HalfDay()
	}
	return domain.DaysInt(days).Sub(domain.HalfDay()).Max(domain.HalfDay())
}
