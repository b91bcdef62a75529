package fees

import (
	"sort"
	"time"
)

// =============================================================================
// SEASONAL RATE SELECTOR
// =============================================================================

// windowKey maps a (month, day) to a fractional key so window membership is
// a plain range test: March 15 -> 3.15. Keys only ever compare against other
// keys built the same way, so the float representation is exact enough.
func windowKey(month int, day int) float64 {
	return float64(month) + float64(day)/100
}

// spanDays approximates the number of days a window covers, used only to
// rank windows by specificity. Wrapping windows extend across the year
// boundary.
func (s *SeasonalRate) spanDays() int {
	start := time.Date(2001, time.Month(s.StartMonth), s.StartDay, 0, 0, 0, 0, time.UTC)
	end := time.Date(2001, time.Month(s.EndMonth), s.EndDay, 0, 0, 0, 0, time.UTC)
	if wraps(s) {
		end = end.AddDate(1, 0, 0)
	}
	return int(end.Sub(start).Hours()/24) + 1
}

func wraps(s *SeasonalRate) bool {
	return windowKey(s.StartMonth, s.StartDay) > windowKey(s.EndMonth, s.EndDay)
}

// Matches reports whether the date's (month, day) falls inside the window,
// boundaries inclusive. Windows where start > end wrap across the year
// boundary: Dec 1 .. Jan 15 matches Dec 25 and Jan 10 but not Feb 1.
func (s *SeasonalRate) Matches(date time.Time) bool {
	key := windowKey(int(date.Month()), date.Day())
	start := windowKey(s.StartMonth, s.StartDay)
	end := windowKey(s.EndMonth, s.EndDay)
	if start <= end {
		return key >= start && key <= end
	}
	return key >= start || key <= end
}

// SelectSeasonal picks the seasonal override applying to a date, or nil when
// base rates apply. Disabled rates never match. Among matching windows the
// highest Priority wins; equal-priority overlaps resolve to the window
// spanning the fewest days (the most specific one), then by rate ID, so the
// outcome never depends on input order.
func SelectSeasonal(date time.Time, rates []SeasonalRate) *SeasonalRate {
	var matches []SeasonalRate
	for _, r := range rates {
		if r.Enabled && r.Matches(date) {
			matches = append(matches, r)
		}
	}
	if len(matches) == 0 {
		return nil
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Priority != matches[j].Priority {
			return matches[i].Priority > matches[j].Priority
		}
		si, sj := matches[i].spanDays(), matches[j].spanDays()
		if si != sj {
			return si < sj
		}
		return matches[i].ID < matches[j].ID
	})

	return &matches[0]
}
