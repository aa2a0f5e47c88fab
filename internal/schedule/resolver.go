package schedule

import (
	"sort"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// NextRun computes the next firing instant for a job, or nil when none
// exists. It is a pure function of (job, now, defaultTZ): no ambient clock,
// no store access. Candidates are compared strictly after now in the job's
// zone, so a slot equal to the current instant never re-fires. The returned
// time is the wall clock in the engine's default zone, tagged UTC so it round
// trips through a timestamp-without-time-zone column unchanged.
func NextRun(job *Job, now time.Time, defaultTZ string) *time.Time {
	jobLoc := loadZone(deref(job.Timezone), defaultTZ)
	engineLoc := loadZone(defaultTZ, "")
	nowJob := now.In(jobLoc)

	switch job.Type() {
	case TypeOnce:
		if job.RunAt == nil {
			return nil
		}
		// run_at is naive in the job's own zone; rebind its components.
		ra := *job.RunAt
		run := time.Date(ra.Year(), ra.Month(), ra.Day(), ra.Hour(), ra.Minute(), ra.Second(), 0, jobLoc)
		if !run.After(nowJob) {
			return nil
		}
		return engineNaive(run, engineLoc)

	case TypeDaily:
		times := parseTimes(job)
		if len(times) == 0 {
			return nil
		}
		for offset := 0; offset < 14; offset++ {
			d := nowJob.AddDate(0, 0, offset)
			for _, tod := range times {
				cand := time.Date(d.Year(), d.Month(), d.Day(), tod.hour, tod.minute, tod.second, 0, jobLoc)
				if cand.After(nowJob) {
					return engineNaive(cand, engineLoc)
				}
			}
		}
		return nil

	case TypeWeekly:
		times := parseTimes(job)
		if len(times) == 0 {
			return nil
		}
		days := parseDays(deref(job.DaysOfWeek))
		if len(days) == 0 {
			return nil
		}
		for offset := 0; offset <= 365; offset++ {
			d := nowJob.AddDate(0, 0, offset)
			if !days[d.Weekday()] {
				continue
			}
			var best *time.Time
			for _, tod := range times {
				cand := time.Date(d.Year(), d.Month(), d.Day(), tod.hour, tod.minute, tod.second, 0, jobLoc)
				if !cand.After(nowJob) {
					continue
				}
				if best == nil || cand.Before(*best) {
					c := cand
					best = &c
				}
			}
			if best != nil {
				return engineNaive(*best, engineLoc)
			}
		}
		return nil

	case TypeCron:
		expr := strings.TrimSpace(deref(job.CronExpr))
		if expr == "" || !gronx.New().IsValid(expr) {
			return nil
		}
		next, err := gronx.NextTickAfter(expr, nowJob, false)
		if err != nil {
			return nil
		}
		return engineNaive(next, engineLoc)
	}

	return nil
}

// engineNaive converts an instant to the engine zone and strips the zone,
// keeping the wall clock.
func engineNaive(t time.Time, engine *time.Location) *time.Time {
	e := t.In(engine)
	naive := time.Date(e.Year(), e.Month(), e.Day(), e.Hour(), e.Minute(), e.Second(), 0, time.UTC)
	return &naive
}

// loadZone resolves an IANA zone name, falling back to fallback and then to
// the process-local zone when unparseable or empty.
func loadZone(name, fallback string) *time.Location {
	if n := strings.TrimSpace(name); n != "" {
		if loc, err := time.LoadLocation(n); err == nil {
			return loc
		}
	}
	if f := strings.TrimSpace(fallback); f != "" {
		if loc, err := time.LoadLocation(f); err == nil {
			return loc
		}
	}
	return time.Local
}

type timeOfDay struct {
	hour, minute, second int
}

// parseTimes collects the job's times of day: the times_of_day csv when
// non-empty, otherwise the legacy single time_of_day. Entries accept HH:MM or
// HH:MM:SS; invalid tokens are skipped. The result is deduplicated and
// sorted ascending.
func parseTimes(job *Job) []timeOfDay {
	var out []timeOfDay
	if csv := strings.TrimSpace(deref(job.TimesOfDay)); csv != "" {
		for _, part := range strings.Split(csv, ",") {
			if tod, ok := parseTimeOfDay(part); ok {
				out = append(out, tod)
			}
		}
	}
	if len(out) == 0 {
		if tod, ok := parseTimeOfDay(deref(job.TimeOfDay)); ok {
			out = append(out, tod)
		}
	}

	seen := make(map[timeOfDay]bool, len(out))
	uniq := out[:0]
	for _, tod := range out {
		if !seen[tod] {
			seen[tod] = true
			uniq = append(uniq, tod)
		}
	}
	sort.Slice(uniq, func(i, j int) bool {
		a, b := uniq[i], uniq[j]
		if a.hour != b.hour {
			return a.hour < b.hour
		}
		if a.minute != b.minute {
			return a.minute < b.minute
		}
		return a.second < b.second
	})
	return uniq
}

func parseTimeOfDay(s string) (timeOfDay, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return timeOfDay{}, false
	}
	layout := "15:04:05"
	if len(s) == 5 {
		layout = "15:04"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return timeOfDay{}, false
	}
	return timeOfDay{t.Hour(), t.Minute(), t.Second()}, true
}

var weekdayNames = map[string]time.Weekday{
	"MON": time.Monday, "MONDAY": time.Monday,
	"TUE": time.Tuesday, "TUESDAY": time.Tuesday,
	"WED": time.Wednesday, "WEDNESDAY": time.Wednesday,
	"THU": time.Thursday, "THURSDAY": time.Thursday,
	"FRI": time.Friday, "FRIDAY": time.Friday,
	"SAT": time.Saturday, "SATURDAY": time.Saturday,
	"SUN": time.Sunday, "SUNDAY": time.Sunday,
}

// parseDays parses a csv of weekday tokens, accepting three-letter and full
// English names case-insensitively. Unknown tokens are dropped silently.
func parseDays(raw string) map[time.Weekday]bool {
	out := make(map[time.Weekday]bool)
	for _, tok := range strings.Split(raw, ",") {
		if wd, ok := weekdayNames[strings.ToUpper(strings.TrimSpace(tok))]; ok {
			out[wd] = true
		}
	}
	return out
}
