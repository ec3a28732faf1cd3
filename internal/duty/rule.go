package duty

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind identifies how often a recurring duty comes due.
type Kind int

const (
	Daily Kind = iota
	Weekly
	Monthly
	Workdays
	Weekends
	// Manual templates never fire on their own; their instances are
	// created directly by a family member.
	Manual
)

var kindNames = map[Kind]string{
	Daily:    "DAILY",
	Weekly:   "WEEKLY",
	Monthly:  "MONTHLY",
	Workdays: "WORKDAYS",
	Weekends: "WEEKENDS",
	Manual:   "MANUAL",
}

var kindFromName = map[string]Kind{
	"DAILY":    Daily,
	"WEEKLY":   Weekly,
	"MONTHLY":  Monthly,
	"WORKDAYS": Workdays,
	"WEEKENDS": Weekends,
	"MANUAL":   Manual,
}

var dayNames = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

var dayAbbrev = map[time.Weekday]string{
	time.Sunday:    "SU",
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
}

// Rule describes when a recurring duty fires. The zero value is not a
// valid rule; build one through the per-kind constructors or Parse.
type Rule struct {
	Kind     Kind
	Hour     int
	Minute   int
	Weekday  time.Weekday // Weekly only
	MonthDay int          // Monthly only, 1-31
}

func validTime(hour, minute int) error {
	if hour < 0 || hour > 23 {
		return &ValidationError{Field: "hour", Reason: fmt.Sprintf("%d out of range [0,23]", hour)}
	}
	if minute < 0 || minute > 59 {
		return &ValidationError{Field: "minute", Reason: fmt.Sprintf("%d out of range [0,59]", minute)}
	}
	return nil
}

// DailyAt returns a rule that fires every day at the given local time.
func DailyAt(hour, minute int) (Rule, error) {
	if err := validTime(hour, minute); err != nil {
		return Rule{}, err
	}
	return Rule{Kind: Daily, Hour: hour, Minute: minute}, nil
}

// WeeklyOn returns a rule that fires once a week on the given weekday.
func WeeklyOn(day time.Weekday, hour, minute int) (Rule, error) {
	if day < time.Sunday || day > time.Saturday {
		return Rule{}, &ValidationError{Field: "weekday", Reason: fmt.Sprintf("%d out of range", int(day))}
	}
	if err := validTime(hour, minute); err != nil {
		return Rule{}, err
	}
	return Rule{Kind: Weekly, Hour: hour, Minute: minute, Weekday: day}, nil
}

// MonthlyOn returns a rule that fires once a month on the given day of the
// month. Months shorter than day fire on their last day instead.
func MonthlyOn(day, hour, minute int) (Rule, error) {
	if day < 1 || day > 31 {
		return Rule{}, &ValidationError{Field: "month_day", Reason: fmt.Sprintf("%d out of range [1,31]", day)}
	}
	if err := validTime(hour, minute); err != nil {
		return Rule{}, err
	}
	return Rule{Kind: Monthly, Hour: hour, Minute: minute, MonthDay: day}, nil
}

// WorkdaysAt returns a rule that fires Monday through Friday.
func WorkdaysAt(hour, minute int) (Rule, error) {
	if err := validTime(hour, minute); err != nil {
		return Rule{}, err
	}
	return Rule{Kind: Workdays, Hour: hour, Minute: minute}, nil
}

// WeekendsAt returns a rule that fires on Saturdays and Sundays.
func WeekendsAt(hour, minute int) (Rule, error) {
	if err := validTime(hour, minute); err != nil {
		return Rule{}, err
	}
	return Rule{Kind: Weekends, Hour: hour, Minute: minute}, nil
}

// ManualRule returns a rule that never fires.
func ManualRule() Rule {
	return Rule{Kind: Manual}
}

// NextOccurrence returns the first instant strictly after afterUTC at
// which the rule fires. The rule is evaluated in loc (the household's
// timezone) and the result converted back to UTC. ok is false when the
// rule never fires (Manual).
func (r Rule) NextOccurrence(afterUTC time.Time, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	after := afterUTC.In(loc)

	switch r.Kind {
	case Daily:
		c := r.onDay(after, 0)
		if !c.After(after) {
			c = r.onDay(after, 1)
		}
		return c.UTC(), true

	case Weekly:
		offset := (int(r.Weekday) - int(after.Weekday()) + 7) % 7
		c := r.onDay(after, offset)
		if !c.After(after) {
			c = r.onDay(after, offset+7)
		}
		return c.UTC(), true

	case Monthly:
		c := r.onMonthDay(after.Year(), after.Month(), loc)
		if !c.After(after) {
			// Re-clamp for the next month independently; month lengths differ.
			c = r.onMonthDay(after.Year(), after.Month()+1, loc)
		}
		return c.UTC(), true

	case Workdays, Weekends:
		c := r.onDay(after, 0)
		if !c.After(after) {
			c = r.onDay(after, 1)
		}
		for !r.matchesWeekday(c.Weekday()) {
			c = c.AddDate(0, 0, 1)
		}
		return c.UTC(), true
	}

	// Manual
	return time.Time{}, false
}

// TriggerInWindow reports the rule's trigger inside the open-closed
// window (startUTC, endUTC]. Contiguous back-to-back windows therefore
// see each trigger exactly once and never share a boundary firing.
func (r Rule) TriggerInWindow(startUTC, endUTC time.Time, loc *time.Location) (time.Time, bool) {
	next, ok := r.NextOccurrence(startUTC, loc)
	if !ok || next.After(endUTC) {
		return time.Time{}, false
	}
	return next, true
}

func (r Rule) onDay(local time.Time, daysAhead int) time.Time {
	return time.Date(local.Year(), local.Month(), local.Day()+daysAhead, r.Hour, r.Minute, 0, 0, local.Location())
}

func (r Rule) onMonthDay(year int, month time.Month, loc *time.Location) time.Time {
	day := r.MonthDay
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, r.Hour, r.Minute, 0, 0, loc)
}

func (r Rule) matchesWeekday(wd time.Weekday) bool {
	weekend := wd == time.Saturday || wd == time.Sunday
	if r.Kind == Weekends {
		return weekend
	}
	return !weekend
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Parse parses a rule string like "FREQ=WEEKLY;BYDAY=MO;AT=15:00".
func Parse(rule string) (Rule, error) {
	if rule == "" {
		return Rule{}, fmt.Errorf("empty rule")
	}

	var (
		kind     Kind
		hasFreq  bool
		hasAt    bool
		hasDay   bool
		hasMDay  bool
		hour     int
		minute   int
		weekday  time.Weekday
		monthDay int
	)

	for _, part := range strings.Split(rule, ";") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return Rule{}, fmt.Errorf("invalid rule part: %q", part)
		}
		key, val := kv[0], kv[1]

		switch key {
		case "FREQ":
			k, ok := kindFromName[val]
			if !ok {
				return Rule{}, fmt.Errorf("unknown frequency: %q", val)
			}
			kind = k
			hasFreq = true

		case "AT":
			hm := strings.SplitN(val, ":", 2)
			if len(hm) != 2 {
				return Rule{}, fmt.Errorf("invalid AT: %q", val)
			}
			h, err1 := strconv.Atoi(hm[0])
			m, err2 := strconv.Atoi(hm[1])
			if err1 != nil || err2 != nil || validTime(h, m) != nil {
				return Rule{}, fmt.Errorf("invalid AT: %q", val)
			}
			hour, minute = h, m
			hasAt = true

		case "BYDAY":
			wd, ok := dayNames[strings.TrimSpace(val)]
			if !ok {
				return Rule{}, fmt.Errorf("unknown day: %q", val)
			}
			weekday = wd
			hasDay = true

		case "BYMONTHDAY":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 || n > 31 {
				return Rule{}, fmt.Errorf("invalid BYMONTHDAY: %q", val)
			}
			monthDay = n
			hasMDay = true

		default:
			return Rule{}, fmt.Errorf("unsupported rule key: %q", key)
		}
	}

	if !hasFreq {
		return Rule{}, fmt.Errorf("FREQ is required")
	}
	if hasDay && kind != Weekly {
		return Rule{}, fmt.Errorf("BYDAY only valid with FREQ=WEEKLY")
	}
	if hasMDay && kind != Monthly {
		return Rule{}, fmt.Errorf("BYMONTHDAY only valid with FREQ=MONTHLY")
	}

	switch kind {
	case Manual:
		if hasAt {
			return Rule{}, fmt.Errorf("AT not valid with FREQ=MANUAL")
		}
		return ManualRule(), nil
	case Daily:
		if !hasAt {
			return Rule{}, fmt.Errorf("AT is required")
		}
		return DailyAt(hour, minute)
	case Weekly:
		if !hasAt {
			return Rule{}, fmt.Errorf("AT is required")
		}
		if !hasDay {
			return Rule{}, fmt.Errorf("BYDAY is required for FREQ=WEEKLY")
		}
		return WeeklyOn(weekday, hour, minute)
	case Monthly:
		if !hasAt {
			return Rule{}, fmt.Errorf("AT is required")
		}
		if !hasMDay {
			return Rule{}, fmt.Errorf("BYMONTHDAY is required for FREQ=MONTHLY")
		}
		return MonthlyOn(monthDay, hour, minute)
	case Workdays:
		if !hasAt {
			return Rule{}, fmt.Errorf("AT is required")
		}
		return WorkdaysAt(hour, minute)
	default:
		if !hasAt {
			return Rule{}, fmt.Errorf("AT is required")
		}
		return WeekendsAt(hour, minute)
	}
}

// String serializes the rule back to its text form.
func (r Rule) String() string {
	parts := []string{"FREQ=" + kindNames[r.Kind]}

	if r.Kind == Weekly {
		parts = append(parts, "BYDAY="+dayAbbrev[r.Weekday])
	}
	if r.Kind == Monthly {
		parts = append(parts, fmt.Sprintf("BYMONTHDAY=%d", r.MonthDay))
	}
	if r.Kind != Manual {
		parts = append(parts, fmt.Sprintf("AT=%02d:%02d", r.Hour, r.Minute))
	}

	return strings.Join(parts, ";")
}

// Describe returns a human-readable description of the rule.
func (r Rule) Describe() string {
	at := fmt.Sprintf("%02d:%02d", r.Hour, r.Minute)
	switch r.Kind {
	case Daily:
		return "Every day at " + at
	case Weekly:
		return fmt.Sprintf("Every %s at %s", r.Weekday, at)
	case Monthly:
		return fmt.Sprintf("Monthly on day %d at %s", r.MonthDay, at)
	case Workdays:
		return "Workdays at " + at
	case Weekends:
		return "Weekends at " + at
	case Manual:
		return "On demand"
	}
	return ""
}
