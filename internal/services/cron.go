package services

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mythicalltd/featherpanel/internal/models"
)

// cronFieldMatches evaluates one five-field cron expression field against
// a value. Supported forms: "*", "*/n", "a", "a-b", and comma lists of
// the previous three.
func cronFieldMatches(expr string, value int) bool {
	for _, part := range strings.Split(expr, ",") {
		if cronPartMatches(part, value) {
			return true
		}
	}
	return false
}

func cronPartMatches(part string, value int) bool {
	if part == "*" {
		return true
	}
	if strings.HasPrefix(part, "*/") {
		step, err := strconv.Atoi(part[2:])
		if err != nil || step <= 0 {
			return false
		}
		return value%step == 0
	}
	if lo, hi, ok := strings.Cut(part, "-"); ok {
		a, errA := strconv.Atoi(lo)
		b, errB := strconv.Atoi(hi)
		if errA != nil || errB != nil {
			return false
		}
		return value >= a && value <= b
	}
	n, err := strconv.Atoi(part)
	if err != nil {
		return false
	}
	return value == n
}

// scheduleMatches reports whether the schedule's cron fields all match
// the given minute.
func scheduleMatches(s *models.Schedule, t time.Time) bool {
	return cronFieldMatches(s.CronMinute, t.Minute()) &&
		cronFieldMatches(s.CronHour, t.Hour()) &&
		cronFieldMatches(s.CronDayOfMonth, t.Day()) &&
		cronFieldMatches(s.CronMonth, int(t.Month())) &&
		cronFieldMatches(s.CronDayOfWeek, int(t.Weekday()))
}

// cronFieldBounds holds the valid value range per field position.
var cronFieldBounds = []struct {
	name string
	min  int
	max  int
}{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day of month", 1, 31},
	{"month", 1, 12},
	{"day of week", 0, 6},
}

// ValidateCron checks the five cron fields of a schedule for syntax and
// range errors before it is stored.
func ValidateCron(minute, hour, dayOfMonth, month, dayOfWeek string) error {
	fields := []string{minute, hour, dayOfMonth, month, dayOfWeek}
	for i, field := range fields {
		bounds := cronFieldBounds[i]
		if field == "" {
			return fmt.Errorf("cron %s field is empty", bounds.name)
		}
		for _, part := range strings.Split(field, ",") {
			if err := validateCronPart(part, bounds.min, bounds.max); err != nil {
				return fmt.Errorf("cron %s field: %w", bounds.name, err)
			}
		}
	}
	return nil
}

func validateCronPart(part string, min, max int) error {
	if part == "*" {
		return nil
	}
	if strings.HasPrefix(part, "*/") {
		step, err := strconv.Atoi(part[2:])
		if err != nil || step <= 0 {
			return fmt.Errorf("invalid step %q", part)
		}
		return nil
	}
	if lo, hi, ok := strings.Cut(part, "-"); ok {
		a, errA := strconv.Atoi(lo)
		b, errB := strconv.Atoi(hi)
		if errA != nil || errB != nil || a > b || a < min || b > max {
			return fmt.Errorf("invalid range %q", part)
		}
		return nil
	}
	n, err := strconv.Atoi(part)
	if err != nil || n < min || n > max {
		return fmt.Errorf("invalid value %q", part)
	}
	return nil
}
