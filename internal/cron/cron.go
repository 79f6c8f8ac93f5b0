package cron

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalid is returned when an expression cannot be parsed.
var ErrInvalid = errors.New("invalid cron expression")

// ErrNoMatch is returned when Next cannot find a matching time within
// its search horizon.
var ErrNoMatch = errors.New("no matching time within search horizon")

type fieldSpec struct {
	name string
	min  int
	max  int
}

var fieldSpecs = [5]fieldSpec{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// Schedule is a parsed 5-field cron expression
// (minute hour day-of-month month day-of-week).
type Schedule struct {
	minutes map[int]bool
	hours   map[int]bool
	days    map[int]bool
	months  map[int]bool
	dows    map[int]bool
}

// Parse parses a standard 5-field cron expression. Supported syntax per
// field: a number, `*`, comma lists, ranges (`1-5`), and steps (`*/15`,
// `10-30/5`).
func Parse(expr string) (*Schedule, error) {
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) != len(fieldSpecs) {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", ErrInvalid, len(fieldSpecs), len(fields))
	}

	sets := make([]map[int]bool, len(fieldSpecs))
	for i, spec := range fieldSpecs {
		set, err := parseField(fields[i], spec)
		if err != nil {
			return nil, err
		}
		sets[i] = set
	}

	return &Schedule{
		minutes: sets[0],
		hours:   sets[1],
		days:    sets[2],
		months:  sets[3],
		dows:    sets[4],
	}, nil
}

// Validate reports whether expr is a parseable cron expression.
func Validate(expr string) bool {
	_, err := Parse(expr)
	return err == nil
}

// Next returns the first time strictly after from that matches the
// schedule, in UTC. The search is bounded at roughly one year of
// minutes so an unsatisfiable combination fails instead of spinning.
func (s *Schedule) Next(from time.Time) (time.Time, error) {
	candidate := from.UTC().Add(time.Minute).Truncate(time.Minute)

	const horizon = 366 * 24 * 60
	for i := 0; i < horizon; i++ {
		switch {
		case !s.months[int(candidate.Month())]:
			candidate = time.Date(candidate.Year(), candidate.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		case !s.days[candidate.Day()] || !s.dows[int(candidate.Weekday())]:
			candidate = time.Date(candidate.Year(), candidate.Month(), candidate.Day()+1, 0, 0, 0, 0, time.UTC)
		case !s.hours[candidate.Hour()]:
			candidate = time.Date(candidate.Year(), candidate.Month(), candidate.Day(), candidate.Hour()+1, 0, 0, 0, time.UTC)
		case !s.minutes[candidate.Minute()]:
			candidate = candidate.Add(time.Minute)
		default:
			return candidate, nil
		}
	}

	return time.Time{}, ErrNoMatch
}

func parseField(field string, spec fieldSpec) (map[int]bool, error) {
	set := make(map[int]bool)

	for _, part := range strings.Split(field, ",") {
		if part == "" {
			return nil, fmt.Errorf("%w: empty %s entry", ErrInvalid, spec.name)
		}
		if err := parsePart(part, spec, set); err != nil {
			return nil, err
		}
	}

	return set, nil
}

func parsePart(part string, spec fieldSpec, set map[int]bool) error {
	step := 1
	rangeExpr := part

	if idx := strings.Index(part, "/"); idx >= 0 {
		rangeExpr = part[:idx]
		parsed, err := strconv.Atoi(part[idx+1:])
		if err != nil || parsed <= 0 {
			return fmt.Errorf("%w: bad step in %s field %q", ErrInvalid, spec.name, part)
		}
		step = parsed
	}

	lo, hi := spec.min, spec.max
	switch {
	case rangeExpr == "*":
		// full range
	case strings.Contains(rangeExpr, "-"):
		bounds := strings.SplitN(rangeExpr, "-", 2)
		var err error
		if lo, err = parseBound(bounds[0], spec); err != nil {
			return err
		}
		if hi, err = parseBound(bounds[1], spec); err != nil {
			return err
		}
		if lo > hi {
			return fmt.Errorf("%w: inverted range in %s field %q", ErrInvalid, spec.name, part)
		}
	default:
		val, err := parseBound(rangeExpr, spec)
		if err != nil {
			return err
		}
		if step == 1 {
			set[val] = true
			return nil
		}
		// `n/step` means "starting at n" in the same way `n-max/step` does
		lo = val
	}

	for v := lo; v <= hi; v += step {
		set[v] = true
	}
	return nil
}

func parseBound(raw string, spec fieldSpec) (int, error) {
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: bad value %q in %s field", ErrInvalid, raw, spec.name)
	}
	if val < spec.min || val > spec.max {
		return 0, fmt.Errorf("%w: %s value %d out of range [%d, %d]", ErrInvalid, spec.name, val, spec.min, spec.max)
	}
	return val, nil
}
