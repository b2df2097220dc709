package highlights

import (
	"fmt"
	"strings"
	"time"
)

var (
	clockLayouts = []string{"15:04:05.999999999", "15:04", "15"}
	zoneLayouts  = []string{"-07:00", "-0700", "-07"}

	zonedLayouts, naiveLayouts = dateTimeLayouts()
)

// dateTimeLayouts expands the ISO-8601 date-time shapes: T or space
// separator, clock down to the hour, offsets with or without a colon.
func dateTimeLayouts() (zoned, naive []string) {
	for _, sep := range []string{"T", " "} {
		for _, clock := range clockLayouts {
			base := "2006-01-02" + sep + clock
			naive = append(naive, base)
			for _, zone := range zoneLayouts {
				zoned = append(zoned, base+zone)
			}
		}
	}
	return zoned, naive
}

// ParseEventDate reads an ISO-8601 date or date-time. A bare date means
// midnight UTC, a trailing Z means UTC and a date-time without zone is taken
// as UTC.
func ParseEventDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty event date")
	}
	if strings.HasSuffix(s, "Z") || strings.HasSuffix(s, "z") {
		s = s[:len(s)-1] + "+00:00"
	}

	if len(s) == len("2006-01-02") {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse event date %q: %w", s, err)
		}
		return t.UTC(), nil
	}

	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse event date %q: unrecognized format", s)
}
