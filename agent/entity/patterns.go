package entity

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	relativeDatePattern = regexp.MustCompile(`(?i)\b(day after tomorrow|tomorrow|today|tonight)\b`)
	weekdayPattern      = regexp.MustCompile(`(?i)\b(?:(next|this|coming)\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)
	numericDatePattern  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}[/-]\d{1,2}[/-]\d{2,4})\b`)
	monthDatePattern    = regexp.MustCompile(`(?i)\b(?:(\d{1,2})(?:st|nd|rd|th)?\s+(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:tember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)|(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:tember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\s+(\d{1,2})(?:st|nd|rd|th)?)(?:[,\s]+(\d{4}))?\b`)

	clockPattern    = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	clock24Pattern  = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	dayPartPattern  = regexp.MustCompile(`(?i)\b(morning|afternoon|evening|noon|midnight)\b`)
	pincodePattern  = regexp.MustCompile(`\b(\d{6})\b`)
	amountPattern   = regexp.MustCompile(`(?i)(?:(?:rs\.?|inr|₹)\s*(\d+(?:\.\d{1,2})?)|(\d+(?:\.\d{1,2})?)\s*(?:rupees|rs\b))`)
	bareAmount      = regexp.MustCompile(`^\s*(\d+(?:\.\d{1,2})?)\s*$`)
	bookingIDPat    = regexp.MustCompile(`(?i)\b(?:bk[-_]?(\d{3,})|booking\s+(?:id|number|ref(?:erence)?)\s*[:#]?\s*([a-z0-9-]{3,}))\b`)
)

var weekdays = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ParseDate turns a raw date span into a calendar date relative to now.
func ParseDate(raw string, now time.Time) (time.Time, error) {
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if m := relativeDatePattern.FindString(text); m != "" {
		switch strings.ToLower(m) {
		case "today", "tonight":
			return today, nil
		case "tomorrow":
			return today.AddDate(0, 0, 1), nil
		case "day after tomorrow":
			return today.AddDate(0, 0, 2), nil
		}
	}

	if m := weekdayPattern.FindStringSubmatch(text); m != nil {
		target := weekdays[strings.ToLower(m[2])]
		days := (int(target) - int(today.Weekday()) + 7) % 7
		if days == 0 && strings.EqualFold(m[1], "next") {
			days = 7
		}
		if days == 0 && m[1] == "" {
			// bare weekday matching today means the coming one
			days = 7
		}
		return today.AddDate(0, 0, days), nil
	}

	if m := numericDatePattern.FindString(text); m != "" {
		for _, layout := range []string{"2006-01-02", "02/01/2006", "02-01-2006", "2/1/2006", "2-1-2006", "02/01/06", "02-01-06"} {
			if d, err := time.ParseInLocation(layout, m, now.Location()); err == nil {
				return d, nil
			}
		}
	}

	if m := monthDatePattern.FindStringSubmatch(text); m != nil {
		var dayStr, monStr string
		if m[1] != "" {
			dayStr, monStr = m[1], m[2]
		} else {
			dayStr, monStr = m[4], m[3]
		}
		day, err := strconv.Atoi(dayStr)
		if err != nil {
			return time.Time{}, fmt.Errorf("bad day in %q", raw)
		}
		mon := months[strings.ToLower(monStr)[:3]]
		year := today.Year()
		if m[5] != "" {
			year, _ = strconv.Atoi(m[5])
		}
		d := time.Date(year, mon, day, 0, 0, 0, 0, now.Location())
		if d.Day() != day {
			return time.Time{}, fmt.Errorf("no such date %q", raw)
		}
		// a month/day without a year that already passed means next year
		if m[5] == "" && d.Before(today) {
			d = d.AddDate(1, 0, 0)
		}
		return d, nil
	}

	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// ParseClock turns a raw time span into hour and minute of day.
func ParseClock(raw string) (int, int, error) {
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" {
		return 0, 0, fmt.Errorf("empty time")
	}

	if m := clockPattern.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour < 1 || hour > 12 || minute > 59 {
			return 0, 0, fmt.Errorf("invalid clock time %q", raw)
		}
		if m[3] == "pm" && hour != 12 {
			hour += 12
		}
		if m[3] == "am" && hour == 12 {
			hour = 0
		}
		return hour, minute, nil
	}

	if m := clock24Pattern.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		return hour, minute, nil
	}

	if m := dayPartPattern.FindString(text); m != "" {
		switch strings.ToLower(m) {
		case "morning":
			return 9, 0, nil
		case "afternoon":
			return 14, 0, nil
		case "evening":
			return 18, 0, nil
		case "noon":
			return 12, 0, nil
		case "midnight":
			return 0, 0, nil
		}
	}

	return 0, 0, fmt.Errorf("unrecognized time %q", raw)
}
