package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/lox/solarperf/internal/models"
)

var monthAbbrevs = map[string]int{
	"Jan": 1, "Feb": 2, "Mar": 3, "Apr": 4, "May": 5, "Jun": 6,
	"Jul": 7, "Aug": 8, "Sep": 9, "Oct": 10, "Nov": 11, "Dec": 12,
}

var nonLetters = regexp.MustCompile(`[^a-zA-Z]`)

// parseExportDate reads a date cell of the daily export. Short cells look
// like "5-Mar-18"; longer cells carry the day at 4-6, the month abbreviation
// at 7-10 and a two-digit year at 13-15 ("Mon 05 Mar 2018").
func parseExportDate(s string) (models.Date, bool) {
	s = strings.TrimSpace(s)
	var dayText, monthText, yearText string
	if len(s) < 11 {
		first := strings.Index(s, "-")
		last := strings.LastIndex(s, "-")
		if first < 0 || first == last {
			return models.Date{}, false
		}
		dayText = s[:first]
		monthText = nonLetters.ReplaceAllString(s, "")
		yearText = s[last+1:]
	} else {
		if len(s) < 15 {
			return models.Date{}, false
		}
		dayText = s[4:6]
		monthText = s[7:10]
		yearText = s[13:15]
	}

	month, ok := monthAbbrevs[monthText]
	if !ok {
		return models.Date{}, false
	}
	day, err := strconv.Atoi(strings.TrimSpace(dayText))
	if err != nil || day < 1 || day > 31 {
		return models.Date{}, false
	}
	year, err := strconv.Atoi(strings.TrimSpace(yearText))
	if err != nil || year < 0 {
		return models.Date{}, false
	}
	return models.Date{Day: day, Month: month, Year: year % 100}, true
}

const isoDate = "2006-01-02"

var dateLayouts = []string{
	isoDate,
	"2006.01.02",
	"2006/01/02",
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-Jan-2006",
	"2 Jan 2006",
	"02/01/06",
}

// normalizeDate converts an Excel serial number or a recognised date string
// to YYYY-MM-DD. Anything else is returned trimmed but otherwise untouched.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t.Format(isoDate)
		}
		return s
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(isoDate)
		}
	}
	return s
}
