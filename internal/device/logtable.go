package device

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// LogRecord is one row of the controller's SD card log. Rows that do not parse
// (the CSV header the firmware writes on boot, truncated lines) keep their raw
// cells with Valid unset.
type LogRecord struct {
	Cells      []string
	Valid      bool
	Uptime     time.Duration
	Battery    int
	Voltage    float64
	Current    float64
	SwitchOn   bool
	AmpereHour float64
}

// ParseLogTable extracts the data rows from the HTML table served at /log.
func ParseLogTable(r io.Reader) ([]LogRecord, error) {
	z := html.NewTokenizer(r)

	var (
		records []LogRecord
		row     []string
		cell    strings.Builder
		inRow   bool
		inCell  bool
		header  bool
	)

	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return records, nil
			}
			return nil, z.Err()
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "tr":
				row, inRow, header = nil, true, false
			case "th":
				header = true
			case "td":
				if inRow {
					inCell = true
					cell.Reset()
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "td":
				if inCell {
					row = append(row, strings.TrimSpace(cell.String()))
					inCell = false
				}
			case "tr":
				if inRow && !header && !blankRow(row) {
					records = append(records, parseLogRow(row))
				}
				inRow = false
			}
		case html.TextToken:
			if inCell {
				cell.Write(z.Text())
			}
		}
	}
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}

func parseLogRow(cells []string) LogRecord {
	rec := LogRecord{Cells: cells}
	if len(cells) < 6 {
		return rec
	}
	millis, err := strconv.ParseUint(cells[0], 10, 64)
	if err != nil {
		return rec
	}
	battery, err := strconv.Atoi(cells[1])
	if err != nil {
		return rec
	}
	var nums [3]float64
	for i, idx := range []int{2, 3, 5} {
		v, err := strconv.ParseFloat(cells[idx], 64)
		if err != nil {
			return rec
		}
		nums[i] = v
	}
	var on bool
	switch strings.ToUpper(cells[4]) {
	case "ON":
		on = true
	case "OFF":
	default:
		return rec
	}

	rec.Valid = true
	rec.Uptime = time.Duration(millis) * time.Millisecond
	rec.Battery = battery
	rec.Voltage = nums[0]
	rec.Current = nums[1]
	rec.AmpereHour = nums[2]
	rec.SwitchOn = on
	return rec
}
