package functions

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
)

var dateLayouts = map[string]string{
	"":         time.RFC3339,
	"iso":      time.RFC3339,
	"date":     time.DateOnly,
	"time":     time.TimeOnly,
	"datetime": time.DateTime,
	"short":    "01/02/2006",
	"medium":   "Jan 2, 2006",
	"long":     "January 2, 2006",
	"full":     "Monday, January 2, 2006",
}

// tokenReplacer turns the common yyyy-MM-dd tokens into a Go layout.
var tokenReplacer = strings.NewReplacer(
	"yyyy", "2006",
	"yy", "06",
	"MMMM", "January",
	"MMM", "Jan",
	"MM", "01",
	"dd", "02",
	"HH", "15",
	"hh", "03",
	"mm", "04",
	"ss", "05",
	"a", "PM",
)

func registerDateFunctions(l *Library) {
	l.Register("date.format", formatDate)
	l.Register("date.getPart", datePart)
	l.Register("date.add", addToDate)
	l.Register("date.difference", dateDifference)
	l.Register("date.toISOString", func(value any, _ map[string]any) (any, error) {
		t, err := toTime(value)
		if err != nil {
			return nil, err
		}

		return t.UTC().Format(time.RFC3339Nano), nil
	})
}

func toTime(value any) (time.Time, error) {
	switch v := value.(type) {
	case float64:
		return time.UnixMilli(int64(v)).UTC(), nil
	case int64:
		return time.UnixMilli(v).UTC(), nil
	case int:
		return time.UnixMilli(int64(v)).UTC(), nil
	}

	t, err := cast.ToTimeE(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date: %w", err)
	}

	return t, nil
}

func formatDate(value any, params map[string]any) (any, error) {
	var p struct {
		Format string `param:"format"`
	}

	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	t, err := toTime(value)
	if err != nil {
		return nil, err
	}

	layout, ok := dateLayouts[p.Format]
	if !ok {
		layout = tokenReplacer.Replace(p.Format)
	}

	return t.Format(layout), nil
}

func datePart(value any, params map[string]any) (any, error) {
	var p struct {
		Part string `param:"part"`
	}

	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	t, err := toTime(value)
	if err != nil {
		return nil, err
	}

	switch p.Part {
	case "year":
		return float64(t.Year()), nil
	case "month":
		return float64(t.Month()), nil
	case "day":
		return float64(t.Day()), nil
	case "hour":
		return float64(t.Hour()), nil
	case "minute":
		return float64(t.Minute()), nil
	case "second":
		return float64(t.Second()), nil
	default:
		return nil, fmt.Errorf("unknown date part %q", p.Part)
	}
}

func addToDate(value any, params map[string]any) (any, error) {
	var p struct {
		Amount int    `param:"amount"`
		Unit   string `param:"unit"`
	}

	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	t, err := toTime(value)
	if err != nil {
		return nil, err
	}

	switch p.Unit {
	case "years":
		t = t.AddDate(p.Amount, 0, 0)
	case "months":
		t = t.AddDate(0, p.Amount, 0)
	case "days":
		t = t.AddDate(0, 0, p.Amount)
	case "hours":
		t = t.Add(time.Duration(p.Amount) * time.Hour)
	case "minutes":
		t = t.Add(time.Duration(p.Amount) * time.Minute)
	case "seconds":
		t = t.Add(time.Duration(p.Amount) * time.Second)
	default:
		return nil, fmt.Errorf("unknown unit %q", p.Unit)
	}

	return t.Format(time.RFC3339), nil
}

func dateDifference(value any, params map[string]any) (any, error) {
	var p struct {
		CompareDate any    `param:"compareDate"`
		Unit        string `param:"unit"`
	}

	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	from, err := toTime(value)
	if err != nil {
		return nil, err
	}

	to := time.Now()
	if p.CompareDate != nil {
		if to, err = toTime(p.CompareDate); err != nil {
			return nil, err
		}
	}

	diff := to.Sub(from)

	switch p.Unit {
	case "milliseconds":
		return float64(diff.Milliseconds()), nil
	case "seconds":
		return math.Floor(diff.Seconds()), nil
	case "minutes":
		return math.Floor(diff.Minutes()), nil
	case "hours":
		return math.Floor(diff.Hours()), nil
	case "", "days":
		return math.Floor(diff.Hours() / 24), nil
	case "months":
		return float64((to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())), nil
	case "years":
		return float64(to.Year() - from.Year()), nil
	default:
		return nil, fmt.Errorf("unknown unit %q", p.Unit)
	}
}
