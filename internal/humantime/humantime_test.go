package humantime

import (
	"testing"
	"time"
)

func date(day int) time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local).AddDate(0, 0, day)
}

func TestSpan(t *testing.T) {
	cases := []struct {
		name  string
		first time.Time
		last  time.Time
		want  string
	}{
		{"zero first", time.Time{}, date(0), "未知"},
		{"zero last", date(0), time.Time{}, "未知"},
		{"same day", date(0), date(0), "同一天"},
		{"three days", date(0), date(3), "3天"},
		{"two weeks", date(0), date(15), "2周"},
		{"two months", date(0), date(70), "2个月"},
		{"one year", date(0), date(400), "1年"},
		{"reversed order", date(3), date(0), "3天"},
	}
	for _, c := range cases {
		if got := Span(c.first, c.last); got != c.want {
			t.Errorf("%s: Span = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestFrequency(t *testing.T) {
	cases := []struct {
		name  string
		first time.Time
		last  time.Time
		count int
		want  string
	}{
		{"single record", date(0), date(5), 1, "无数据"},
		{"zero time", time.Time{}, date(5), 3, "无数据"},
		{"same day", date(0), date(0), 3, "同一天多次"},
		{"days scale", date(0), date(6), 3, "每3天"},
		{"weeks scale", date(0), date(20), 2, "每2周"},
		{"months scale", date(0), date(90), 2, "每2月"},
	}
	for _, c := range cases {
		if got := Frequency(c.first, c.last, c.count); got != c.want {
			t.Errorf("%s: Frequency = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestCountRecent(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)
	times := []time.Time{
		now.AddDate(0, 0, -5),
		now.AddDate(0, 0, -29),
		now.AddDate(0, 0, -31),
		{},
	}
	if got := CountRecent(now, times, 30); got != 2 {
		t.Errorf("CountRecent = %d, want 2", got)
	}
	if got := CountRecent(now, nil, 30); got != 0 {
		t.Errorf("CountRecent(nil) = %d, want 0", got)
	}
}
