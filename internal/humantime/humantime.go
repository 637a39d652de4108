// Package humantime 把违停记录的时间统计渲染成面向车主详情页的中文描述。
package humantime

import (
	"fmt"
	"time"
)

// Span 描述首次违规与最近违规之间的时间跨度。
func Span(first, last time.Time) string {
	if first.IsZero() || last.IsZero() {
		return "未知"
	}

	diffDays := dayDiff(first, last)
	switch {
	case diffDays == 0:
		return "同一天"
	case diffDays < 7:
		return fmt.Sprintf("%d天", diffDays)
	case diffDays < 30:
		return fmt.Sprintf("%d周", diffDays/7)
	case diffDays < 365:
		return fmt.Sprintf("%d个月", diffDays/30)
	default:
		return fmt.Sprintf("%d年", diffDays/365)
	}
}

// Frequency 描述平均违规间隔，次数不足两次时没有可统计的间隔。
func Frequency(first, last time.Time, count int) string {
	if first.IsZero() || last.IsZero() || count <= 1 {
		return "无数据"
	}

	diffDays := dayDiff(first, last)
	switch {
	case diffDays == 0:
		return "同一天多次"
	case diffDays < 7:
		return fmt.Sprintf("每%d天", diffDays/count+1)
	case diffDays < 30:
		return fmt.Sprintf("每%d周", diffDays/(count*7)+1)
	default:
		return fmt.Sprintf("每%d月", diffDays/(count*30)+1)
	}
}

// CountRecent 统计最近days天内的违规次数
func CountRecent(now time.Time, times []time.Time, days int) int {
	count := 0
	for _, t := range times {
		if t.IsZero() {
			continue
		}
		if int(now.Sub(t).Hours()/24) <= days {
			count++
		}
	}
	return count
}

func dayDiff(first, last time.Time) int {
	d := last.Sub(first)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}
