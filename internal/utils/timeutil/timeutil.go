package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // 内置 IANA 时区库，不依赖宿主机 tzdata
)

// LoadLocation 加载时区，空字符串视为 UTC
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "UTC") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("无效时区 %q: %w", name, err)
	}
	return loc, nil
}

// TimeOfDay 一天中的墙上时间（时:分）
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay 解析 "HH:MM"（00:00-23:59）
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return TimeOfDay{}, fmt.Errorf("时间格式应为 HH:MM: %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("小时越界: %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("分钟越界: %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// ParseTimesOfDay 批量解析，保持输入顺序
func ParseTimesOfDay(slots []string) ([]TimeOfDay, error) {
	out := make([]TimeOfDay, 0, len(slots))
	for _, s := range slots {
		tod, err := ParseTimeOfDay(s)
		if err != nil {
			return nil, err
		}
		out = append(out, tod)
	}
	return out, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Date 日历日期（不含时区），按墙上日期做加减，避免跨 DST 时 24h 偏移
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf 取 t 在 loc 下的日历日期
func DateOf(t time.Time, loc *time.Location) Date {
	y, m, d := t.In(loc).Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) midnightUTC() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays 日期加 n 天
func (d Date) AddDays(n int) Date {
	return DateOf(d.midnightUTC().AddDate(0, 0, n), time.UTC)
}

// AddMonths 日期加 n 个月，日号超过目标月天数时取月末（1/31 + 1 月 = 2/28 或 2/29）
func (d Date) AddMonths(n int) Date {
	first := time.Date(d.Year, d.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	last := first.AddDate(0, 1, -1).Day()
	day := d.Day
	if day > last {
		day = last
	}
	return Date{Year: first.Year(), Month: first.Month(), Day: day}
}

// Weekday 星期（0=周日）
func (d Date) Weekday() time.Weekday {
	return d.midnightUTC().Weekday()
}

func (d Date) Before(o Date) bool { return d.midnightUTC().Before(o.midnightUTC()) }
func (d Date) After(o Date) bool  { return d.midnightUTC().After(o.midnightUTC()) }

// Start 该日期在 loc 下的零点（若零点落在 DST 间隙则取之后第一个有效时刻）
func (d Date) Start(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// LocalToUTC 把 loc 下的 日期+墙上时间 转为 UTC 时刻
// 第二个返回值为 false 表示该墙上时间不存在（DST 春季拨快的间隙）
func LocalToUTC(d Date, tod TimeOfDay, loc *time.Location) (time.Time, bool) {
	t := time.Date(d.Year, d.Month, d.Day, tod.Hour, tod.Minute, 0, 0, loc)
	local := t.In(loc)
	if local.Hour() != tod.Hour || local.Minute() != tod.Minute || DateOf(local, loc) != d {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// DayBounds 返回 t 所在 loc 日期的 [当日零点, 次日零点) 的 UTC 表示
func DayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	d := DateOf(t, loc)
	return d.Start(loc).UTC(), d.AddDays(1).Start(loc).UTC()
}

// InZone 仅用于展示的时区转换，返回副本，不修改存储值
func InZone(t time.Time, loc *time.Location) time.Time {
	return t.In(loc)
}

// DayHourKey 在 loc 下的 (日期, 小时) 分组键
func DayHourKey(t time.Time, loc *time.Location) string {
	local := t.In(loc)
	return fmt.Sprintf("%s|%02d", DateOf(local, loc), local.Hour())
}
