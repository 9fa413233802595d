package files

import "fmt"

var sizeUnits = []struct {
	suffix string
	bytes  int64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
}

// FormatFileSize renders a byte count with one decimal in the largest
// binary unit that fits ("1.5 MB"); counts under 1 KB stay in bytes.
func FormatFileSize(n int64) string {
	for _, u := range sizeUnits {
		if n >= u.bytes {
			return fmt.Sprintf("%.1f %s", float64(n)/float64(u.bytes), u.suffix)
		}
	}
	return fmt.Sprintf("%d B", n)
}

// UsagePercent returns used as a percentage of limit, rounded down to one
// decimal and capped at 100. A non-positive limit reports 100.
func UsagePercent(used, limit int64) float64 {
	if limit <= 0 || used >= limit {
		return 100
	}
	if used <= 0 {
		return 0
	}
	return float64(used*1000/limit) / 10
}
