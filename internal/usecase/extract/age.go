package extract

import (
	"fmt"
	"time"
)

var ageUnits = []struct {
	name string
	size time.Duration
}{
	{"ngày", 24 * time.Hour},
	{"giờ", time.Hour},
	{"phút", time.Minute},
	{"giây", time.Second},
}

// FormatAge возвращает подпись вида "3 phút trước" по старшей единице.
func FormatAge(d time.Duration) string {
	for _, unit := range ageUnits {
		if d >= unit.size {
			return fmt.Sprintf("%d %s trước", int64(d/unit.size), unit.name)
		}
	}
	return "vừa xong"
}
