package report

import (
	"fmt"

	"github.com/lox/solarperf/internal/models"
)

// Filename names the workbook after the last reading date, as YY.M.D.xlsx,
// or YY.MM.DD.xlsx when pad is set.
func Filename(d models.Date, pad bool) string {
	if pad {
		return fmt.Sprintf("%02d.%02d.%02d.xlsx", d.Year, d.Month, d.Day)
	}
	return fmt.Sprintf("%d.%d.%d.xlsx", d.Year, d.Month, d.Day)
}
