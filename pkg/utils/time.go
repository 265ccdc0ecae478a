package utils

import (
	"time"
)

// Торговый день считается по UTC независимо от таймзоны процесса:
// дневные лимиты риска сбрасываются на одной и той же границе везде.

// DayKey возвращает дату в формате "YYYY-MM-DD" (UTC).
// Ключ торгового дня для дневных счётчиков RiskManager'а.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
