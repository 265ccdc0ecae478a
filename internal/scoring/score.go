package scoring

import "sniper/internal/models"

// score.go - аккумулятор конфлюэнс-счёта
//
// Каждый фактор добавляет целочисленный вклад в диапазоне [0, max фактора].
// Итоговый счёт = сумма вкладов, максимум = сумма максимумов.

// ConfluenceScore накапливает вклады факторов для одного направления
type ConfluenceScore struct {
	total       int
	maxPossible int
	breakdown   map[string]models.FactorScore
	reasons     []string
}

// NewConfluenceScore создает пустой аккумулятор
func NewConfluenceScore() *ConfluenceScore {
	return &ConfluenceScore{
		breakdown: make(map[string]models.FactorScore),
	}
}

// AddFactor добавляет вклад фактора.
// Вклад обрезается в диапазон [0, max]: фактор не может голосовать
// отрицательно или выше собственного максимума.
func (c *ConfluenceScore) AddFactor(name string, score, max int) {
	if score < 0 {
		score = 0
	}
	if score > max {
		score = max
	}
	c.total += score
	c.maxPossible += max
	c.breakdown[name] = models.FactorScore{Score: score, Max: max}
	if score > 0 {
		c.reasons = append(c.reasons, name)
	}
}

// Total возвращает сумму набранных баллов
func (c *ConfluenceScore) Total() int {
	return c.total
}

// MaxPossible возвращает сумму максимумов добавленных факторов
func (c *ConfluenceScore) MaxPossible() int {
	return c.maxPossible
}

// Percentage возвращает процент от максимума [0..100]
func (c *ConfluenceScore) Percentage() float64 {
	if c.maxPossible == 0 {
		return 0
	}
	return float64(c.total) / float64(c.maxPossible) * 100
}

// Breakdown возвращает вклады по факторам
func (c *ConfluenceScore) Breakdown() map[string]models.FactorScore {
	return c.breakdown
}

// Reasons возвращает имена факторов с ненулевым вкладом
func (c *ConfluenceScore) Reasons() []string {
	return c.reasons
}
