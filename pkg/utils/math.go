package utils

import (
	"math"
)

// Чистые функции округления к шагам биржи и пара числовых хелперов.
// Цены и количества, не кратные шагу инструмента, Bybit отклоняет.

// RoundToLotSize округляет количество ВНИЗ до кратного lotSize.
// Вниз, чтобы не превысить доступные средства. При lotSize <= 0
// значение возвращается как есть.
//
//	RoundToLotSize(0.123456, 0.001) = 0.123
//	RoundToLotSize(1.999, 0.01)     = 1.99
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 {
		return value
	}
	return math.Floor(value/lotSize) * lotSize
}

// RoundToTickSize округляет цену к ближайшему кратному tickSize.
// Для цен лимитных ордеров и уровней SL/TP. При tickSize <= 0
// цена возвращается как есть.
func RoundToTickSize(price, tickSize float64) float64 {
	if tickSize <= 0 {
		return price
	}
	return math.Round(price/tickSize) * tickSize
}

// PercentChange возвращает изменение current относительно base
// в процентах, 0 при base <= 0.
func PercentChange(base, current float64) float64 {
	if base <= 0 {
		return 0
	}
	return (current - base) / base * 100
}

// Clamp ограничивает значение диапазоном [min, max]
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
